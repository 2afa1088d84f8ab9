// ABOUTME: Opus audio encoder
// ABOUTME: Encodes int32 samples to Opus packets and framed Opus clips
package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/harperreed/seqplay/pkg/audio"
	"github.com/harperreed/seqplay/pkg/audio/decode"
	"gopkg.in/hraban/opus.v2"
)

// OpusEncoder encodes Opus audio
type OpusEncoder struct {
	encoder    *opus.Encoder
	sampleRate int
	channels   int
	frameSize  int
}

// NewOpus creates a new Opus encoder
func NewOpus(format audio.Format) (Encoder, error) {
	if format.Codec != audio.CodecOpus {
		return nil, fmt.Errorf("invalid codec for Opus encoder: %s", format.Codec)
	}

	encoder, err := opus.NewEncoder(format.SampleRate, format.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	return &OpusEncoder{
		encoder:    encoder,
		sampleRate: format.SampleRate,
		channels:   format.Channels,
		frameSize:  format.SampleRate / 50, // 20ms
	}, nil
}

// Encode converts one 20ms frame of int32 samples to an Opus packet
func (e *OpusEncoder) Encode(samples []int32) ([]byte, error) {
	pcm := make([]int16, len(samples))
	for i, sample := range samples {
		pcm[i] = audio.SampleToInt16(sample)
	}

	data := make([]byte, 4000) // max Opus packet size
	n, err := e.encoder.Encode(pcm, data)
	if err != nil {
		return nil, fmt.Errorf("opus encode error: %w", err)
	}

	return data[:n], nil
}

// Close releases resources
func (e *OpusEncoder) Close() error {
	return nil
}

// EncodeOpusClip encodes a clip as a framed Opus payload. The clip must
// already be at an Opus sample rate; the last frame is zero padded.
func EncodeOpusClip(clip *audio.Clip) ([]byte, error) {
	format := clip.Format
	format.Codec = audio.CodecOpus
	format.BitDepth = 16

	enc, err := NewOpus(format)
	if err != nil {
		return nil, err
	}
	defer enc.Close()

	out := make([]byte, decode.OpusClipHeaderSize)
	copy(out, decode.OpusClipMagic)
	binary.BigEndian.PutUint32(out[4:8], uint32(format.SampleRate))
	out[8] = byte(format.Channels)

	frame := (format.SampleRate / 50) * format.Channels
	for start := 0; start < len(clip.Samples); start += frame {
		chunk := make([]int32, frame)
		copy(chunk, clip.Samples[start:])

		packet, err := enc.Encode(chunk)
		if err != nil {
			return nil, err
		}
		out = binary.BigEndian.AppendUint16(out, uint16(len(packet)))
		out = append(out, packet...)
	}
	return out, nil
}
