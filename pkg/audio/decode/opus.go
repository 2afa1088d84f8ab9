// ABOUTME: Opus audio decoder
// ABOUTME: Decodes single Opus packets and framed Opus clip payloads
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/harperreed/seqplay/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// OpusClipMagic starts a framed Opus payload:
//
//	"OPKT" | sample rate uint32 BE | channels uint8 | { length uint16 BE | packet }...
const OpusClipMagic = "OPKT"

// OpusClipHeaderSize is the size of the framed Opus header
const OpusClipHeaderSize = 9

// OpusDecoder decodes Opus audio
type OpusDecoder struct {
	decoder *opus.Decoder
	format  audio.Format
}

// NewOpus creates a new Opus decoder
func NewOpus(format audio.Format) (Decoder, error) {
	if format.Codec != audio.CodecOpus {
		return nil, fmt.Errorf("invalid codec for Opus decoder: %s", format.Codec)
	}

	dec, err := opus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &OpusDecoder{
		decoder: dec,
		format:  format,
	}, nil
}

// Decode converts one Opus packet to int32 samples
func (d *OpusDecoder) Decode(data []byte) ([]int32, error) {
	// 120ms at 48kHz is the largest Opus frame
	pcm16 := make([]int16, 5760*d.format.Channels)

	n, err := d.decoder.Decode(data, pcm16)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	actualSamples := n * d.format.Channels
	pcm32 := make([]int32, actualSamples)
	for i := 0; i < actualSamples; i++ {
		pcm32[i] = audio.SampleFromInt16(pcm16[i])
	}
	return pcm32, nil
}

// Close releases decoder resources
func (d *OpusDecoder) Close() error {
	return nil
}

// DecodeOpusClip decodes a framed Opus payload
func DecodeOpusClip(data []byte) (*audio.Clip, error) {
	if len(data) < OpusClipHeaderSize || string(data[:4]) != OpusClipMagic {
		return nil, fmt.Errorf("not a framed opus payload")
	}

	format := audio.Format{
		Codec:      audio.CodecOpus,
		SampleRate: int(binary.BigEndian.Uint32(data[4:8])),
		Channels:   int(data[8]),
		BitDepth:   16,
	}

	dec, err := NewOpus(format)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var samples []int32
	rest := data[OpusClipHeaderSize:]
	for len(rest) > 0 {
		if len(rest) < 2 {
			return nil, fmt.Errorf("truncated opus packet header")
		}
		size := int(binary.BigEndian.Uint16(rest))
		rest = rest[2:]
		if size > len(rest) {
			return nil, fmt.Errorf("opus packet of %d bytes exceeds remaining %d", size, len(rest))
		}

		pcm, err := dec.Decode(rest[:size])
		if err != nil {
			return nil, err
		}
		samples = append(samples, pcm...)
		rest = rest[size:]
	}

	return &audio.Clip{Format: format, Samples: samples}, nil
}
