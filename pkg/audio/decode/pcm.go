// ABOUTME: Raw PCM payload decoder
// ABOUTME: Reads signed little-endian 16, 24 or 32-bit samples into 24-bit range
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/harperreed/seqplay/pkg/audio"
)

// PCMDecoder decodes headerless PCM
type PCMDecoder struct {
	width int // bytes per sample
}

// NewPCM creates a PCM decoder for format.BitDepth
func NewPCM(format audio.Format) (Decoder, error) {
	if format.Codec != audio.CodecPCM {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}
	switch format.BitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24, 32)", format.BitDepth)
	}
	return &PCMDecoder{width: format.BitDepth / 8}, nil
}

// Decode converts PCM bytes to samples. A trailing partial sample is ignored.
func (d *PCMDecoder) Decode(data []byte) ([]int32, error) {
	samples := make([]int32, len(data)/d.width)
	for i := range samples {
		b := data[i*d.width:]
		switch d.width {
		case 2:
			samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(b)))
		case 3:
			samples[i] = audio.SampleFrom24Bit([3]byte{b[0], b[1], b[2]})
		default:
			samples[i] = int32(binary.LittleEndian.Uint32(b)) >> 8
		}
	}
	return samples, nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}

// DecodePCM decodes a raw PCM payload in the given format
func DecodePCM(data []byte, format audio.Format) (*audio.Clip, error) {
	format.Codec = audio.CodecPCM
	if format.Channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", format.Channels)
	}

	dec, err := NewPCM(format)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	samples, err := dec.Decode(data)
	if err != nil {
		return nil, err
	}

	// whole frames only
	samples = samples[:len(samples)-len(samples)%format.Channels]
	return &audio.Clip{Format: format, Samples: samples}, nil
}
