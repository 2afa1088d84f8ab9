// ABOUTME: Raw PCM payload encoder
// ABOUTME: Writes 24-bit range samples as signed little-endian 16, 24 or 32-bit PCM
package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/harperreed/seqplay/pkg/audio"
)

// PCMEncoder encodes headerless PCM
type PCMEncoder struct {
	width int
}

// NewPCM creates a PCM encoder for format.BitDepth
func NewPCM(format audio.Format) (Encoder, error) {
	if format.Codec != audio.CodecPCM {
		return nil, fmt.Errorf("invalid codec for PCM encoder: %s", format.Codec)
	}
	switch format.BitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24, 32)", format.BitDepth)
	}
	return &PCMEncoder{width: format.BitDepth / 8}, nil
}

// Encode converts samples to PCM bytes
func (e *PCMEncoder) Encode(samples []int32) ([]byte, error) {
	out := make([]byte, len(samples)*e.width)
	for i, s := range samples {
		b := out[i*e.width:]
		switch e.width {
		case 2:
			binary.LittleEndian.PutUint16(b, uint16(audio.SampleToInt16(s)))
		case 3:
			packed := audio.SampleTo24Bit(s)
			copy(b, packed[:])
		default:
			binary.LittleEndian.PutUint32(b, uint32(s<<8))
		}
	}
	return out, nil
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
