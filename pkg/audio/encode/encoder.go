// ABOUTME: Sample encoder contract and codec selection
// ABOUTME: Picks the raw PCM or Opus packet encoder for a unit's format
package encode

import (
	"fmt"

	"github.com/harperreed/seqplay/pkg/audio"
)

// Encoder turns 24-bit range samples into payload bytes for one codec
type Encoder interface {
	Encode(samples []int32) ([]byte, error)
	Close() error
}

var (
	_ Encoder = (*PCMEncoder)(nil)
	_ Encoder = (*OpusEncoder)(nil)
)

// New returns the sample encoder for format.Codec. Container codecs (wav)
// are written whole by EncodeWAV and have no streaming encoder.
func New(format audio.Format) (Encoder, error) {
	switch format.Codec {
	case audio.CodecPCM:
		return NewPCM(format)
	case audio.CodecOpus:
		return NewOpus(format)
	default:
		return nil, fmt.Errorf("no sample encoder for codec %q", format.Codec)
	}
}
