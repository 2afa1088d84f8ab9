// ABOUTME: Decoder interface and whole-payload clip decoding
// ABOUTME: Sniffs the container of a unit payload and dispatches to a codec
package decode

import (
	"bytes"
	"fmt"

	"github.com/harperreed/seqplay/pkg/audio"
)

// Decoder decodes frames of a known codec to PCM int32 samples
type Decoder interface {
	// Decode converts encoded audio data to PCM samples
	Decode(data []byte) ([]int32, error)

	// Close releases decoder resources
	Close() error
}

// DefaultRawFormat is assumed for payloads with no recognisable container
var DefaultRawFormat = audio.Format{
	Codec:      audio.CodecPCM,
	SampleRate: 16000,
	Channels:   1,
	BitDepth:   16,
}

// Detect names the codec of a payload from its leading bytes.
// Anything unrecognised is treated as raw PCM.
func Detect(data []byte) string {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return audio.CodecWAV
	case bytes.HasPrefix(data, []byte("fLaC")):
		return audio.CodecFLAC
	case bytes.HasPrefix(data, []byte(OpusClipMagic)):
		return audio.CodecOpus
	case bytes.HasPrefix(data, []byte("ID3")):
		return audio.CodecMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return audio.CodecMP3
	default:
		return audio.CodecPCM
	}
}

// Clip decodes a complete unit payload. raw describes payloads without a
// container; a zero Format selects DefaultRawFormat.
func Clip(data []byte, raw audio.Format) (*audio.Clip, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	var (
		clip *audio.Clip
		err  error
	)

	switch codec := Detect(data); codec {
	case audio.CodecWAV:
		clip, err = DecodeWAV(data)
	case audio.CodecFLAC:
		clip, err = DecodeFLAC(data)
	case audio.CodecOpus:
		clip, err = DecodeOpusClip(data)
	case audio.CodecMP3:
		clip, err = DecodeMP3(data)
	default:
		if raw.SampleRate == 0 {
			raw = DefaultRawFormat
		}
		clip, err = DecodePCM(data, raw)
	}
	if err != nil {
		return nil, err
	}

	if len(clip.Samples) == 0 {
		return nil, fmt.Errorf("%s payload decoded to no samples", clip.Format.Codec)
	}
	return clip, nil
}
