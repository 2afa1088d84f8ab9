// ABOUTME: WAV audio decoder
// ABOUTME: Decodes a complete RIFF/WAVE payload with beep's wav package
package decode

import (
	"bytes"
	"fmt"

	"github.com/gopxl/beep/v2/wav"
	"github.com/harperreed/seqplay/pkg/audio"
)

// DecodeWAV decodes a WAV payload
func DecodeWAV(data []byte) (*audio.Clip, error) {
	streamer, format, err := wav.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open wav stream: %w", err)
	}
	defer streamer.Close()

	channels := format.NumChannels
	if channels > 2 {
		channels = 2
	}

	samples := make([]int32, 0, streamer.Len()*channels)
	buf := make([][2]float64, 1024)
	for {
		n, ok := streamer.Stream(buf)
		for i := 0; i < n; i++ {
			for ch := 0; ch < channels; ch++ {
				samples = append(samples, audio.SampleFromFloat(buf[i][ch]))
			}
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("wav decode error: %w", err)
	}

	return &audio.Clip{
		Format: audio.Format{
			Codec:      audio.CodecWAV,
			SampleRate: int(format.SampleRate),
			Channels:   channels,
			BitDepth:   format.Precision * 8,
		},
		Samples: samples,
	}, nil
}
