// ABOUTME: Sine tone generator
// ABOUTME: Produces PCM clips used by the feed tool and by tests
package encode

import (
	"math"
	"time"

	"github.com/harperreed/seqplay/pkg/audio"
)

// Tone renders a sine wave of freq Hz as a PCM clip at half amplitude
func Tone(freq float64, length time.Duration, format audio.Format) *audio.Clip {
	frames := int(int64(format.SampleRate) * int64(length) / int64(time.Second))
	samples := make([]int32, frames*format.Channels)

	for i := 0; i < frames; i++ {
		v := 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(format.SampleRate))
		s := audio.SampleFromFloat(v)
		for ch := 0; ch < format.Channels; ch++ {
			samples[i*format.Channels+ch] = s
		}
	}

	format.Codec = audio.CodecPCM
	return &audio.Clip{Format: format, Samples: samples}
}
