// ABOUTME: Linear resampler for converting audio sample rates
// ABOUTME: Converts interleaved int32 samples by linear interpolation
package resample

import "github.com/harperreed/seqplay/pkg/audio"

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
	}
}

// Resample converts interleaved input at inputRate into output at
// outputRate and returns the number of output samples written
func (r *Resampler) Resample(input []int32, output []int32) int {
	if len(input) == 0 {
		return 0
	}

	inputFrames := len(input) / r.channels
	outputFrames := len(output) / r.channels

	outIdx := 0
	for outIdx < outputFrames {
		inputIdx := int(r.position)
		if inputIdx >= inputFrames-1 {
			break
		}

		frac := r.position - float64(inputIdx)
		for ch := 0; ch < r.channels; ch++ {
			s1 := input[inputIdx*r.channels+ch]
			s2 := input[(inputIdx+1)*r.channels+ch]
			output[outIdx*r.channels+ch] = int32(float64(s1)*(1.0-frac) + float64(s2)*frac)
		}

		outIdx++
		r.position += r.ratio
	}

	// keep the fractional part for the next chunk
	r.position -= float64(int(r.position))

	return outIdx * r.channels
}

// Reset clears the interpolation position
func (r *Resampler) Reset() {
	r.position = 0
}

// OutputSamplesNeeded calculates how many output samples input samples produce
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames) / r.ratio)
	return outputFrames * r.channels
}

// Convert returns clip at the given rate and channel count. The input clip is
// returned unchanged when it already matches.
func Convert(clip *audio.Clip, rate, channels int) *audio.Clip {
	samples := audio.Remix(clip.Samples, clip.Format.Channels, channels)

	format := clip.Format
	format.Channels = channels

	if clip.Format.SampleRate != rate && len(samples) > 0 {
		r := New(clip.Format.SampleRate, rate, channels)
		// one spare frame for rounding
		out := make([]int32, r.OutputSamplesNeeded(len(samples))+channels)
		n := r.Resample(samples, out)
		samples = out[:n]
		format.SampleRate = rate
	}

	return &audio.Clip{Format: format, Samples: samples}
}
