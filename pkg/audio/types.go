// ABOUTME: Audio type definitions
// ABOUTME: Defines audio formats, decoded clips and sample conversions
package audio

import "time"

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Codec names recognised by the decoders
const (
	CodecPCM  = "pcm"
	CodecWAV  = "wav"
	CodecMP3  = "mp3"
	CodecFLAC = "flac"
	CodecOpus = "opus"
)

// Format describes audio stream format
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// BytesPerSecond returns the raw PCM data rate of the format
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * (f.BitDepth / 8)
}

// Clip is one fully decoded unit: interleaved samples in 24-bit range
type Clip struct {
	Format  Format
	Samples []int32
}

// Frames returns the number of sample frames (one sample per channel)
func (c *Clip) Frames() int {
	if c.Format.Channels == 0 {
		return 0
	}
	return len(c.Samples) / c.Format.Channels
}

// Duration returns the playing time of the clip
func (c *Clip) Duration() time.Duration {
	return FramesToDuration(c.Frames(), c.Format.SampleRate)
}

// FramesToDuration converts a frame count at rate to a duration
func FramesToDuration(frames, rate int) time.Duration {
	if rate == 0 {
		return 0
	}
	return time.Duration(int64(frames) * int64(time.Second) / int64(rate))
}

// Remix converts interleaved samples between channel counts.
// Mono is duplicated across outputs; extra channels are averaged down.
func Remix(samples []int32, from, to int) []int32 {
	if from == to || from <= 0 || to <= 0 {
		return samples
	}

	frames := len(samples) / from
	out := make([]int32, frames*to)

	for f := 0; f < frames; f++ {
		in := samples[f*from : (f+1)*from]
		if from == 1 {
			for ch := 0; ch < to; ch++ {
				out[f*to+ch] = in[0]
			}
			continue
		}
		if to == 1 {
			var sum int64
			for _, s := range in {
				sum += int64(s)
			}
			out[f] = int32(sum / int64(from))
			continue
		}
		for ch := 0; ch < to; ch++ {
			out[f*to+ch] = in[ch%from]
		}
	}
	return out
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit (or 16-bit) to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleFromFloat converts a [-1, 1] float sample to 24-bit range
func SampleFromFloat(v float64) int32 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int32(v * Max24Bit)
}

// SampleToFloat converts a 24-bit sample to [-1, 1]
func SampleToFloat(sample int32) float64 {
	return float64(sample) / Max24Bit
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}

// ScaleToBitDepth shifts a sample of the given bit depth into 24-bit range
func ScaleToBitDepth(sample int32, bitDepth int) int32 {
	switch {
	case bitDepth == 24:
		return sample
	case bitDepth < 24:
		return sample << (24 - bitDepth)
	default:
		return sample >> (bitDepth - 24)
	}
}
