// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Clip types and sample conversion functions
// Package audio provides the sample types shared by the decoders, the
// resampler and the outputs.
//
// Samples are int32 values in 24-bit range regardless of the source bit
// depth, so 16-bit, 24-bit and float sources mix without extra conversion.
//
// Example:
//
//	clip := &audio.Clip{
//	    Format:  audio.Format{Codec: audio.CodecPCM, SampleRate: 16000, Channels: 1, BitDepth: 16},
//	    Samples: samples,
//	}
//	stereo := audio.Remix(clip.Samples, 1, 2)
//	fmt.Println(clip.Duration())
package audio
