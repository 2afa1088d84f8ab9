// ABOUTME: Audio decoder package for multiple codec support
// ABOUTME: Provides payload sniffing plus PCM, WAV, MP3, FLAC and Opus decoding
// Package decode turns unit payloads into PCM clips.
//
// Clip sniffs the container (RIFF/WAVE, fLaC, ID3 or an MPEG frame sync,
// framed Opus) and falls back to raw little-endian PCM in a caller-supplied
// format. All decoders output int32 samples in 24-bit range.
//
// Example:
//
//	clip, err := decode.Clip(payload, decode.DefaultRawFormat)
//	fmt.Println(clip.Format.Codec, clip.Duration())
package decode
