// ABOUTME: Audio encoder package for encoding PCM to payload formats
// ABOUTME: Provides Encoder interface plus PCM, WAV and framed Opus output
// Package encode renders PCM clips into payloads the decode package can read.
//
// Supports: raw PCM (16-bit and 24-bit), WAV, framed Opus.
//
// Example:
//
//	clip := encode.Tone(440, 500*time.Millisecond, format)
//	payload, err := encode.EncodeWAV(clip)
package encode
