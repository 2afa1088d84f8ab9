// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides Output interface with oto and null implementations
// Package output provides audio playback backends.
//
// Oto drives the system audio device through ebitengine/oto. Null accepts
// samples without a device, optionally pacing writes in real time, and is
// used for headless hosts and tests.
//
// Example:
//
//	out := output.NewOto(logger)
//	err := out.Open(48000, 2)
//	err = out.Write(samples)
package output
