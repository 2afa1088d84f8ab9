// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts clips between sample rates and channel layouts
// Package resample provides sample rate conversion for decoded clips.
//
// Example:
//
//	out := resample.Convert(clip, 48000, 2)
package resample
