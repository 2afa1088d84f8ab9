// ABOUTME: Tests for payload sniffing and clip decoding
// ABOUTME: Covers container detection, raw PCM fallback and malformed payloads
package decode

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/harperreed/seqplay/pkg/audio"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"wav", []byte("RIFF\x24\x00\x00\x00WAVEfmt "), audio.CodecWAV},
		{"riff without wave", []byte("RIFF\x24\x00\x00\x00AVI LIST"), audio.CodecPCM},
		{"flac", []byte("fLaC\x00\x00\x00\x22"), audio.CodecFLAC},
		{"id3 tagged mp3", []byte("ID3\x04\x00"), audio.CodecMP3},
		{"mpeg frame sync", []byte{0xFF, 0xFB, 0x90, 0x00}, audio.CodecMP3},
		{"framed opus", []byte("OPKT\x00\x00\xbb\x80\x02"), audio.CodecOpus},
		{"raw pcm", []byte{0x01, 0x02, 0x03, 0x04}, audio.CodecPCM},
		{"single byte", []byte{0xFF}, audio.CodecPCM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.data); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestClipRawPCMDefaults(t *testing.T) {
	// 100ms of 16kHz mono 16-bit
	data := make([]byte, 3200)
	for i := 0; i < 1600; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(i)))
	}

	clip, err := Clip(data, audio.Format{})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if clip.Format != DefaultRawFormat {
		t.Errorf("expected default raw format, got %+v", clip.Format)
	}
	if clip.Duration() != 100*time.Millisecond {
		t.Errorf("expected 100ms, got %v", clip.Duration())
	}
	if clip.Samples[10] != audio.SampleFromInt16(10) {
		t.Errorf("sample 10 decoded as %d", clip.Samples[10])
	}
}

func TestClipRawPCMCustomFormat(t *testing.T) {
	format := audio.Format{SampleRate: 48000, Channels: 2, BitDepth: 24}
	// two frames plus a stray byte
	data := make([]byte, 2*2*3+1)

	clip, err := Clip(data, format)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if clip.Frames() != 2 {
		t.Errorf("expected 2 frames, got %d", clip.Frames())
	}
	if clip.Format.Codec != audio.CodecPCM || clip.Format.BitDepth != 24 {
		t.Errorf("unexpected format %+v", clip.Format)
	}
}

func TestClipErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"too short for a sample", []byte{0x01}},
		{"bad mp3", []byte("ID3 this is not an mp3 stream")},
		{"bad flac", []byte("fLaC not really")},
		{"bad wav", []byte("RIFF\x04\x00\x00\x00WAVE")},
		{"truncated opus header", []byte("OPKT\x00")},
		{"opus packet overrun", append([]byte("OPKT\x00\x00\xbb\x80\x01"), 0x00, 0x20, 0x01)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Clip(tt.data, audio.Format{}); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
