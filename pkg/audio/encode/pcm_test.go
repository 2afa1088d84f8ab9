// ABOUTME: Tests for raw PCM payload encoding
// ABOUTME: Checks byte layouts per bit depth and the decode round trip
package encode

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/harperreed/seqplay/pkg/audio"
	"github.com/harperreed/seqplay/pkg/audio/decode"
)

func TestNewPCMFormats(t *testing.T) {
	tests := []struct {
		name    string
		format  audio.Format
		wantErr string
	}{
		{"16-bit", audio.Format{Codec: audio.CodecPCM, BitDepth: 16}, ""},
		{"24-bit", audio.Format{Codec: audio.CodecPCM, BitDepth: 24}, ""},
		{"32-bit", audio.Format{Codec: audio.CodecPCM, BitDepth: 32}, ""},
		{"12-bit", audio.Format{Codec: audio.CodecPCM, BitDepth: 12}, "unsupported bit depth"},
		{"wrong codec", audio.Format{Codec: audio.CodecWAV, BitDepth: 16}, "invalid codec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPCM(tt.format)
			if tt.wantErr == "" && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tt.wantErr)) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPCMEncodeLayouts(t *testing.T) {
	tests := []struct {
		name     string
		bitDepth int
		samples  []int32
		want     []byte
	}{
		{"16-bit drops low byte", 16, []int32{0x1234AB, -0x100}, []byte{0x34, 0x12, 0xFF, 0xFF}},
		{"24-bit", 24, []int32{0x123456, audio.Max24Bit}, []byte{0x56, 0x34, 0x12, 0xFF, 0xFF, 0x7F}},
		{"32-bit", 32, []int32{0x123456}, []byte{0x00, 0x56, 0x34, 0x12}},
		{"empty", 16, nil, []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewPCM(audio.Format{Codec: audio.CodecPCM, BitDepth: tt.bitDepth})
			if err != nil {
				t.Fatal(err)
			}
			defer enc.Close()

			got, err := enc.Encode(tt.samples)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("got % x, want % x", got, tt.want)
			}
		})
	}
}

func TestPCMRoundTrip(t *testing.T) {
	// 16-bit keeps only the top 16 of 24 bits
	samples := []int32{0, 0x7FFF00, -0x800000, 0x123400, -0x567800}

	for _, depth := range []int{16, 24, 32} {
		format := audio.Format{Codec: audio.CodecPCM, SampleRate: 16000, Channels: 1, BitDepth: depth}
		enc, err := NewPCM(format)
		if err != nil {
			t.Fatal(err)
		}
		data, err := enc.Encode(samples)
		if err != nil {
			t.Fatal(err)
		}

		clip, err := decode.DecodePCM(data, format)
		if err != nil {
			t.Fatalf("%d-bit: %v", depth, err)
		}
		if !reflect.DeepEqual(clip.Samples, samples) {
			t.Errorf("%d-bit: got %#x, want %#x", depth, clip.Samples, samples)
		}
	}
}
