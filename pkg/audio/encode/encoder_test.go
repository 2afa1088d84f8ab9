// ABOUTME: Tests for encoder selection by codec
// ABOUTME: Checks each payload codec maps to the right sample encoder
package encode

import (
	"strings"
	"testing"

	"github.com/harperreed/seqplay/pkg/audio"
)

func TestNewByCodec(t *testing.T) {
	tests := []struct {
		name    string
		format  audio.Format
		want    string
		wantErr string
	}{
		{"pcm", audio.Format{Codec: audio.CodecPCM, SampleRate: 16000, Channels: 1, BitDepth: 16}, "*encode.PCMEncoder", ""},
		{"opus", audio.Format{Codec: audio.CodecOpus, SampleRate: 48000, Channels: 2, BitDepth: 16}, "*encode.OpusEncoder", ""},
		{"pcm bad depth", audio.Format{Codec: audio.CodecPCM, BitDepth: 8}, "", "unsupported bit depth"},
		{"wav", audio.Format{Codec: audio.CodecWAV, SampleRate: 16000, Channels: 1, BitDepth: 16}, "", "no sample encoder"},
		{"mp3", audio.Format{Codec: audio.CodecMP3}, "", "no sample encoder"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := New(tt.format)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer enc.Close()

			var got string
			switch enc.(type) {
			case *PCMEncoder:
				got = "*encode.PCMEncoder"
			case *OpusEncoder:
				got = "*encode.OpusEncoder"
			}
			if got != tt.want {
				t.Errorf("New(%s) = %T, want %s", tt.format.Codec, enc, tt.want)
			}
		})
	}
}

func TestNewPCMEncodesSamples(t *testing.T) {
	enc, err := New(audio.Format{Codec: audio.CodecPCM, SampleRate: 16000, Channels: 1, BitDepth: 16})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer enc.Close()

	data, err := enc.Encode([]int32{0, 256, -256})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) != 6 {
		t.Errorf("expected 6 bytes for three 16-bit samples, got %d", len(data))
	}
}
