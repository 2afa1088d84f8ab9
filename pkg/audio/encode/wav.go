// ABOUTME: WAV audio encoder
// ABOUTME: Wraps PCM clips in a RIFF/WAVE container using beep's wav package
package encode

import (
	"errors"
	"fmt"
	"io"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
	"github.com/harperreed/seqplay/pkg/audio"
)

// EncodeWAV renders a clip as a 16-bit WAV payload
func EncodeWAV(clip *audio.Clip) ([]byte, error) {
	channels := clip.Format.Channels
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("unsupported channel count for wav: %d", channels)
	}

	pos := 0
	frames := clip.Frames()
	streamer := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= frames {
			return 0, false
		}
		n := 0
		for n < len(samples) && pos < frames {
			left := audio.SampleToFloat(clip.Samples[pos*channels])
			right := left
			if channels == 2 {
				right = audio.SampleToFloat(clip.Samples[pos*channels+1])
			}
			samples[n] = [2]float64{left, right}
			n++
			pos++
		}
		return n, true
	})

	format := beep.Format{
		SampleRate:  beep.SampleRate(clip.Format.SampleRate),
		NumChannels: channels,
		Precision:   2,
	}

	var buf seekBuffer
	if err := wav.Encode(&buf, streamer, format); err != nil {
		return nil, fmt.Errorf("wav encode error: %w", err)
	}
	return buf.data, nil
}

// seekBuffer is an in-memory io.WriteSeeker; wav.Encode patches the
// header sizes after streaming
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if end := b.pos + len(p); end > len(b.data) {
		b.data = append(b.data, make([]byte, end-len(b.data))...)
	}
	n := copy(b.data[b.pos:], p)
	b.pos += n
	return n, nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.pos) + offset
	case io.SeekEnd:
		abs = int64(len(b.data)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	b.pos = int(abs)
	return abs, nil
}
