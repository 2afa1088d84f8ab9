// ABOUTME: Unit sources for the producer tool
// ABOUTME: Loads <id>.<ext> files, renders tone sequences and shuffles arrival order
package feed

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/harperreed/seqplay/pkg/audio"
	"github.com/harperreed/seqplay/pkg/audio/decode"
	"github.com/harperreed/seqplay/pkg/audio/encode"
)

// Unit is one payload ready to submit
type Unit struct {
	ID   int64
	Name string
	Mime string
	Data []byte
}

var mimeTypes = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".opus": "audio/opus",
	".pcm":  "",
	".raw":  "",
}

// ParseName extracts the unit id from a file name such as "12.wav".
// Hidden and temporary files are rejected so spool writers can rename into place.
func ParseName(name string) (int64, bool) {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".tmp") {
		return 0, false
	}
	stem, _, _ := strings.Cut(base, ".")
	id, err := strconv.ParseInt(stem, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// MimeFor returns the data URI type for a file extension, or "" for raw PCM
func MimeFor(name string) string {
	return mimeTypes[strings.ToLower(filepath.Ext(name))]
}

// ReadUnit loads one file as a unit
func ReadUnit(path string) (Unit, error) {
	id, ok := ParseName(path)
	if !ok {
		return Unit{}, fmt.Errorf("%s: name is not <id>.<ext>", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Unit{}, err
	}
	return Unit{ID: id, Name: filepath.Base(path), Mime: MimeFor(path), Data: data}, nil
}

// LoadDir reads every <id>.<ext> file in dir, ordered by id.
// Files with other names are skipped; a repeated id keeps the last file by name.
func LoadDir(dir string) ([]Unit, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	byID := make(map[int64]Unit)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := ParseName(entry.Name()); !ok {
			continue
		}
		u, err := ReadUnit(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		byID[u.ID] = u
	}

	units := make([]Unit, 0, len(byID))
	for _, u := range byID {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return units, nil
}

// Gaps lists ids missing between the first and last unit. The host waits
// on the first gap forever, so producers should fill them.
func Gaps(units []Unit, start int64) []int64 {
	var gaps []int64
	next := start
	for _, u := range units {
		if u.ID < next {
			continue
		}
		for ; next < u.ID; next++ {
			gaps = append(gaps, next)
		}
		next = u.ID + 1
	}
	return gaps
}

// Tones renders count short tones on a rising scale, starting at id start.
// codec is one of pcm, wav or opus.
func Tones(count int, start int64, codec string, length time.Duration) ([]Unit, error) {
	if count <= 0 {
		return nil, nil
	}
	if length <= 0 {
		length = 300 * time.Millisecond
	}

	format := decode.DefaultRawFormat
	if codec == audio.CodecOpus {
		format = audio.Format{Codec: audio.CodecPCM, SampleRate: 48000, Channels: 1, BitDepth: 16}
	}

	units := make([]Unit, 0, count)
	for i := 0; i < count; i++ {
		// semitone steps from A4
		freq := 440 * math.Pow(2, float64(i%12)/12)
		clip := encode.Tone(freq, length, format)

		data, mime, err := encodeClip(clip, codec)
		if err != nil {
			return nil, fmt.Errorf("tone %d: %w", i, err)
		}
		id := start + int64(i)
		units = append(units, Unit{
			ID:   id,
			Name: fmt.Sprintf("tone-%d.%s", id, codec),
			Mime: mime,
			Data: data,
		})
	}
	return units, nil
}

func encodeClip(clip *audio.Clip, codec string) ([]byte, string, error) {
	switch codec {
	case audio.CodecPCM, "":
		enc, err := encode.New(clip.Format)
		if err != nil {
			return nil, "", err
		}
		defer enc.Close()
		data, err := enc.Encode(clip.Samples)
		return data, "", err
	case audio.CodecWAV:
		data, err := encode.EncodeWAV(clip)
		return data, mimeTypes[".wav"], err
	case audio.CodecOpus:
		data, err := encode.EncodeOpusClip(clip)
		return data, mimeTypes[".opus"], err
	default:
		return nil, "", fmt.Errorf("unsupported tone codec %q", codec)
	}
}

// Shuffle permutes units within consecutive windows of the given size, so
// no unit arrives more than window-1 places from its id order.
func Shuffle(units []Unit, window int, rng *rand.Rand) []Unit {
	out := append([]Unit(nil), units...)
	if window <= 1 {
		return out
	}
	for lo := 0; lo < len(out); lo += window {
		hi := lo + window
		if hi > len(out) {
			hi = len(out)
		}
		chunk := out[lo:hi]
		rng.Shuffle(len(chunk), func(i, j int) { chunk[i], chunk[j] = chunk[j], chunk[i] })
	}
	return out
}
