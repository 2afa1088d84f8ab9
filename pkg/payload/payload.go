// ABOUTME: Boundary payload decoding for text transports
// ABOUTME: Strips data URI prefixes and decodes standard or raw base64
// Package payload turns the text form of a unit payload into bytes.
//
// Producers on text transports send payloads as base64, optionally wrapped
// in a data URI such as "data:audio/mpeg;base64,SUQz...".
package payload

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/harperreed/seqplay/pkg/sequencer"
)

// Decode converts a base64 or data URI payload to bytes.
// Blank input yields sequencer.ErrEmptyPayload; anything undecodable yields
// sequencer.ErrDecodeFailure.
func Decode(text string) ([]byte, error) {
	body, _ := StripDataURI(strings.TrimSpace(text))
	if body == "" {
		return nil, sequencer.ErrEmptyPayload
	}

	// producers sometimes wrap long base64 lines
	body = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, body)

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(body); err == nil {
			if len(data) == 0 {
				return nil, sequencer.ErrEmptyPayload
			}
			return data, nil
		}
	}

	return nil, fmt.Errorf("%w: payload is not base64", sequencer.ErrDecodeFailure)
}

// StripDataURI removes a "data:<mime>;base64," prefix and returns the mime type
func StripDataURI(text string) (body, mime string) {
	if !strings.HasPrefix(text, "data:") {
		return text, ""
	}
	comma := strings.IndexByte(text, ',')
	if comma < 0 {
		return text, ""
	}
	header := text[len("data:"):comma]
	mime, _, _ = strings.Cut(header, ";")
	return text[comma+1:], mime
}

// Encode renders bytes as a data URI, or plain base64 when mime is empty
func Encode(data []byte, mime string) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	if mime == "" {
		return encoded
	}
	return "data:" + mime + ";base64," + encoded
}
