// ABOUTME: seqplay wire protocol message definitions
// ABOUTME: JSON envelopes for boundary operations plus the binary unit frame
package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	// Path is the WebSocket endpoint served by the host
	Path = "/seqplay"

	// Version is the protocol version exchanged in hello messages
	Version = 1
)

// Message types
const (
	TypeClientHello   = "client/hello"
	TypeClientGoodbye = "client/goodbye"
	TypeServerHello   = "server/hello"
	TypeServerError   = "server/error"
	TypeConfigure     = "player/configure"
	TypeEnqueue       = "player/enqueue"
	TypeClear         = "player/clear"
	TypeOutputMode    = "player/output_mode"
	TypeRelease       = "player/release"
	TypeSubscribe     = "player/subscribe"
	TypeEvent         = "player/event"
)

// Bridge-level event types, sent alongside scheduler events
const (
	EventReady    = "ready"
	EventReleased = "released"
)

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Envelope is a received message whose payload is decoded by type
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v
func (e Envelope) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: %w", e.Type, err)
	}
	return nil
}

// ClientHello is sent by producers to initiate the handshake
type ClientHello struct {
	ClientID   string      `json:"client_id"`
	Name       string      `json:"name"`
	Version    int         `json:"version"`
	DeviceInfo *DeviceInfo `json:"device_info,omitempty"`
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// ServerHello is the host's response to client/hello
type ServerHello struct {
	ServerID       string `json:"server_id"`
	Name           string `json:"name"`
	Version        int    `json:"version"`
	StartPlayID    int64  `json:"start_play_id"`
	ExpectedNextID int64  `json:"expected_next_id"`
	OutputMode     string `json:"output_mode"`
}

// ClientGoodbye is sent before a producer disconnects
type ClientGoodbye struct {
	Reason string `json:"reason"`
}

// Configure sets the start id
type Configure struct {
	StartPlayID int64 `json:"start_play_id"`
}

// Enqueue carries one unit. Payload is base64 or a base64 data URI.
type Enqueue struct {
	ID      UnitID `json:"id"`
	Payload string `json:"payload"`
}

// OutputMode selects the audio route
type OutputMode struct {
	Mode string `json:"mode"`
}

// Event is a lifecycle notification in its wire shape
type Event struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// ServerError reports a rejected message
type ServerError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// UnitID is a unit id in boundary form. It accepts JSON strings and numbers.
type UnitID string

// NumericID formats an integer id
func NumericID(id int64) UnitID {
	return UnitID(strconv.FormatInt(id, 10))
}

// UnmarshalJSON accepts "12", 12 and null
func (u *UnitID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*u = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = UnitID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("unit id must be a string or number: %w", err)
	}
	*u = UnitID(n.String())
	return nil
}

// Binary unit frame: [type:1][id:int64 BE][payload]
const (
	UnitFrameType       = 1
	UnitFrameHeaderSize = 1 + 8
)

// EncodeUnitFrame builds a binary enqueue frame
func EncodeUnitFrame(id int64, payload []byte) []byte {
	frame := make([]byte, UnitFrameHeaderSize+len(payload))
	frame[0] = UnitFrameType
	binary.BigEndian.PutUint64(frame[1:UnitFrameHeaderSize], uint64(id))
	copy(frame[UnitFrameHeaderSize:], payload)
	return frame
}

// DecodeUnitFrame parses a binary enqueue frame
func DecodeUnitFrame(frame []byte) (int64, []byte, error) {
	if len(frame) < UnitFrameHeaderSize {
		return 0, nil, fmt.Errorf("binary frame too short: %d bytes", len(frame))
	}
	if frame[0] != UnitFrameType {
		return 0, nil, fmt.Errorf("unknown binary frame type: %d", frame[0])
	}
	id := int64(binary.BigEndian.Uint64(frame[1:UnitFrameHeaderSize]))
	return id, frame[UnitFrameHeaderSize:], nil
}
