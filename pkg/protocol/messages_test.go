// ABOUTME: Tests for seqplay protocol message types
// ABOUTME: Verifies envelopes, string-or-number ids and binary unit frames
package protocol

import (
	"encoding/json"
	"testing"
)

func TestClientHelloMarshaling(t *testing.T) {
	hello := ClientHello{
		ClientID: "test-id",
		Name:     "Test Feed",
		Version:  Version,
		DeviceInfo: &DeviceInfo{
			ProductName:     "Test Product",
			Manufacturer:    "Test Mfg",
			SoftwareVersion: "0.1.0",
		},
	}

	data, err := json.Marshal(Message{Type: TypeClientHello, Payload: hello})
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if env.Type != TypeClientHello {
		t.Errorf("expected type %s, got %s", TypeClientHello, env.Type)
	}

	var decoded ClientHello
	if err := env.Decode(&decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.ClientID != "test-id" || decoded.DeviceInfo == nil {
		t.Errorf("payload mismatch: %+v", decoded)
	}
}

func TestEnvelopeMissingPayload(t *testing.T) {
	var env Envelope
	if err := json.Unmarshal([]byte(`{"type":"player/configure"}`), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var cfg Configure
	if err := env.Decode(&cfg); err == nil {
		t.Error("expected error for missing payload")
	}
}

func TestEnqueueIDForms(t *testing.T) {
	tests := []struct {
		name string
		json string
		want UnitID
	}{
		{"number", `{"id":7,"payload":"AA=="}`, "7"},
		{"string", `{"id":"7","payload":"AA=="}`, "7"},
		{"negative", `{"id":-3,"payload":""}`, "-3"},
		{"text", `{"id":"abc","payload":""}`, "abc"},
		{"null", `{"id":null,"payload":""}`, ""},
		{"missing", `{"payload":""}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg Enqueue
			if err := json.Unmarshal([]byte(tt.json), &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if msg.ID != tt.want {
				t.Errorf("expected id %q, got %q", tt.want, msg.ID)
			}
		})
	}
}

func TestEnqueueIDRejectsObjects(t *testing.T) {
	var msg Enqueue
	if err := json.Unmarshal([]byte(`{"id":{"x":1}}`), &msg); err == nil {
		t.Error("expected error for object id")
	}
}

func TestEventMarshaling(t *testing.T) {
	ev := Event{Type: "queued", Data: map[string]interface{}{"id": int64(4), "queueSize": 2}}

	data, err := json.Marshal(Message{Type: TypeEvent, Payload: ev})
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	var decoded Event
	if err := env.Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != "queued" {
		t.Errorf("expected queued, got %s", decoded.Type)
	}
	if decoded.Data["queueSize"].(float64) != 2 {
		t.Errorf("expected queueSize 2, got %v", decoded.Data["queueSize"])
	}
}

func TestUnitFrameRoundTrip(t *testing.T) {
	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	frame := EncodeUnitFrame(-42, payload)

	if len(frame) != UnitFrameHeaderSize+len(payload) {
		t.Fatalf("unexpected frame length %d", len(frame))
	}

	id, got, err := DecodeUnitFrame(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if id != -42 {
		t.Errorf("expected id -42, got %d", id)
	}
	if string(got) != string(payload) {
		t.Errorf("payload mismatch: %x", got)
	}
}

func TestUnitFrameEmptyPayload(t *testing.T) {
	id, got, err := DecodeUnitFrame(EncodeUnitFrame(9, nil))
	if err != nil || id != 9 || len(got) != 0 {
		t.Errorf("got id=%d payload=%v err=%v", id, got, err)
	}
}

func TestUnitFrameErrors(t *testing.T) {
	if _, _, err := DecodeUnitFrame([]byte{1, 0, 0}); err == nil {
		t.Error("expected error for short frame")
	}
	frame := EncodeUnitFrame(1, []byte{1})
	frame[0] = 2
	if _, _, err := DecodeUnitFrame(frame); err == nil {
		t.Error("expected error for unknown frame type")
	}
}
