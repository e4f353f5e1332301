package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMessage_Decode(t *testing.T) {
	raw := []byte(`{"id":"req_1","type":"res","op":"graph-state","payload":{"a":{"uuid":"a"}}}`)
	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if msg.Op != "graph-state" || msg.Type != TypeResponse || msg.ID != "req_1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	var payload map[string]map[string]string
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("payload unmarshal failed: %v", err)
	}
	if payload["a"]["uuid"] != "a" {
		t.Fatalf("unexpected payload: %s", string(msg.Payload))
	}
}

func TestMessage_EncodeOmitsEmptyPayload(t *testing.T) {
	out, err := Encode(Message{ID: "req_2", Type: TypeRequest, Op: OpSendGraphState})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if strings.Contains(string(out), "payload") {
		t.Fatalf("payload should be omitted: %s", string(out))
	}
}

func TestDecode_RejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not-json")); err == nil {
		t.Fatal("expected decode error")
	}
}
