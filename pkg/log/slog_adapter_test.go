package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

func newJSONAdapter(buf *bytes.Buffer) *SlogAdapter {
	h := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogAdapter(slog.New(h))
}

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid JSON output: %v (%s)", err, buf.String())
	}
	return rec
}

func TestSlogAdapterMessage(t *testing.T) {
	var buf bytes.Buffer
	a := newJSONAdapter(&buf)

	a.Log(Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-1",
		Direction:    DirectionIn,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		Service:      "1234.5678",
		Message: &MessageEvent{
			Type:        wire.TypeNotification,
			Event:       0x8778,
			PayloadSize: 1,
		},
	})

	rec := decodeRecord(t, &buf)
	checks := map[string]any{
		"msg":       "protocol",
		"level":     "DEBUG",
		"conn_id":   "conn-1",
		"direction": "IN",
		"layer":     "WIRE",
		"service":   "1234.5678",
		"msg_type":  "NOTIFICATION",
	}
	for k, want := range checks {
		if rec[k] != want {
			t.Errorf("%s: got %v, want %v", k, rec[k], want)
		}
	}
}

func TestSlogAdapterStateChange(t *testing.T) {
	var buf bytes.Buffer
	a := newJSONAdapter(&buf)

	a.Log(Event{
		Layer:    LayerService,
		Category: CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   StateEntityAvailability,
			OldState: "UNAVAILABLE",
			NewState: "AVAILABLE",
		},
	})

	rec := decodeRecord(t, &buf)
	if rec["entity"] != "AVAILABILITY" {
		t.Errorf("entity: got %v", rec["entity"])
	}
	if rec["new_state"] != "AVAILABLE" {
		t.Errorf("new_state: got %v", rec["new_state"])
	}
	if _, ok := rec["conn_id"]; ok {
		t.Error("conn_id should be omitted when empty")
	}
}

func TestSlogAdapterFiltersBelowDebug(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	NewSlogAdapter(slog.New(h)).Log(Event{Layer: LayerTransport, Frame: &FrameEvent{Size: 4}})

	if buf.Len() != 0 {
		t.Errorf("expected no output at info level, got %s", buf.String())
	}
}
