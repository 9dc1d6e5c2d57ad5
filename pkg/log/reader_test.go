package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.flog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var out []Event
	for {
		event, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		out = append(out, event)
	}
}

func TestReaderIteratesEvents(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), ConnectionID: "conn-1", Direction: DirectionIn, Layer: LayerTransport},
		{Timestamp: time.Now(), ConnectionID: "conn-2", Direction: DirectionOut, Layer: LayerWire},
		{Timestamp: time.Now(), ConnectionID: "conn-3", Direction: DirectionIn, Layer: LayerService, Category: CategoryState},
	}
	path := createTestLogFile(t, events)

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	if len(read) != 3 {
		t.Fatalf("got %d events, want 3", len(read))
	}
	for i, want := range []string{"conn-1", "conn-2", "conn-3"} {
		if read[i].ConnectionID != want {
			t.Errorf("event %d: got %q, want %q", i, read[i].ConnectionID, want)
		}
	}
}

func TestFilteredReader(t *testing.T) {
	base := time.Now()
	events := []Event{
		{Timestamp: base, ConnectionID: "a", Direction: DirectionIn, Layer: LayerWire, Service: "1234.5678"},
		{Timestamp: base.Add(time.Second), ConnectionID: "a", Direction: DirectionOut, Layer: LayerWire, Service: "1235.5678"},
		{Timestamp: base.Add(2 * time.Second), ConnectionID: "b", Direction: DirectionIn, Layer: LayerTransport},
	}
	path := createTestLogFile(t, events)

	in := DirectionIn
	wireLayer := LayerWire
	end := base.Add(1500 * time.Millisecond)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 3},
		{"connection", Filter{ConnectionID: "a"}, 2},
		{"direction", Filter{Direction: &in}, 2},
		{"layer", Filter{Layer: &wireLayer}, 2},
		{"service", Filter{Service: "1235.5678"}, 1},
		{"time end", Filter{TimeEnd: &end}, 2},
		{"combined", Filter{ConnectionID: "a", Direction: &in}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatalf("NewFilteredReader failed: %v", err)
			}
			defer reader.Close()

			if got := len(readAll(t, reader)); got != tt.want {
				t.Errorf("got %d events, want %d", got, tt.want)
			}
		})
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "missing.flog")); err == nil {
		t.Error("expected error for missing file")
	}
}
