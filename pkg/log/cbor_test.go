package log

import (
	"testing"
	"time"

	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

func TestEventRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

	tests := []struct {
		name  string
		event Event
	}{
		{
			name: "frame",
			event: Event{
				Timestamp:    ts,
				ConnectionID: "conn-1",
				Direction:    DirectionOut,
				Layer:        LayerTransport,
				Category:     CategoryMessage,
				Frame:        &FrameEvent{Size: 12, Data: []byte{0, 0, 0, 8}},
			},
		},
		{
			name: "message",
			event: Event{
				Timestamp: ts,
				Direction: DirectionIn,
				Layer:     LayerWire,
				Category:  CategoryMessage,
				LocalRole: RoleClient,
				Service:   "1234.5678",
				Message: &MessageEvent{
					Type:        wire.TypeNotification,
					Service:     0x1234,
					Instance:    0x5678,
					Event:       0x8778,
					PayloadSize: 1,
				},
			},
		},
		{
			name: "state change",
			event: Event{
				Timestamp: ts,
				Layer:     LayerService,
				Category:  CategoryState,
				LocalRole: RoleService,
				StateChange: &StateChangeEvent{
					Entity:   StateEntitySubscription,
					OldState: "NONE",
					NewState: "ACTIVE",
				},
			},
		},
		{
			name: "error",
			event: Event{
				Timestamp: ts,
				Layer:     LayerWire,
				Category:  CategoryError,
				Error:     &ErrorEventData{Layer: LayerWire, Message: "bad frame", Context: "decode"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeEvent(tt.event)
			if err != nil {
				t.Fatalf("EncodeEvent failed: %v", err)
			}
			got, err := DecodeEvent(data)
			if err != nil {
				t.Fatalf("DecodeEvent failed: %v", err)
			}
			if !got.Timestamp.Equal(tt.event.Timestamp) {
				t.Errorf("Timestamp: got %v, want %v", got.Timestamp, tt.event.Timestamp)
			}
			if got.Layer != tt.event.Layer || got.Category != tt.event.Category || got.Direction != tt.event.Direction {
				t.Errorf("header mismatch: got %+v", got)
			}
			if (got.Frame == nil) != (tt.event.Frame == nil) {
				t.Errorf("Frame presence mismatch")
			}
			if (got.Message == nil) != (tt.event.Message == nil) {
				t.Errorf("Message presence mismatch")
			}
			if tt.event.Message != nil && *got.Message != *tt.event.Message {
				t.Errorf("Message: got %+v, want %+v", *got.Message, *tt.event.Message)
			}
			if tt.event.StateChange != nil && *got.StateChange != *tt.event.StateChange {
				t.Errorf("StateChange: got %+v, want %+v", *got.StateChange, *tt.event.StateChange)
			}
			if tt.event.Error != nil && *got.Error != *tt.event.Error {
				t.Errorf("Error: got %+v, want %+v", *got.Error, *tt.event.Error)
			}
		})
	}
}

func TestNewMessageEvent(t *testing.T) {
	key := wire.ServiceKey{Service: 0x1234, Instance: 0x5678}
	msg := wire.NewNotification(key, 0x8778, []byte{1, 2, 3})

	ev := NewMessageEvent(msg)
	if ev.Type != wire.TypeNotification {
		t.Errorf("Type: got %v", ev.Type)
	}
	if ev.PayloadSize != 3 {
		t.Errorf("PayloadSize: got %d, want 3", ev.PayloadSize)
	}
	if ev.Event != 0x8778 {
		t.Errorf("Event: got %#x", ev.Event)
	}
}

func TestEnumStrings(t *testing.T) {
	if DirectionIn.String() != "IN" || DirectionOut.String() != "OUT" {
		t.Error("direction strings")
	}
	if LayerService.String() != "SERVICE" {
		t.Errorf("LayerService: got %q", LayerService.String())
	}
	if CategoryError.String() != "ERROR" {
		t.Errorf("CategoryError: got %q", CategoryError.String())
	}
	if RoleClient.String() != "CLIENT" {
		t.Errorf("RoleClient: got %q", RoleClient.String())
	}
	if StateEntityAvailability.String() != "AVAILABILITY" {
		t.Errorf("StateEntityAvailability: got %q", StateEntityAvailability.String())
	}
	if l, ok := ParseLayer("wire"); !ok || l != LayerWire {
		t.Errorf("ParseLayer(wire) = %v, %v", l, ok)
	}
	if _, ok := ParseDirection("sideways"); ok {
		t.Error("ParseDirection accepted an invalid value")
	}
}
