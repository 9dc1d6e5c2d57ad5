package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	key := ServiceKey{Service: 0x1234, Instance: 0x5678}

	tests := []struct {
		name string
		msg  *Message
	}{
		{
			name: "offer",
			msg: NewOffer(
				ServiceEntry{Service: 0x1234, Instance: 0x5678},
				ServiceEntry{Service: 0x1235, Instance: 0x5678, Major: 1, Minor: 2},
			),
		},
		{
			name: "subscribe",
			msg:  NewSubscribe(key, 0x4465, AnyMajor),
		},
		{
			name: "unsubscribe",
			msg:  NewUnsubscribe(key, 0x4465),
		},
		{
			name: "notification",
			msg:  NewNotification(key, 0x8778, []byte{7}),
		},
		{
			name: "nack",
			msg: &Message{
				Type:       TypeSubscribeNack,
				Service:    key.Service,
				Instance:   key.Instance,
				Eventgroup: 0x4465,
				Reason:     "not offered",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			decoded, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if decoded.Type != tt.msg.Type {
				t.Errorf("Type = %s, want %s", decoded.Type, tt.msg.Type)
			}
			if decoded.Key() != tt.msg.Key() {
				t.Errorf("Key = %s, want %s", decoded.Key(), tt.msg.Key())
			}
			if decoded.Eventgroup != tt.msg.Eventgroup {
				t.Errorf("Eventgroup = %04x, want %04x", decoded.Eventgroup, tt.msg.Eventgroup)
			}
			if !bytes.Equal(decoded.Payload, tt.msg.Payload) {
				t.Errorf("Payload = %v, want %v", decoded.Payload, tt.msg.Payload)
			}
			if len(decoded.Entries) != len(tt.msg.Entries) {
				t.Fatalf("Entries len = %d, want %d", len(decoded.Entries), len(tt.msg.Entries))
			}
			for i := range decoded.Entries {
				if decoded.Entries[i] != tt.msg.Entries[i] {
					t.Errorf("Entries[%d] = %+v, want %+v", i, decoded.Entries[i], tt.msg.Entries[i])
				}
			}
		})
	}
}

func TestEncodeRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
		want error
	}{
		{"unknown type", &Message{Type: 99}, ErrInvalidType},
		{"zero type", &Message{}, ErrInvalidType},
		{"empty offer", NewOffer(), ErrNoEntries},
		{"wildcard subscribe", NewSubscribe(ServiceKey{Service: AnyService, Instance: 1}, 1, 0), ErrWildcardAddress},
		{"wildcard event", NewNotification(ServiceKey{Service: 1, Instance: 1}, AnyMethod, nil), ErrWildcardAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.msg)
			if !errors.Is(err, tt.want) {
				t.Errorf("Encode error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := Decode([]byte{0xff, 0x00, 0x13}); err == nil {
		t.Error("Decode of garbage should fail")
	}
}

func TestPeekType(t *testing.T) {
	data, err := EncodePing(42)
	if err != nil {
		t.Fatalf("EncodePing failed: %v", err)
	}

	typ, err := PeekType(data)
	if err != nil {
		t.Fatalf("PeekType failed: %v", err)
	}
	if typ != TypePing {
		t.Errorf("PeekType = %s, want PING", typ)
	}
	if !typ.IsControl() {
		t.Error("PING should be a control message")
	}

	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Sequence != 42 {
		t.Errorf("Sequence = %d, want 42", msg.Sequence)
	}
}

func TestEncodingIsDeterministic(t *testing.T) {
	msg := NewNotification(ServiceKey{Service: 0x1234, Instance: 0x5678}, 0x8778, []byte{1, 2, 3})

	a, err := Encode(msg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encode(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("encoding the same message twice produced different bytes")
	}
}
