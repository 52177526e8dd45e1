package quicksocket

import "quicksocket/internal/wire"

// Message is one text or binary WebSocket application message.
type Message = wire.Message

// Kind tags a Message as text or binary.
type Kind = wire.Kind

const (
	// KindText marks UTF-8 text payloads.
	KindText = wire.KindText
	// KindBinary marks opaque binary payloads.
	KindBinary = wire.KindBinary
)

// Text builds a text message.
func Text(s string) Message { return wire.Text(s) }

// Binary builds a binary message holding a copy of b.
func Binary(b []byte) Message { return wire.Binary(b) }
