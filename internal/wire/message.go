package wire

import (
	"fmt"

	"github.com/gorilla/websocket"
)

// Kind distinguishes application payload encodings.
type Kind uint8

const (
	KindText Kind = iota + 1
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Message is a single text or binary application message.
type Message struct {
	Kind Kind
	Data []byte
}

// Batch is an ordered group of messages published together.
type Batch []Message

// Text builds a text message.
func Text(s string) Message { return Message{Kind: KindText, Data: []byte(s)} }

// Binary builds a binary message. The payload is copied.
func Binary(b []byte) Message { return Message{Kind: KindBinary, Data: append([]byte(nil), b...)} }

// IsText reports whether the message carries text.
func (m Message) IsText() bool { return m.Kind == KindText }

// String returns the payload as a string regardless of kind.
func (m Message) String() string { return string(m.Data) }

// Valid reports whether the message kind is one of the supported data kinds.
func (m Message) Valid() bool { return m.Kind == KindText || m.Kind == KindBinary }

// FrameType maps the message kind onto the websocket opcode.
func (m Message) FrameType() int {
	if m.Kind == KindBinary {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

// FromFrame converts a received frame into a Message. Control frames are
// rejected so they never reach the host.
func FromFrame(frameType int, data []byte) (Message, bool) {
	switch frameType {
	case websocket.TextMessage:
		return Message{Kind: KindText, Data: data}, true
	case websocket.BinaryMessage:
		return Message{Kind: KindBinary, Data: data}, true
	default:
		return Message{}, false
	}
}

// Clone deep-copies the batch so callers may reuse their slices.
func (b Batch) Clone() Batch {
	if b == nil {
		return nil
	}
	out := make(Batch, len(b))
	for i, msg := range b {
		out[i] = Message{Kind: msg.Kind, Data: append([]byte(nil), msg.Data...)}
	}
	return out
}

// Bytes returns the summed payload size of the batch.
func (b Batch) Bytes() int {
	total := 0
	for _, msg := range b {
		total += len(msg.Data)
	}
	return total
}
