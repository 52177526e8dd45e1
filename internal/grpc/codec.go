package grpc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"quicksocket/internal/engine"
	"quicksocket/internal/wire"
)

// Message fields inside the "messages" list of a bridge Struct. Text data is
// the UTF-8 string itself; binary data is base64 of the payload after the
// named encoding was applied.
const (
	fieldMessages = "messages"
	fieldKind     = "kind"
	fieldData     = "data"
	fieldEncoding = "encoding"
)

// EncodeMessages packs messages into a Struct, compressing binary payloads
// with c.
func EncodeMessages(msgs []wire.Message, c Compressor) (*structpb.Struct, error) {
	if c == nil {
		c = identityCompressor{}
	}
	items := make([]any, 0, len(msgs))
	for i, msg := range msgs {
		switch msg.Kind {
		case wire.KindText:
			items = append(items, map[string]any{
				fieldKind: wire.KindText.String(),
				fieldData: string(msg.Data),
			})
		case wire.KindBinary:
			packed, err := c.Compress(msg.Data)
			if err != nil {
				return nil, fmt.Errorf("message %d: %w", i, err)
			}
			items = append(items, map[string]any{
				fieldKind:     wire.KindBinary.String(),
				fieldData:     base64.StdEncoding.EncodeToString(packed),
				fieldEncoding: c.Name(),
			})
		default:
			return nil, fmt.Errorf("message %d: unsupported kind %s", i, msg.Kind)
		}
	}
	return structpb.NewStruct(map[string]any{fieldMessages: items})
}

// DecodeMessages unpacks a Struct built by EncodeMessages.
func DecodeMessages(s *structpb.Struct) ([]wire.Message, error) {
	if s == nil {
		return nil, nil
	}
	list := s.GetFields()[fieldMessages].GetListValue()
	if list == nil {
		return nil, nil
	}
	out := make([]wire.Message, 0, len(list.GetValues()))
	for i, value := range list.GetValues() {
		fields := value.GetStructValue().GetFields()
		if fields == nil {
			return nil, fmt.Errorf("message %d: expected an object", i)
		}
		data := fields[fieldData].GetStringValue()
		switch kind := fields[fieldKind].GetStringValue(); kind {
		case wire.KindText.String():
			out = append(out, wire.Text(data))
		case wire.KindBinary.String():
			packed, err := base64.StdEncoding.DecodeString(data)
			if err != nil {
				return nil, fmt.Errorf("message %d: decode base64: %w", i, err)
			}
			c, err := CompressorFor(fields[fieldEncoding].GetStringValue())
			if err != nil {
				return nil, fmt.Errorf("message %d: %w", i, err)
			}
			raw, err := c.Decompress(packed)
			if err != nil {
				return nil, fmt.Errorf("message %d: %w", i, err)
			}
			out = append(out, wire.Message{Kind: wire.KindBinary, Data: raw})
		default:
			return nil, fmt.Errorf("message %d: unsupported kind %q", i, kind)
		}
	}
	return out, nil
}

// EncodeStats converts engine stats into a Struct using their JSON names.
func EncodeStats(stats engine.Stats) (*structpb.Struct, error) {
	raw, err := json.Marshal(stats)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}

// DecodeStats reverses EncodeStats.
func DecodeStats(s *structpb.Struct) (engine.Stats, error) {
	var stats engine.Stats
	if s == nil {
		return stats, nil
	}
	raw, err := s.MarshalJSON()
	if err != nil {
		return stats, err
	}
	err = json.Unmarshal(raw, &stats)
	return stats, err
}
