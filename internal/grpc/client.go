package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"quicksocket/internal/engine"
	"quicksocket/internal/wire"
)

// Client calls a remote control service.
type Client struct {
	conn       grpc.ClientConnInterface
	compressor Compressor
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithClientCompressor sets the encoding applied to outgoing binary payloads.
func WithClientCompressor(compressor Compressor) ClientOption {
	return func(c *Client) {
		if compressor != nil {
			c.compressor = compressor
		}
	}
}

// NewClient wraps an established connection.
func NewClient(conn grpc.ClientConnInterface, opts ...ClientOption) *Client {
	client := &Client{conn: conn, compressor: identityCompressor{}}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out)
}

// Start asks the remote server to bind port.
func (c *Client) Start(ctx context.Context, port int) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.invoke(ctx, "Start", wrapperspb.UInt32(uint32(port)), out); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

// IsRunning reports remote liveness.
func (c *Client) IsRunning(ctx context.Context) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.invoke(ctx, "IsRunning", &emptypb.Empty{}, out); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

// RequestShutdown asks the remote engine to stop.
func (c *Client) RequestShutdown(ctx context.Context) error {
	return c.invoke(ctx, "RequestShutdown", &emptypb.Empty{}, new(emptypb.Empty))
}

// LastError peeks the remote error slot; ok is false when none was recorded.
func (c *Client) LastError(ctx context.Context) (string, bool, error) {
	out := new(wrapperspb.StringValue)
	err := c.invoke(ctx, "LastError", &emptypb.Empty{}, out)
	if status.Code(err) == codes.NotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return out.GetValue(), true, nil
}

// SendMessages publishes one batch on the remote server.
func (c *Client) SendMessages(ctx context.Context, msgs []wire.Message) (bool, error) {
	in, err := EncodeMessages(msgs, c.compressor)
	if err != nil {
		return false, err
	}
	out := new(wrapperspb.BoolValue)
	if err := c.invoke(ctx, "SendMessages", in, out); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

// DrainClientMessages fetches pending client messages.
func (c *Client) DrainClientMessages(ctx context.Context) ([]wire.Message, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "DrainClientMessages", &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return DecodeMessages(out)
}

// DrainNewConnectionEvents fetches peer addresses accepted since the last call.
func (c *Client) DrainNewConnectionEvents(ctx context.Context) ([]string, error) {
	out := new(structpb.ListValue)
	if err := c.invoke(ctx, "DrainNewConnectionEvents", &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	events := make([]string, 0, len(out.GetValues()))
	for _, value := range out.GetValues() {
		events = append(events, value.GetStringValue())
	}
	return events, nil
}

// Stats fetches the remote engine counters.
func (c *Client) Stats(ctx context.Context) (engine.Stats, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "Stats", &emptypb.Empty{}, out); err != nil {
		return engine.Stats{}, err
	}
	return DecodeStats(out)
}
