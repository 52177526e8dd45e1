package grpc

import (
	"context"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"quicksocket/internal/logging"
)

// ServiceName is the fully qualified name of the control service.
const ServiceName = "quicksocket.control.v1.Control"

// Option customises the behaviour of the control service.
type Option func(*Service)

// WithCompressor sets the encoding applied to drained binary payloads.
func WithCompressor(compressor Compressor) Option {
	return func(s *Service) {
		if compressor != nil {
			s.compressor = compressor
		}
	}
}

// WithLogger injects the structured logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// ControlServer is the server-side contract registered under ServiceDesc.
type ControlServer interface {
	Start(context.Context, *wrapperspb.UInt32Value) (*wrapperspb.BoolValue, error)
	IsRunning(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error)
	RequestShutdown(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	LastError(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	SendMessages(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error)
	DrainClientMessages(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	DrainNewConnectionEvents(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// Service exposes a Controller to remote hosts over unary RPCs.
type Service struct {
	ctrl       Controller
	compressor Compressor
	logger     *logging.Logger
}

var _ ControlServer = (*Service)(nil)

// NewService wires the control service to the controller and optional settings.
func NewService(ctrl Controller, opts ...Option) *Service {
	service := &Service{ctrl: ctrl, compressor: identityCompressor{}, logger: logging.L()}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	service.logger = service.logger.With(logging.String("component", "grpc_control"))
	return service
}

// Register attaches the service to a gRPC server.
func Register(server grpc.ServiceRegistrar, service *Service) {
	server.RegisterService(&ServiceDesc, service)
}

func (s *Service) available() error {
	if s == nil || s.ctrl == nil {
		return status.Error(codes.Unavailable, "control service unavailable")
	}
	return nil
}

// Start binds the requested port.
func (s *Service) Start(ctx context.Context, req *wrapperspb.UInt32Value) (*wrapperspb.BoolValue, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	port := req.GetValue()
	if port > math.MaxUint16 {
		return nil, status.Errorf(codes.InvalidArgument, "port %d out of range", port)
	}
	started := s.ctrl.Start(int(port))
	s.logger.Info("remote start", logging.Int("port", int(port)), logging.Bool("started", started))
	return wrapperspb.Bool(started), nil
}

// IsRunning reports engine liveness.
func (s *Service) IsRunning(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	return wrapperspb.Bool(s.ctrl.IsRunning()), nil
}

// RequestShutdown asks the engine to stop without waiting for the drain.
func (s *Service) RequestShutdown(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	s.ctrl.RequestShutdown()
	s.logger.Info("remote shutdown requested")
	return &emptypb.Empty{}, nil
}

// LastError peeks the error slot. NotFound means nothing was recorded.
func (s *Service) LastError(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	msg, ok := s.ctrl.LastError()
	if !ok {
		return nil, status.Error(codes.NotFound, "no error recorded")
	}
	return wrapperspb.String(msg), nil
}

// SendMessages publishes the decoded batch.
func (s *Service) SendMessages(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	msgs, err := DecodeMessages(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode messages: %v", err)
	}
	return wrapperspb.Bool(s.ctrl.SendMessages(msgs)), nil
}

// DrainClientMessages returns pending client messages.
func (s *Service) DrainClientMessages(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	encoded, err := EncodeMessages(s.ctrl.DrainClientMessages(), s.compressor)
	if err != nil {
		//1.- The batch is already drained; report it rather than hide the loss.
		s.logger.Error("failed to encode drained messages", logging.Error(err))
		return nil, status.Errorf(codes.Internal, "encode messages: %v", err)
	}
	return encoded, nil
}

// DrainNewConnectionEvents returns peer addresses accepted since the last call.
func (s *Service) DrainNewConnectionEvents(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	events := s.ctrl.DrainNewConnectionEvents()
	values := make([]any, len(events))
	for i, peer := range events {
		values[i] = peer
	}
	list, err := structpb.NewList(values)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode events: %v", err)
	}
	return list, nil
}

// Stats returns the engine counters.
func (s *Service) Stats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	encoded, err := EncodeStats(s.ctrl.Stats())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode stats: %v", err)
	}
	return encoded, nil
}

// unary builds a method descriptor dispatching to call with interceptor support.
func unary[Req any, Resp any](name string, call func(ControlServer, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(ControlServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(server, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the control service for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Start", ControlServer.Start),
		unary("IsRunning", ControlServer.IsRunning),
		unary("RequestShutdown", ControlServer.RequestShutdown),
		unary("LastError", ControlServer.LastError),
		unary("SendMessages", ControlServer.SendMessages),
		unary("DrainClientMessages", ControlServer.DrainClientMessages),
		unary("DrainNewConnectionEvents", ControlServer.DrainNewConnectionEvents),
		unary("Stats", ControlServer.Stats),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "quicksocket/control/v1/control.proto",
}
