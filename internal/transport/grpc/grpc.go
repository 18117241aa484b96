// Package grpc implements the gRPC transport for parley.
//
// The service is described by hand and carried with a JSON codec (content
// subtype "json"), so clients need no generated stubs: they call
// /parley.v1.Assistant/<Method> with grpc.CallContentSubtype("json") and
// JSON-encodable request and reply values. The standard grpc.health.v1 service
// is registered alongside it.
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/nadzzz/parley/internal/coordinator"
	"github.com/nadzzz/parley/internal/transport"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "parley.v1.Assistant"

// ContentSubtype selects the JSON codec on both ends of a call.
const ContentSubtype = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return ContentSubtype }

// SubmitRequest carries a typed utterance.
type SubmitRequest struct {
	Text string `json:"text"`
}

// AutoContinueRequest toggles hands-free mode.
type AutoContinueRequest struct {
	Enabled bool `json:"enabled"`
}

// Empty is the request or reply of calls that carry nothing.
type Empty struct{}

// Transport implements transport.Transport over gRPC.
type Transport struct {
	port   int
	server *grpc.Server
	health *health.Server
}

// New creates a new gRPC transport on the given port.
func New(port int) *Transport {
	return &Transport{port: port}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "grpc" }

// Server builds a grpc.Server exposing a. It is separate from Listen so tests
// can serve it on an in-memory listener.
func (t *Transport) Server(a transport.Assistant, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	s.RegisterService(&serviceDesc, &service{assistant: a})

	t.health = health.NewServer()
	healthpb.RegisterHealthServer(s, t.health)
	t.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	t.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	t.server = s
	return s
}

// Listen starts the gRPC server and serves requests from a.
func (t *Transport) Listen(ctx context.Context, a transport.Assistant) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	s := t.Server(a)

	slog.Info("grpc transport listening", "port", t.port)

	go func() {
		<-ctx.Done()
		slog.Info("grpc transport shutting down")
		_ = t.Close()
	}()

	return s.Serve(lis)
}

// Close gracefully stops the gRPC server.
func (t *Transport) Close() error {
	if t.health != nil {
		t.health.Shutdown()
	}
	if t.server != nil {
		t.server.GracefulStop()
	}
	return nil
}

// assistantServer is the handler type checked by RegisterService.
type assistantServer interface {
	Submit(context.Context, *SubmitRequest) (*coordinator.Snapshot, error)
	Cancel(context.Context, *Empty) (*Empty, error)
	ToggleMic(context.Context, *Empty) (*coordinator.Snapshot, error)
	SetAutoContinue(context.Context, *AutoContinueRequest) (*Empty, error)
	Reset(context.Context, *Empty) (*Empty, error)
	Snapshot(context.Context, *Empty) (*coordinator.Snapshot, error)
	Watch(*Empty, grpc.ServerStream) error
}

type service struct {
	assistant transport.Assistant
}

func (s *service) Submit(_ context.Context, req *SubmitRequest) (*coordinator.Snapshot, error) {
	if err := s.assistant.Submit(req.Text); err != nil {
		return nil, toStatus(err)
	}
	snap := s.assistant.Snapshot()
	return &snap, nil
}

func (s *service) Cancel(context.Context, *Empty) (*Empty, error) {
	s.assistant.Cancel()
	return &Empty{}, nil
}

func (s *service) ToggleMic(context.Context, *Empty) (*coordinator.Snapshot, error) {
	snap, err := s.assistant.ToggleMic()
	if err != nil {
		return nil, toStatus(err)
	}
	return &snap, nil
}

func (s *service) SetAutoContinue(_ context.Context, req *AutoContinueRequest) (*Empty, error) {
	s.assistant.SetAutoContinue(req.Enabled)
	return &Empty{}, nil
}

func (s *service) Reset(context.Context, *Empty) (*Empty, error) {
	s.assistant.Reset()
	return &Empty{}, nil
}

func (s *service) Snapshot(context.Context, *Empty) (*coordinator.Snapshot, error) {
	snap := s.assistant.Snapshot()
	return &snap, nil
}

// Watch streams every snapshot until the client goes away or the assistant
// closes.
func (s *service) Watch(_ *Empty, stream grpc.ServerStream) error {
	snaps, unsubscribe := s.assistant.Subscribe(8)
	defer unsubscribe()

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			if err := stream.SendMsg(&snap); err != nil {
				return err
			}
		}
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, coordinator.ErrBlankInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, coordinator.ErrTurnInFlight):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, coordinator.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func unary[Req any, Resp any](method string, call func(assistantServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(assistantServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(assistantServer), ctx, req.(*Req))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*assistantServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Submit", assistantServer.Submit),
		unary("Cancel", assistantServer.Cancel),
		unary("ToggleMic", assistantServer.ToggleMic),
		unary("SetAutoContinue", assistantServer.SetAutoContinue),
		unary("Reset", assistantServer.Reset),
		unary("Snapshot", assistantServer.Snapshot),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(Empty)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(assistantServer).Watch(in, stream)
			},
		},
	},
	Metadata: "parley/v1/assistant",
}
