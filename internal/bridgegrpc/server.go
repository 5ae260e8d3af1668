package bridgegrpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/noamisr/maestro/internal/remote"
	"github.com/noamisr/maestro/schema"
	"pkt.systems/pslog"
)

// Source delivers channel events to forward. *eventbus.Events satisfies it.
type Source interface {
	Subscribe(ctx context.Context, channel schema.Channel) (<-chan schema.EventMessage, func(), error)
}

// Retainer reports the latest message of a channel. *eventbus.Events
// retains the connection channels.
type Retainer interface {
	Last(channel schema.Channel) (schema.EventMessage, bool)
}

// SubscribedHeader is sent once every requested channel is attached.
const SubscribedHeader = "maestro-subscribed"

// Server serves an engine invoker and event source as the bridge service,
// alongside grpc.health.v1 statuses for the engine and the sidecar.
type Server struct {
	invoker remote.Invoker
	source  Source
	logger  pslog.Logger
	health  *health.Server

	closing   chan struct{}
	closeOnce sync.Once
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server logger.
func WithServerLogger(logger pslog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer constructs a Server. Both health services start NOT_SERVING.
func NewServer(invoker remote.Invoker, source Source, opts ...ServerOption) *Server {
	s := &Server{
		invoker: invoker,
		source:  source,
		logger:  pslog.Ctx(context.Background()),
		health:  health.NewServer(),
		closing: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.health.SetServingStatus(HealthEngine, healthpb.HealthCheckResponse_NOT_SERVING)
	s.health.SetServingStatus(HealthSidecar, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Register attaches the bridge and health services to reg.
func (s *Server) Register(reg grpc.ServiceRegistrar) {
	RegisterBridgeServer(reg, s)
	healthpb.RegisterHealthServer(reg, s.health)
}

// WatchHealth mirrors the source's connection channels into the health
// statuses until ctx is done. Subscriptions are attached before it returns.
func (s *Server) WatchHealth(ctx context.Context) error {
	services := map[schema.Channel]string{
		schema.ChannelEngineConnection:  HealthEngine,
		schema.ChannelSidecarConnection: HealthSidecar,
	}
	for channel, service := range services {
		stream, cancel, err := s.source.Subscribe(ctx, channel)
		if err != nil {
			return err
		}
		go func(service string, stream <-chan schema.EventMessage, cancel func()) {
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-stream:
					if !ok {
						return
					}
					s.setHealth(service, msg)
				}
			}
		}(service, stream, cancel)
		// Seed from the retained status when the engine connected earlier.
		if retainer, ok := s.source.(Retainer); ok {
			if msg, ok := retainer.Last(channel); ok {
				s.setHealth(service, msg)
			}
		}
	}
	return nil
}

func (s *Server) setHealth(service string, msg schema.EventMessage) {
	var up bool
	if err := json.Unmarshal(msg.Payload, &up); err != nil {
		s.logger.Warn("bridgegrpc health payload invalid", "service", service, "err", err)
		return
	}
	next := healthpb.HealthCheckResponse_NOT_SERVING
	if up {
		next = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, next)
	s.logger.Debug("bridgegrpc health updated", "service", service, "status", next.String())
}

// Serve runs a gRPC server on lis until ctx is done. Open subscriptions are
// ended with Unavailable so the graceful stop does not wait on them.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	s.Register(srv)
	s.logger.Info("bridgegrpc serving", "addr", lis.Addr().String())
	go func() {
		<-ctx.Done()
		s.closeOnce.Do(func() { close(s.closing) })
		s.health.Shutdown()
		srv.GracefulStop()
	}()
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Invoke implements BridgeServer.
func (s *Server) Invoke(ctx context.Context, in *structpb.Struct) (*structpb.Value, error) {
	op, args := parseInvoke(in)
	if op == "" {
		return nil, status.Error(codes.InvalidArgument, "op is required")
	}
	var reply json.RawMessage
	if err := s.invoker.Invoke(ctx, op, args, &reply); err != nil {
		s.logger.Debug("bridgegrpc invoke failed", "op", op, "err", err)
		return nil, statusFromError(err)
	}
	out, err := toValue(reply)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return out, nil
}

// Subscribe implements BridgeServer. Events from each channel keep their
// order; channels are interleaved as they arrive.
func (s *Server) Subscribe(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	channels, err := parseSubscribe(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	ctx, stop := context.WithCancel(stream.Context())
	merged := make(chan schema.EventMessage)
	var wg sync.WaitGroup
	var cancels []func()
	defer func() {
		stop()
		for _, cancel := range cancels {
			cancel()
		}
		wg.Wait()
	}()
	for _, channel := range channels {
		events, cancel, err := s.source.Subscribe(ctx, channel)
		if err != nil {
			return status.Error(codes.Internal, err.Error())
		}
		cancels = append(cancels, cancel)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range events {
				select {
				case merged <- msg:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	if err := stream.SendHeader(metadata.Pairs(SubscribedHeader, strconv.Itoa(len(channels)))); err != nil {
		return err
	}
	s.logger.Debug("bridgegrpc subscriber attached", "channels", len(channels))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.closing:
			return status.Error(codes.Unavailable, "bridge shutting down")
		case msg := <-merged:
			out, err := eventStruct(msg)
			if err != nil {
				s.logger.Warn("bridgegrpc event dropped", "channel", string(msg.Channel), "err", err)
				continue
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		}
	}
}
