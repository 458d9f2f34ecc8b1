package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/miradorstack/mirador-utilization/internal/config"
)

// Server hosts the UtilizationEngine service next to the standard health service.
type Server struct {
	cfg      config.ServerConfig
	grpc     *grpc.Server
	listener net.Listener
	health   *health.Server
}

// NewServer listens on cfg.Address and registers service.
func NewServer(cfg config.ServerConfig, service UtilizationEngineServer, opts ...grpc.ServerOption) (*Server, error) {
	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Address, err)
	}
	return NewServerWithListener(cfg, lis, service, opts...), nil
}

// NewServerWithListener registers service on a caller-owned listener. Caller options
// are applied after the metrics and recovery interceptors.
func NewServerWithListener(cfg config.ServerConfig, lis net.Listener, service UtilizationEngineServer, opts ...grpc.ServerOption) *Server {
	grpc_prometheus.EnableHandlingTimeHistogram()
	base := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor, recoverUnary),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}
	srv := grpc.NewServer(append(base, opts...)...)
	RegisterUtilizationEngineServer(srv, service)
	grpc_prometheus.Register(srv)

	hs := health.NewServer()
	for _, name := range []string{"", ServiceName} {
		hs.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
	healthpb.RegisterHealthServer(srv, hs)

	return &Server{cfg: cfg, grpc: srv, listener: lis, health: hs}
}

// recoverUnary turns a handler panic into codes.Internal so one bad request cannot
// take the process down.
func recoverUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panic",
				slog.String("method", info.FullMethod),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			resp, err = nil, status.Error(codes.Internal, "internal error")
		}
	}()
	return handler(ctx, req)
}

// Start blocks serving requests. It returns nil once the server has been stopped.
func (s *Server) Start() error {
	if s.grpc == nil || s.listener == nil {
		return errors.New("server not initialised")
	}
	if err := s.grpc.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Shutdown reports NOT_SERVING to health probes, drains in-flight calls and forces a
// stop when ctx expires first.
func (s *Server) Shutdown(ctx context.Context) {
	if s.grpc == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		s.grpc.GracefulStop()
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		s.grpc.Stop()
		<-drained
	}
}

// Address is the bound listener address.
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// GracefulTimeout bounds Shutdown in main.
func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}
