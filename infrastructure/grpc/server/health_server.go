// Package server exposes the standard gRPC health service, fed by the monitor.
package server

import (
	"bourracho/contract"
	"bourracho/errors"
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

var _ contract.Worker = (*HealthServer)(nil)

// ServiceName is the health service name reported next to the overall status.
const ServiceName = "bourracho.Chat"

type healthSource interface {
	Healthy() bool
}

// HealthServer serves grpc.health.v1 and refreshes the serving status on a ticker.
type HealthServer struct {
	log      *slog.Logger
	addr     string
	source   healthSource
	interval time.Duration
	server   *grpc.Server
	health   *health.Server
}

func NewHealthServer(log *slog.Logger, addr string, source healthSource, interval time.Duration) *HealthServer {
	server := grpc.NewServer(grpc.UnaryInterceptor(ErrorInterceptor(log)))
	h := health.NewServer()
	healthpb.RegisterHealthServer(server, h)
	return &HealthServer{
		log:      log,
		addr:     addr,
		source:   source,
		interval: interval,
		server:   server,
		health:   h,
	}
}

func (s *HealthServer) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Unavailable("listen on "+s.addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve blocks until ctx is done, then stops gracefully.
func (s *HealthServer) Serve(ctx context.Context, listener net.Listener) error {
	errChan := make(chan error, 1)
	go func() {
		s.log.Info("Starting gRPC health server", "address", listener.Addr().String())
		if err := s.server.Serve(listener); err != nil && err != grpc.ErrServerStopped {
			errChan <- err
		}
	}()

	s.refresh()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			s.server.GracefulStop()
			s.log.Debug("gRPC health server stopped")
			return nil
		case err := <-errChan:
			return errors.Unavailable("grpc serve", err)
		case <-ticker.C:
			s.refresh()
		}
	}
}

func (s *HealthServer) refresh() {
	servingStatus := healthpb.HealthCheckResponse_SERVING
	if !s.source.Healthy() {
		servingStatus = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", servingStatus)
	s.health.SetServingStatus(ServiceName, servingStatus)
}

// ErrorInterceptor turns domain errors into gRPC statuses.
func ErrorInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}
		if _, ok := status.FromError(err); ok {
			return resp, err
		}
		code := errors.GRPCCode(err)
		log.Debug("gRPC call failed", "method", info.FullMethod, "code", code, "error", err)
		return resp, status.Error(code, err.Error())
	}
}
