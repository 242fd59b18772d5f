package health

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/stream-notifier/internal/logger"
)

// ServiceName is the health service name reported for the poll loop.
const ServiceName = "stream_notifier.Watcher"

// Server serves the gRPC health protocol.
type Server struct {
	// health keeps the serving status of every service.
	health *grpchealth.Server
	// grpcServer is the transport the health service is registered on.
	grpcServer *grpc.Server
}

// NewServer creates a health server with the watcher status set to UNKNOWN.
func NewServer() *Server {
	health := grpchealth.NewServer()
	health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_UNKNOWN)

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, health)

	return &Server{
		health:     health,
		grpcServer: grpcServer,
	}
}

// SetServing reports the outcome of the last fetch. Safe for concurrent use.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}

	s.health.SetServingStatus(ServiceName, status)
}

// Listen opens a TCP listener on address.
func Listen(ctx context.Context, address string) (net.Listener, error) {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", address, err)
	}

	return lis, nil
}

// Serve blocks until ctx is canceled or the server fails.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	ctx = logger.WithName(ctx, "health")

	logger.InfoKV(ctx, "Health server listening", "listen_address", lis.Addr().String())

	// Done channel is closed after GracefulStop finishes so Serve returns
	// only once the server has fully stopped.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()

		// Watchers get NOT_SERVING before the connections go away.
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		close(done)
	}()

	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "Health server stopped")

	return nil
}
