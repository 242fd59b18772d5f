package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthapi "github.com/oshokin/stream-notifier/internal/api/grpc/health"
	"github.com/oshokin/stream-notifier/internal/logger"
	"github.com/oshokin/stream-notifier/internal/service/common"
)

var (
	// ErrNotServing is returned by RunHealth when the watcher reports a failure.
	ErrNotServing = errors.New("watcher is not serving")
	// errNoHealthAddress is returned when neither the settings nor the caller name an address.
	errNoHealthAddress = errors.New("no health address configured")
)

// RunHealth queries a running watcher through its health endpoint.
// An empty address falls back to health_address from the settings.
func RunHealth(ctx context.Context, opts *Options, address string, out io.Writer) error {
	ctx = logger.WithName(ctx, "health")

	if address == "" {
		cfg, err := loadConfig(ctx, opts)
		if err != nil {
			return err
		}

		address = cfg.HealthAddress
	}

	if address == "" {
		return errNoHealthAddress
	}

	client, err := common.DialHealth(ctx, address)
	if err != nil {
		return err
	}

	defer func() {
		_ = client.Close()
	}()

	serving, err := client.Check(ctx, healthapi.ServiceName)
	if err != nil {
		return err
	}

	if _, err = fmt.Fprintf(out, "%s: %s\n", address, serving); err != nil {
		return err
	}

	if serving != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", ErrNotServing, serving)
	}

	return nil
}
