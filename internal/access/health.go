package access

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"pollhub.org/internal/obs"
)

// Readiness reports whether backing stores are reachable.
type Readiness interface {
	Check(ctx context.Context) error
}

// SyncHealth sets the serving status of the access service and of the
// overall server from one readiness probe.
func SyncHealth(ctx context.Context, hs *health.Server, r Readiness) error {
	st := healthpb.HealthCheckResponse_SERVING
	err := r.Check(ctx)
	if err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	obs.SetReady(err == nil)
	hs.SetServingStatus("", st)
	hs.SetServingStatus(ServiceName, st)
	return err
}

// WatchHealth re-runs SyncHealth every interval until ctx is done.
func WatchHealth(ctx context.Context, hs *health.Server, r Readiness, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	log := obs.Logger().WithField("component", "access")
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		probeCtx, cancel := context.WithTimeout(ctx, interval/2)
		if err := SyncHealth(probeCtx, hs, r); err != nil {
			log.WithError(err).Warn("readiness check failed")
		}
		cancel()
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-t.C:
		}
	}
}
