package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// Pinger is satisfied by pgxpool.Pool and redis.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingProbe probes a component over its Ping method.
func PingProbe(p Pinger) ProbeFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// GoroutineProbe reports unhealthy when the goroutine count exceeds the
// threshold. Useful as a liveness probe to catch leaks.
func GoroutineProbe(threshold int) ProbeFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}
