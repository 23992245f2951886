package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

const defaultCallTimeout = 300 * time.Millisecond

// Guarded wraps a Provider with the adapter-boundary failure policy: a
// per-call timeout, a circuit breaker over transport faults, and conversion
// of every error into a classified fault snapshot. Code above the registry
// only ever sees snapshots.
type Guarded struct {
	Provider

	timeout time.Duration
	cb      *gobreaker.CircuitBreaker[Snapshot]
	logger  *slog.Logger
}

func newGuarded(p Provider, timeout time.Duration, logger *slog.Logger) *Guarded {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker[Snapshot](gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Guarded{Provider: p, timeout: timeout, cb: cb, logger: logger}
}

// Timeout reports the per-call budget for this provider.
func (g *Guarded) Timeout() time.Duration { return g.timeout }

// Fetch runs FetchByKey under the per-call timeout and breaker. It never
// returns an error: faults come back inside the snapshot.
func (g *Guarded) Fetch(ctx context.Context, id string) Snapshot {
	start := time.Now()

	snap, err := g.cb.Execute(func() (Snapshot, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.Provider.FetchByKey(callCtx, id)
	})
	elapsed := time.Since(start)

	if err != nil {
		fault := g.classifyCall(err)
		g.logger.Warn("store fetch failed",
			"store", g.Name(), "id", id, "reason", fault.Reason, "elapsed", elapsed)
		return Snapshot{
			Store:     g.Name(),
			Family:    g.Family(),
			NativeKey: g.KeyFor(id),
			Fault:     &fault,
			Elapsed:   elapsed,
		}
	}

	snap.Elapsed = elapsed
	return snap
}

// FetchTTL reads the cache TTL when the provider supports it. Errors degrade
// to nil: a TTL probe failure never blocks the inspection.
func (g *Guarded) FetchTTL(ctx context.Context, id string) *int64 {
	tp, ok := g.Provider.(TTLProvider)
	if !ok {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ttl, err := tp.TTL(callCtx, id)
	if err != nil {
		g.logger.Warn("ttl probe failed", "store", g.Name(), "id", id, "error", err)
		return nil
	}
	return ttl
}

// FetchVectors retrieves embedding fingerprints when the provider supports
// them. Errors degrade to nil for the same reason as FetchTTL.
func (g *Guarded) FetchVectors(ctx context.Context, id string) []VectorInfo {
	vp, ok := g.Provider.(VectorProvider)
	if !ok {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	infos, err := vp.RetrieveVector(callCtx, id)
	if err != nil {
		g.logger.Warn("vector retrieval failed", "store", g.Name(), "id", id, "error", err)
		return nil
	}
	return infos
}

func (g *Guarded) classifyCall(err error) Fault {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Fault{Reason: FaultUnavailable, Detail: "circuit breaker open"}
	}
	return classify(err)
}
