// Package source defines the contract every external feed adapter
// implements, plus the health bookkeeping shared by all of them.
//
// An adapter normalizes one feed's idiosyncratic wire format into the
// canonical hazard records. Adapters perform network I/O only; they
// never write to the persistent store, and they never let a feed
// failure escape as a panic or crash the caller.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coastwatch-io/coastwatch/internal/geo"
	"github.com/coastwatch-io/coastwatch/internal/hazard"
)

// Default timeouts for adapter network operations. Liveness probes are
// kept short so an unavailable source is skipped quickly; fetches get a
// longer budget because feed responses can be large.
const (
	ProbeTimeout = 5 * time.Second
	FetchTimeout = 12 * time.Second
)

// ErrUnavailable is returned by adapters whose upstream feed cannot be
// reached or answered with a non-2xx status.
var ErrUnavailable = errors.New("source unavailable")

// Error wraps a failure with the name of the source it came from, so
// the aggregator can log and count per-source without unwrapping.
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// FetchOptions narrow a hazard-event fetch. An adapter whose feed
// cannot apply a filter natively must apply it client-side after
// fetching (see Filter).
type FetchOptions struct {
	MinMagnitude float64
	WindowHours  int
	Limit        int
	Bounds       *geo.BoundingBox
}

// Window returns the time window as a duration, defaulting to 24h.
func (o FetchOptions) Window() time.Duration {
	if o.WindowHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(o.WindowHours) * time.Hour
}

// Adapter is the base contract shared by all feed adapters.
type Adapter interface {
	// Name is the stable source name recorded in event provenance.
	Name() string

	// IsAvailable is a lightweight liveness probe bounded by ProbeTimeout.
	IsAvailable(ctx context.Context) bool

	// Health returns the adapter's current health snapshot.
	Health() HealthStatus
}

// HazardAdapter fetches seismic events from one feed.
type HazardAdapter interface {
	Adapter
	FetchHazardEvents(ctx context.Context, opts FetchOptions) ([]hazard.Event, error)
}

// TsunamiAdapter fetches tsunami alerts from one feed. Some adapters
// (JMA) implement both HazardAdapter and TsunamiAdapter.
type TsunamiAdapter interface {
	Adapter
	FetchTsunamiAlerts(ctx context.Context) ([]hazard.TsunamiAlert, error)
}

// Filter applies the options an adapter could not push into its feed
// query. The reference time for the window filter is now.
func Filter(events []hazard.Event, opts FetchOptions, now time.Time) []hazard.Event {
	cutoff := now.Add(-opts.Window())
	out := make([]hazard.Event, 0, len(events))
	for _, e := range events {
		if e.Magnitude < opts.MinMagnitude {
			continue
		}
		if e.OccurredAt.Before(cutoff) {
			continue
		}
		if opts.Bounds != nil && !opts.Bounds.Contains(e.Latitude, e.Longitude) {
			continue
		}
		out = append(out, e)
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}
