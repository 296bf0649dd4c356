package enrich

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coastwatch-io/coastwatch/internal/observability"
	"github.com/coastwatch-io/coastwatch/internal/storage"
	"github.com/coastwatch-io/coastwatch/internal/vessel"
)

// fakeClient serves canned profiles and can fail per MMSI.
type fakeClient struct {
	profiles    map[int64]*Profile
	errs        map[int64]error
	rateLimited int // remaining lookups that fail rate-limited
	lookups     int
}

func (f *fakeClient) Lookup(ctx context.Context, mmsi int64) (*Profile, error) {
	f.lookups++
	if f.rateLimited > 0 {
		f.rateLimited--
		return nil, ErrRateLimited
	}
	if err, ok := f.errs[mmsi]; ok {
		return nil, err
	}
	if p, ok := f.profiles[mmsi]; ok {
		return p, nil
	}
	return nil, ErrNoProfile
}

func fastConfig() Config {
	return Config{
		BatchSize:      50,
		BatchPause:     time.Millisecond,
		RateLimitPause: time.Millisecond,
	}
}

func newTestJob(t *testing.T, cfg Config, store storage.Store, client ProfileClient) *Job {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	metrics := observability.New(prometheus.NewRegistry())
	return NewJob(cfg, store, client, logger, metrics)
}

func seedVessel(t *testing.T, store storage.Store, v vessel.Vessel) {
	t.Helper()
	if v.LastSeen.IsZero() {
		v.LastSeen = time.Now().UTC()
	}
	v.Active = true
	require.NoError(t, store.UpsertVessel(context.Background(), v))
}

func TestJobFillsOnlyMissingFields(t *testing.T) {
	store := storage.NewMemory()
	seedVessel(t, store, vessel.Vessel{
		MMSI: 367001234,
		Name: "PACIFIC TRADER", // already known, must survive
		Type: "Unknown",
	})

	client := &fakeClient{profiles: map[int64]*Profile{
		367001234: {
			MMSI:     367001234,
			IMO:      9300001,
			Callsign: "WDE1234",
			Name:     "PACIFIC TRADER II", // must NOT replace stored name
			Type:     "Cargo",
			LengthM:  180,
			Flag:     "US",
		},
	}}

	job := newTestJob(t, fastConfig(), store, client)
	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 1, Enriched: 1}, res)

	got, err := store.FindVesselByMMSI(context.Background(), 367001234)
	require.NoError(t, err)
	assert.Equal(t, "PACIFIC TRADER", got.Name)
	assert.Equal(t, int64(9300001), got.IMO)
	assert.Equal(t, "WDE1234", got.Callsign)
	assert.Equal(t, "Cargo", got.Type)
	assert.Equal(t, 180.0, got.LengthM)
	assert.Equal(t, "US", got.Flag)
	assert.Equal(t, "profile-api", got.EnrichedBy)
	assert.False(t, got.EnrichedAt.IsZero())
}

func TestJobReplacesFallbackName(t *testing.T) {
	store := storage.NewMemory()
	seedVessel(t, store, vessel.Vessel{
		MMSI: 111000111,
		Name: vessel.FallbackName(111000111),
	})

	client := &fakeClient{profiles: map[int64]*Profile{
		111000111: {MMSI: 111000111, Name: "NORTH STAR"},
	}}

	job := newTestJob(t, fastConfig(), store, client)
	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Enriched)

	got, err := store.FindVesselByMMSI(context.Background(), 111000111)
	require.NoError(t, err)
	assert.Equal(t, "NORTH STAR", got.Name)
}

func TestJobNoCandidates(t *testing.T) {
	job := newTestJob(t, fastConfig(), storage.NewMemory(), &fakeClient{})
	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestJobIsolatesSingleFailures(t *testing.T) {
	store := storage.NewMemory()
	seedVessel(t, store, vessel.Vessel{MMSI: 1, Name: vessel.FallbackName(1)})
	seedVessel(t, store, vessel.Vessel{MMSI: 2, Name: vessel.FallbackName(2)})
	seedVessel(t, store, vessel.Vessel{MMSI: 3, Name: vessel.FallbackName(3)})

	client := &fakeClient{
		profiles: map[int64]*Profile{
			1: {MMSI: 1, Name: "ALPHA"},
			3: {MMSI: 3, Name: "GAMMA"},
		},
		errs: map[int64]error{2: errors.New("connection reset")},
	}

	job := newTestJob(t, fastConfig(), store, client)
	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 3, Enriched: 2, Failed: 1}, res)
}

func TestJobSkipsUnknownVessels(t *testing.T) {
	store := storage.NewMemory()
	seedVessel(t, store, vessel.Vessel{MMSI: 42, Name: vessel.FallbackName(42)})

	job := newTestJob(t, fastConfig(), store, &fakeClient{})
	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 1, Skipped: 1}, res)
}

func TestJobSkipsWhenNothingToFill(t *testing.T) {
	store := storage.NewMemory()
	// Complete record except flag; profile has no flag either.
	seedVessel(t, store, vessel.Vessel{
		MMSI: 7, IMO: 9111111, Callsign: "AAAA", Name: "COMPLETE",
		Type: "Cargo", LengthM: 100, WidthM: 20, DraughtM: 8,
	})

	client := &fakeClient{profiles: map[int64]*Profile{
		7: {MMSI: 7, Name: "COMPLETE"},
	}}

	job := newTestJob(t, fastConfig(), store, client)
	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 1, Skipped: 1}, res)
}

func TestJobBacksOffOnRateLimit(t *testing.T) {
	store := storage.NewMemory()
	seedVessel(t, store, vessel.Vessel{MMSI: 5, Name: vessel.FallbackName(5)})

	client := &fakeClient{
		rateLimited: 1,
		profiles:    map[int64]*Profile{5: {MMSI: 5, Name: "DELTA"}},
	}

	job := newTestJob(t, fastConfig(), store, client)
	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 1, Enriched: 1}, res)
	assert.Equal(t, 2, client.lookups, "expected a retry after the backoff")
}

func TestJobStopsBetweenBatchesOnly(t *testing.T) {
	store := storage.NewMemory()
	for mmsi := int64(1); mmsi <= 4; mmsi++ {
		seedVessel(t, store, vessel.Vessel{MMSI: mmsi, Name: vessel.FallbackName(mmsi)})
	}

	client := &fakeClient{profiles: map[int64]*Profile{
		1: {MMSI: 1, Name: "A"}, 2: {MMSI: 2, Name: "B"},
		3: {MMSI: 3, Name: "C"}, 4: {MMSI: 4, Name: "D"},
	}}

	cfg := fastConfig()
	cfg.BatchSize = 2
	job := newTestJob(t, cfg, store, client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled before the run starts

	res, err := job.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	// The first batch never starts; nothing is processed.
	assert.Equal(t, Result{}, res)
}

func TestJobBatching(t *testing.T) {
	store := storage.NewMemory()
	profiles := make(map[int64]*Profile)
	for mmsi := int64(1); mmsi <= 5; mmsi++ {
		seedVessel(t, store, vessel.Vessel{MMSI: mmsi, Name: vessel.FallbackName(mmsi)})
		profiles[mmsi] = &Profile{MMSI: mmsi, Name: "SHIP"}
	}

	cfg := fastConfig()
	cfg.BatchSize = 2
	job := newTestJob(t, cfg, store, &fakeClient{profiles: profiles})

	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 5, Enriched: 5}, res)
}
