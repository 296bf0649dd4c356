// Package ais ingests live vessel telemetry over a single persistent
// WebSocket connection.
//
// The service walks a small state machine per connection:
//
//	Disconnected -> Connecting -> Subscribed -> Streaming -> Disconnected
//
// On entering Subscribed it sends one subscription frame (API key,
// bounding boxes, wanted message kinds); while Streaming, each inbound
// frame is demultiplexed by messageType. Position reports are sampled
// (every Nth, default 10) before touching the store; static data is
// upserted atomically on the MMSI key. Reconnection uses capped
// exponential backoff with jitter and a bounded attempt budget; the
// budget refills after a sustained healthy streaming period.
package ais

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/coastwatch-io/coastwatch/internal/observability"
	"github.com/coastwatch-io/coastwatch/internal/storage"
	"github.com/coastwatch-io/coastwatch/internal/vessel"
)

const (
	// defaultSampleRate records every Nth position report.
	defaultSampleRate = 10

	// defaultMaxReconnects bounds consecutive failed connection
	// attempts before the service gives up.
	defaultMaxReconnects = 10

	// initialRetryDelay is the starting delay for exponential backoff.
	initialRetryDelay = 1 * time.Second

	// maxRetryDelay is the maximum delay between retries.
	maxRetryDelay = 60 * time.Second

	// healthyResetAfter is how long a connection must stream before
	// the reconnect budget refills.
	healthyResetAfter = 1 * time.Minute
)

// ErrReconnectBudgetExhausted is returned by Run when the maximum
// number of consecutive reconnect attempts has been spent.
var ErrReconnectBudgetExhausted = errors.New("ais: reconnect budget exhausted")

// State names the connection lifecycle phases.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateSubscribed   State = "subscribed"
	StateStreaming    State = "streaming"
)

// Config controls the stream subscription and ingestion behavior.
type Config struct {
	Endpoint string
	APIKey   string

	// BoundingBoxes are [[lat,lon],[lat,lon]] corner pairs sent in the
	// subscription frame.
	BoundingBoxes [][][]float64

	// TrackPositions enables position persistence. Static-data upserts
	// happen regardless.
	TrackPositions bool

	// SampleRate keeps every Nth position report (default 10; 1 keeps
	// all).
	SampleRate int

	// MaxReconnects bounds consecutive failed attempts (default 10).
	MaxReconnects int

	// StatsInterval logs a statistics snapshot periodically; zero
	// disables the timer.
	StatsInterval time.Duration
}

// Stats is a point-in-time snapshot of ingestion counters.
type Stats struct {
	State             State     `json:"state"`
	Connected         bool      `json:"connected"`
	MessagesReceived  int64     `json:"messagesReceived"`
	PositionReports   int64     `json:"positionReports"`
	StaticReports     int64     `json:"staticReports"`
	VesselsCreated    int64     `json:"vesselsCreated"`
	VesselsUpdated    int64     `json:"vesselsUpdated"`
	PositionsRecorded int64     `json:"positionsRecorded"`
	Errors            int64     `json:"errors"`
	Reconnects        int64     `json:"reconnects"`
	LastMessageAt     time.Time `json:"lastMessageAt,omitzero"`
}

// Option customizes a Service.
type Option func(*Service)

// WithClock injects a fake clock for tests.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// OnFatal registers a callback invoked once when the reconnect budget
// is exhausted and the service stops.
func OnFatal(fn func(error)) Option {
	return func(s *Service) { s.onFatal = fn }
}

// Service is the long-lived AIS ingestion worker. One Service owns one
// connection; messages on it are handled sequentially in arrival
// order.
type Service struct {
	cfg     Config
	store   storage.Store
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
	onFatal func(error)

	mu            sync.Mutex
	conn          *websocket.Conn
	state         State
	stats         Stats
	positionsSeen int64
}

func NewService(cfg Config, store storage.Store, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Service {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = defaultMaxReconnects
	}
	s := &Service{
		cfg:     cfg,
		store:   store,
		logger:  logger.With("component", "ais"),
		metrics: metrics,
		clock:   clockwork.NewRealClock(),
		state:   StateDisconnected,
	}
	s.stats.State = StateDisconnected
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run connects and processes the stream until ctx is cancelled or the
// reconnect budget runs out. Each reconnect re-sends the full
// subscription.
func (s *Service) Run(ctx context.Context) error {
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		conn, err := s.connect(ctx)
		if err != nil {
			attempts++
			s.recordReconnect()
			s.recordError()
			if attempts >= s.cfg.MaxReconnects {
				return s.fatal(err)
			}
			if !s.waitBackoff(ctx, attempts) {
				return nil
			}
			continue
		}

		start := s.clock.Now()
		err = s.stream(ctx, conn)
		s.setState(StateDisconnected)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}

		// A connection that streamed long enough proves the endpoint
		// is reachable again; refill the budget.
		if s.clock.Since(start) >= healthyResetAfter {
			attempts = 0
		}

		attempts++
		s.recordReconnect()
		s.recordError()
		s.logger.Warn("stream disconnected",
			"error", err,
			"attempt", attempts,
			"max_attempts", s.cfg.MaxReconnects)
		if attempts >= s.cfg.MaxReconnects {
			return s.fatal(err)
		}
		if !s.waitBackoff(ctx, attempts) {
			return nil
		}
	}
}

func (s *Service) fatal(cause error) error {
	err := fmt.Errorf("%w after %d attempts: %v", ErrReconnectBudgetExhausted, s.cfg.MaxReconnects, cause)
	s.logger.Error("giving up on AIS stream", "error", err)
	if s.onFatal != nil {
		s.onFatal(err)
	}
	return err
}

// recordReconnect counts one spent reconnect attempt, including the
// final attempt that exhausts the budget.
func (s *Service) recordReconnect() {
	s.mu.Lock()
	s.stats.Reconnects++
	s.mu.Unlock()
	s.metrics.AISReconnects.Inc()
}

// waitBackoff sleeps the capped exponential delay with jitter. It
// returns false when ctx was cancelled while waiting.
func (s *Service) waitBackoff(ctx context.Context, attempt int) bool {
	delay := initialRetryDelay << (attempt - 1)
	if delay > maxRetryDelay || delay <= 0 {
		delay = maxRetryDelay
	}
	// Jitter in [delay/2, delay) spreads reconnect storms.
	delay = delay/2 + time.Duration(rand.Int63n(int64(delay/2)+1))

	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(delay):
		return true
	}
}

// connect dials once and sends the subscription frame.
func (s *Service) connect(ctx context.Context) (*websocket.Conn, error) {
	s.setState(StateConnecting)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.Endpoint, nil)
	if err != nil {
		s.setState(StateDisconnected)
		return nil, fmt.Errorf("dial %s: %w", s.cfg.Endpoint, err)
	}

	s.setState(StateSubscribed)
	sub := subscription{
		APIKey:             s.cfg.APIKey,
		BoundingBoxes:      s.cfg.BoundingBoxes,
		FilterMessageTypes: []string{msgPositionReport, msgShipStaticData},
	}
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		s.setState(StateDisconnected)
		return nil, fmt.Errorf("send subscription: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.logger.Info("subscribed to AIS stream",
		"endpoint", s.cfg.Endpoint,
		"bounding_boxes", len(s.cfg.BoundingBoxes))
	return conn, nil
}

// stream reads and dispatches messages until the connection breaks.
func (s *Service) stream(ctx context.Context, conn *websocket.Conn) error {
	s.setState(StateStreaming)
	s.metrics.StreamConnected.Set(1)
	defer s.metrics.StreamConnected.Set(0)

	// ReadMessage does not observe ctx; close the socket to unblock it
	// on shutdown.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	var statsTicker clockwork.Ticker
	if s.cfg.StatsInterval > 0 {
		statsTicker = s.clock.NewTicker(s.cfg.StatsInterval)
		defer statsTicker.Stop()
		go s.logStatsLoop(ctx, stop, statsTicker)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.handleMessage(ctx, data)
	}
}

// logStatsLoop runs for the lifetime of one connection; stop is closed
// when that connection's stream loop returns.
func (s *Service) logStatsLoop(ctx context.Context, stop <-chan struct{}, ticker clockwork.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.Chan():
			st := s.Stats()
			s.logger.Info("ingestion statistics",
				"messages", st.MessagesReceived,
				"position_reports", st.PositionReports,
				"static_reports", st.StaticReports,
				"vessels_created", st.VesselsCreated,
				"vessels_updated", st.VesselsUpdated,
				"positions_recorded", st.PositionsRecorded,
				"errors", st.Errors)
		}
	}
}

func (s *Service) handleMessage(ctx context.Context, data []byte) {
	received := s.clock.Now().UTC()

	s.mu.Lock()
	s.stats.MessagesReceived++
	s.stats.LastMessageAt = received
	s.mu.Unlock()

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.recordError()
		s.logger.Warn("discarding unparseable frame", "error", err)
		return
	}

	switch env.MessageType {
	case msgPositionReport:
		s.metrics.AISMessages.WithLabelValues("position_report").Inc()
		s.handlePositionReport(ctx, env, received)
	case msgShipStaticData:
		s.metrics.AISMessages.WithLabelValues("static_data").Inc()
		s.handleStaticData(ctx, env, received)
	default:
		s.metrics.AISMessages.WithLabelValues("other").Inc()
	}
}

func (s *Service) handlePositionReport(ctx context.Context, env envelope, received time.Time) {
	s.mu.Lock()
	s.stats.PositionReports++
	s.positionsSeen++
	sampled := (s.positionsSeen-1)%int64(s.cfg.SampleRate) == 0
	s.mu.Unlock()

	if !s.cfg.TrackPositions || !sampled {
		return
	}
	report := env.Message.PositionReport
	if report == nil || env.MetaData.MMSI == 0 {
		s.recordError()
		return
	}

	at := observedAt(env.MetaData.TimeUTC, received)
	lat, lon := report.Latitude, report.Longitude
	if lat == 0 && lon == 0 {
		lat, lon = env.MetaData.Latitude, env.MetaData.Longitude
	}

	_, err := s.store.FindVesselByMMSI(ctx, env.MetaData.MMSI)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		name := cleanName(env.MetaData.ShipName)
		if name == "" {
			name = vessel.FallbackName(env.MetaData.MMSI)
		}
		v := vessel.Vessel{
			MMSI:     env.MetaData.MMSI,
			Name:     name,
			Type:     vessel.TypeNameFromNavStatus(report.NavigationalStatus),
			LastSeen: at,
			Active:   true,
		}
		if err := s.store.UpsertVessel(ctx, v); err != nil {
			s.recordError()
			s.logger.Error("vessel create failed", "mmsi", v.MMSI, "error", err)
			return
		}
		s.metrics.VesselsCreated.Inc()
		s.mu.Lock()
		s.stats.VesselsCreated++
		s.mu.Unlock()
	case err != nil:
		s.recordError()
		s.logger.Error("vessel lookup failed", "mmsi", env.MetaData.MMSI, "error", err)
		return
	default:
		if err := s.store.TouchVessel(ctx, env.MetaData.MMSI, at); err != nil {
			s.recordError()
			s.logger.Error("vessel touch failed", "mmsi", env.MetaData.MMSI, "error", err)
			return
		}
		s.metrics.VesselsUpdated.Inc()
		s.mu.Lock()
		s.stats.VesselsUpdated++
		s.mu.Unlock()
	}

	pos := vessel.Position{
		MMSI:       env.MetaData.MMSI,
		Latitude:   lat,
		Longitude:  lon,
		SpeedKnots: report.Sog,
		CourseDeg:  report.Cog,
		HeadingDeg: report.TrueHeading,
		NavStatus:  report.NavigationalStatus,
		ObservedAt: at,
	}
	if err := s.store.AppendPosition(ctx, pos); err != nil {
		s.recordError()
		s.logger.Error("position append failed", "mmsi", pos.MMSI, "error", err)
		return
	}
	s.metrics.PositionsRecorded.Inc()
	s.mu.Lock()
	s.stats.PositionsRecorded++
	s.mu.Unlock()
}

func (s *Service) handleStaticData(ctx context.Context, env envelope, received time.Time) {
	s.mu.Lock()
	s.stats.StaticReports++
	s.mu.Unlock()

	static := env.Message.ShipStaticData
	if static == nil || env.MetaData.MMSI == 0 {
		s.recordError()
		return
	}

	at := observedAt(env.MetaData.TimeUTC, received)
	v := vessel.Vessel{
		MMSI:       env.MetaData.MMSI,
		Callsign:   cleanName(static.CallSign),
		Name:       cleanName(static.Name),
		Type:       vessel.TypeNameFromCode(static.Type),
		LengthM:    static.Dimension.A + static.Dimension.B,
		WidthM:     static.Dimension.C + static.Dimension.D,
		LastSeen:   at,
		Active:     true,
		EnrichedBy: "ais",
		EnrichedAt: received,
	}
	if static.ImoNumber > 0 {
		v.IMO = static.ImoNumber
	}
	if static.MaximumStaticDraught > 0 {
		v.DraughtM = static.MaximumStaticDraught
	}

	_, err := s.store.FindVesselByMMSI(ctx, v.MMSI)
	created := errors.Is(err, storage.ErrNotFound)
	if err != nil && !created {
		s.recordError()
		s.logger.Error("vessel lookup failed", "mmsi", v.MMSI, "error", err)
		return
	}
	if created && v.Name == "" {
		v.Name = vessel.FallbackName(v.MMSI)
	}

	if err := s.store.UpsertVessel(ctx, v); err != nil {
		s.recordError()
		s.logger.Error("vessel upsert failed", "mmsi", v.MMSI, "error", err)
		return
	}
	s.mu.Lock()
	if created {
		s.stats.VesselsCreated++
	} else {
		s.stats.VesselsUpdated++
	}
	s.mu.Unlock()
	if created {
		s.metrics.VesselsCreated.Inc()
	} else {
		s.metrics.VesselsUpdated.Inc()
	}
}

func (s *Service) recordError() {
	s.metrics.AISErrors.Inc()
	s.mu.Lock()
	s.stats.Errors++
	s.mu.Unlock()
}

func (s *Service) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.stats.State = state
	s.stats.Connected = state == StateStreaming
	s.mu.Unlock()
}

// State reports the current connection phase.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a copy of the current counters.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
