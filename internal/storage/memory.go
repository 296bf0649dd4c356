package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coastwatch-io/coastwatch/internal/vessel"
)

// MemoryStore keeps everything in process memory. It backs tests and
// the "memory" driver, where positions matter for the session only.
type MemoryStore struct {
	mu        sync.RWMutex
	vessels   map[int64]vessel.Vessel
	positions []vessel.Position
}

func NewMemory() *MemoryStore {
	return &MemoryStore{vessels: make(map[int64]vessel.Vessel)}
}

func (s *MemoryStore) Init(ctx context.Context) error { return nil }
func (s *MemoryStore) Close() error                   { return nil }

func (s *MemoryStore) FindVesselByMMSI(ctx context.Context, mmsi int64) (*vessel.Vessel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vessels[mmsi]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (s *MemoryStore) UpsertVessel(ctx context.Context, v vessel.Vessel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.vessels[v.MMSI]
	if !ok {
		s.vessels[v.MMSI] = v
		return nil
	}
	if v.IMO > 0 {
		cur.IMO = v.IMO
	}
	if v.Callsign != "" {
		cur.Callsign = v.Callsign
	}
	if v.Name != "" {
		cur.Name = v.Name
	}
	if v.Type != "" {
		cur.Type = v.Type
	}
	if v.LengthM > 0 {
		cur.LengthM = v.LengthM
	}
	if v.WidthM > 0 {
		cur.WidthM = v.WidthM
	}
	if v.DraughtM > 0 {
		cur.DraughtM = v.DraughtM
	}
	if v.Flag != "" {
		cur.Flag = v.Flag
	}
	if v.LastSeen.After(cur.LastSeen) {
		cur.LastSeen = v.LastSeen
	}
	cur.Active = v.Active
	if v.EnrichedBy != "" {
		cur.EnrichedBy = v.EnrichedBy
		cur.EnrichedAt = v.EnrichedAt
	}
	s.vessels[v.MMSI] = cur
	return nil
}

func (s *MemoryStore) TouchVessel(ctx context.Context, mmsi int64, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.vessels[mmsi]
	if !ok || !seenAt.After(cur.LastSeen) {
		return nil
	}
	cur.LastSeen = seenAt
	cur.Active = true
	s.vessels[mmsi] = cur
	return nil
}

func (s *MemoryStore) AppendPosition(ctx context.Context, p vessel.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = append(s.positions, p)
	return nil
}

func (s *MemoryStore) ListMissingStatic(ctx context.Context, limit int) ([]vessel.Vessel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []vessel.Vessel
	for _, v := range s.vessels {
		if v.IMO == 0 || v.Callsign == "" || v.Flag == "" || strings.HasPrefix(v.Name, "Vessel ") {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Vessels: int64(len(s.vessels)), Positions: int64(len(s.positions))}
	for _, v := range s.vessels {
		if v.Active {
			st.ActiveVessels++
		}
	}
	return st, nil
}

// Positions returns a copy of the recorded observations, oldest first.
func (s *MemoryStore) Positions() []vessel.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]vessel.Position, len(s.positions))
	copy(out, s.positions)
	return out
}

var _ Store = (*MemoryStore)(nil)
