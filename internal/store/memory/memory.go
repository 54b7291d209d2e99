// Package memory is an in-process implementation of the storage ports.
// It backs paper trading runs without a database file and the package
// tests of the domain layers. Semantics match store/sqlite, including
// optimistic versioning on Update.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"spot-trader/internal/model"
)

// Store implements model.TradeStore, model.ReportStore and
// model.BotConfigStore. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	trades  map[string]model.Trade
	order   []string // insertion order, used as a tie-breaker
	reports map[string]model.ReportRecord
	config  *model.BotConfig

	// FailCreate, when set, is returned by Create. Used to simulate a
	// ledger outage.
	FailCreate error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		trades:  make(map[string]model.Trade),
		reports: make(map[string]model.ReportRecord),
	}
}

func (s *Store) Create(_ context.Context, t model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreate != nil {
		return s.FailCreate
	}
	if _, ok := s.trades[t.ID]; ok {
		return fmt.Errorf("create trade %s: duplicate id", t.ID)
	}
	s.trades[t.ID] = t
	s.order = append(s.order, t.ID)
	return nil
}

func (s *Store) FindByID(_ context.Context, id string) (model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trades[id]
	if !ok {
		return model.Trade{}, model.ErrNotFound
	}
	return t, nil
}

func (s *Store) FindByDateRange(_ context.Context, from, to time.Time) ([]model.Trade, error) {
	return s.filter(func(t model.Trade) bool {
		return !t.CreatedAt.Before(from) && t.CreatedAt.Before(to)
	}, false), nil
}

func (s *Store) FindBySymbol(_ context.Context, symbol string, limit int) ([]model.Trade, error) {
	out := s.filter(func(t model.Trade) bool { return t.Symbol == symbol }, true)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) OpenPositions(_ context.Context, symbol string) ([]model.Trade, error) {
	return s.filter(func(t model.Trade) bool {
		return t.IsOpenPosition() && (symbol == "" || t.Symbol == symbol)
	}, false), nil
}

func (s *Store) Update(_ context.Context, trades ...model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range trades {
		cur, ok := s.trades[t.ID]
		if !ok {
			return fmt.Errorf("update trade %s: %w", t.ID, model.ErrNotFound)
		}
		if cur.Version != t.Version {
			return fmt.Errorf("update trade %s: %w", t.ID, model.ErrVersionConflict)
		}
	}
	for _, t := range trades {
		t.Version++
		s.trades[t.ID] = t
	}
	return nil
}

func (s *Store) CountSince(_ context.Context, since time.Time) (int, error) {
	return len(s.filter(func(t model.Trade) bool { return !t.CreatedAt.Before(since) }, false)), nil
}

func (s *Store) LastTrade(ctx context.Context, symbol string) (model.Trade, error) {
	out, _ := s.FindBySymbol(ctx, symbol, 1)
	if len(out) == 0 {
		return model.Trade{}, model.ErrNotFound
	}
	return out[0], nil
}

// filter returns matching trades ordered by creation time, then insertion.
func (s *Store) filter(keep func(model.Trade) bool, newestFirst bool) []model.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Trade
	for _, id := range s.order {
		if t := s.trades[id]; keep(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if newestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

func (s *Store) SaveReport(_ context.Context, r model.ReportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.Date] = r
	return nil
}

func (s *Store) FindReport(_ context.Context, date time.Time) (model.ReportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[date.Format(model.DateLayout)]
	if !ok {
		return model.ReportRecord{}, model.ErrNotFound
	}
	return r, nil
}

func (s *Store) RecentReports(_ context.Context, limit int) ([]model.ReportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ReportRecord, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) LoadBotConfig(_ context.Context) (model.BotConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config == nil {
		return model.BotConfig{}, model.ErrNotFound
	}
	return *s.config, nil
}

func (s *Store) SaveBotConfig(_ context.Context, c model.BotConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = &c
	return nil
}

var (
	_ model.TradeStore     = (*Store)(nil)
	_ model.ReportStore    = (*Store)(nil)
	_ model.BotConfigStore = (*Store)(nil)
)
