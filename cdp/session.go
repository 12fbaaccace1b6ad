package cdp

import (
	"context"
	"log/slog"
	"sync"

	"cdpview/observability"
)

// SnapshotLoader loads one snapshot. *Loader satisfies it.
type SnapshotLoader interface {
	Load(ctx context.Context, id uint64) (*Snapshot, error)
}

// Session holds the snapshot of the currently selected CDP. Selecting a CDP
// starts a background fetch; when the selection changes before the fetch
// completes, its result is dropped. In-flight reads are not aborted.
type Session struct {
	ctx     context.Context
	loader  SnapshotLoader
	logger  *slog.Logger
	metrics *observability.SnapshotMetrics

	mu       sync.Mutex
	gen      uint64
	id       uint64
	selected bool
	current  *Snapshot
	lastErr  error
	wg       sync.WaitGroup
}

// NewSession returns an empty session. Fetches run under ctx.
func NewSession(ctx context.Context, loader SnapshotLoader, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		ctx:     ctx,
		loader:  loader,
		logger:  logger.With("component", "cdp-session"),
		metrics: observability.Snapshots(),
	}
}

// Select makes id the current CDP and fetches it. Selecting a different id
// clears the displayed snapshot; re-selecting the same id keeps it until the
// refresh lands.
func (s *Session) Select(id uint64) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	if !s.selected || s.id != id {
		s.current = nil
	}
	s.id = id
	s.selected = true
	s.lastErr = nil
	s.wg.Add(1)
	s.mu.Unlock()

	go s.fetch(gen, id)
}

func (s *Session) fetch(gen, id uint64) {
	defer s.wg.Done()
	snap, err := s.loader.Load(s.ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		s.metrics.RecordDiscard()
		s.logger.Debug("discarding superseded snapshot", "cdp", id)
		return
	}
	if err != nil {
		s.lastErr = err
		s.logger.Error("cdp snapshot load failed", "cdp", id, "error", err)
		return
	}
	s.current = snap
}

// Current returns the snapshot of the selected CDP. loading is true while
// nothing has been fetched for the selection yet.
func (s *Session) Current() (snap *Snapshot, loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current == nil
}

// Selected returns the selected identifier.
func (s *Session) Selected() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.selected
}

// Err returns the failure of the latest fetch, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Wait blocks until every started fetch has returned.
func (s *Session) Wait() {
	s.wg.Wait()
}
