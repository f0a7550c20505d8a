package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nao1215/protectmyart/internal/badge"
	"github.com/nao1215/protectmyart/internal/messaging"
	"github.com/nao1215/protectmyart/internal/model"
)

const (
	// DefaultScanTimeout bounds the wait for an observer's scan reply.
	DefaultScanTimeout = 2 * time.Second

	// DefaultStaleAfter is the age after which a fresh record is read as stale.
	DefaultStaleAfter = 10 * time.Minute

	// DefaultMaxAge is the age after which the sweep purges a record.
	DefaultMaxAge = 24 * time.Hour

	// DefaultSweepInterval is how often RunSweeper purges old records.
	DefaultSweepInterval = time.Hour
)

// ErrInvalidContext is returned for reports about a context id that can
// never be live.
var ErrInvalidContext = errors.New("invalid context id")

// Scanner asks the observer of a context for a fresh scan.
type Scanner interface {
	RequestScan(ctx context.Context, id model.ContextID) (model.ScanResult, error)
}

// Store owns the per-context protection records of one session.
type Store struct {
	mu      sync.RWMutex
	records map[model.ContextID]model.ProtectionRecord
	// epochs changes whenever a context navigates or closes, so that a scan
	// reply requested before the change is not written back.
	epochs    map[model.ContextID]uint64
	nextEpoch uint64
	closed    bool

	scanner  Scanner
	renderer badge.Renderer

	scanTimeout   time.Duration
	staleAfter    time.Duration
	maxAge        time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithRenderer sets the badge renderer.
func WithRenderer(r badge.Renderer) Option {
	return func(s *Store) {
		s.renderer = r
	}
}

// WithScanTimeout sets how long GetStatus waits for a scan reply.
func WithScanTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.scanTimeout = d
	}
}

// WithStaleAfter sets the age after which a fresh record is read as stale.
// Zero disables staleness.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Store) {
		s.staleAfter = d
	}
}

// WithMaxAge sets the age after which Sweep purges a record.
func WithMaxAge(d time.Duration) Option {
	return func(s *Store) {
		s.maxAge = d
	}
}

// WithSweepInterval sets the period of RunSweeper.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) {
		s.sweepInterval = d
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty Store that reaches observers through scanner.
func New(scanner Scanner, opts ...Option) *Store {
	s := &Store{
		records:       make(map[model.ContextID]model.ProtectionRecord),
		epochs:        make(map[model.ContextID]uint64),
		scanner:       scanner,
		scanTimeout:   DefaultScanTimeout,
		staleAfter:    DefaultStaleAfter,
		maxAge:        DefaultMaxAge,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// ReportScan upserts a fresh record for id from an observer's unsolicited
// report and renders the badge. It acknowledges synchronously: a nil error
// means the record is stored. After Close it returns ErrUnreachable.
func (s *Store) ReportScan(ctx context.Context, id model.ContextID, result model.ScanResult, isInitial bool) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidContext, id)
	}

	rec := model.FreshRecord(id, result)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("%w: store closed", messaging.ErrUnreachable)
	}
	s.records[id] = rec
	s.mu.Unlock()

	s.logger.Debug("scan report stored",
		"context", id,
		"initial", isInitial,
		"noai", rec.GeneralOptOut,
		"noimageai", rec.ImageOptOut,
		"url", rec.SourceURL,
	)
	s.render(ctx, id, rec.CombinedProtection)
	return nil
}

// OnContextNavigationStart replaces the record of id with a loading record
// whose opt-out flags are false and renders the unprotected badge.
func (s *Store) OnContextNavigationStart(ctx context.Context, id model.ContextID, url string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.records[id] = model.LoadingRecord(id, url, s.now())
	s.bumpEpochLocked(id)
	s.mu.Unlock()

	s.logger.Debug("context navigating", "context", id, "url", url)
	s.render(ctx, id, false)
}

// OnContextClosed deletes the record of id.
func (s *Store) OnContextClosed(_ context.Context, id model.ContextID) {
	s.mu.Lock()
	delete(s.records, id)
	s.bumpEpochLocked(id)
	s.mu.Unlock()

	s.forget(id)
	s.logger.Debug("context closed", "context", id)
}

// OnContextActivated renders the badge of id from its record, or the
// unprotected badge when there is none.
func (s *Store) OnContextActivated(ctx context.Context, id model.ContextID) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()

	s.render(ctx, id, ok && rec.CombinedProtection)
}

// GetStatus returns the protection record of id. It never fails: when no
// observer answers, the result is an unavailable record.
//
// A fresh record is returned as is unless forceRefresh is set. Otherwise the
// observer is asked for a scan, bounded by the scan timeout, and its reply is
// stored as a fresh record. A reply that arrives after the context navigated
// or closed is discarded.
func (s *Store) GetStatus(ctx context.Context, id model.ContextID, forceRefresh bool) model.ProtectionRecord {
	s.mu.RLock()
	rec, ok := s.records[id]
	epoch := s.epochs[id]
	closed := s.closed
	s.mu.RUnlock()

	if closed {
		return model.UnavailableRecord(id, s.now())
	}

	if ok && !forceRefresh && rec.Lifecycle == model.LifecycleFresh && !s.isStale(rec, s.now()) {
		return rec
	}

	result, err := messaging.Within(ctx, s.scanTimeout, func(ctx context.Context) (model.ScanResult, error) {
		return s.scanner.RequestScan(ctx, id)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epochs[id] != epoch || s.closed {
		s.logger.Debug("discarding scan reply for changed context", "context", id)
		if cur, ok := s.records[id]; ok {
			return cur
		}
		return model.UnavailableRecord(id, s.now())
	}

	if err != nil {
		s.logger.Debug("no scan reply, context unavailable", "context", id, "error", err)
		rec = model.UnavailableRecord(id, s.now())
	} else {
		rec = model.FreshRecord(id, result)
	}
	s.records[id] = rec
	return rec
}

// Lookup returns the stored record of id without contacting any observer.
// A fresh record older than the stale age is returned as stale.
func (s *Store) Lookup(id model.ContextID) (model.ProtectionRecord, bool) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return model.ProtectionRecord{}, false
	}
	if rec.Lifecycle == model.LifecycleFresh && s.isStale(rec, s.now()) {
		rec = rec.WithLifecycle(model.LifecycleStale)
	}
	return rec, true
}

// Records returns all stored records ordered by context id.
func (s *Store) Records() []model.ProtectionRecord {
	s.mu.RLock()
	ids := make([]model.ContextID, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]model.ProtectionRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.Lookup(id); ok {
			out = append(out, rec)
		}
	}
	return out
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Sweep purges records captured more than the maximum age before now and
// returns how many were removed.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	var swept []model.ContextID
	for id, rec := range s.records {
		if now.Sub(rec.CapturedAt) > s.maxAge {
			delete(s.records, id)
			s.bumpEpochLocked(id)
			swept = append(swept, id)
		}
	}
	for id := range s.epochs {
		if _, ok := s.records[id]; !ok {
			delete(s.epochs, id)
		}
	}
	s.mu.Unlock()

	for _, id := range swept {
		s.forget(id)
	}
	if len(swept) > 0 {
		s.logger.Debug("swept old records", "removed", len(swept))
	}
	return len(swept)
}

// RunSweeper calls Sweep every sweep interval until ctx is cancelled.
func (s *Store) RunSweeper(ctx context.Context) error {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}

// Reset wipes the whole table, as on cold start or install/update.
func (s *Store) Reset(reason string) {
	s.mu.Lock()
	n := len(s.records)
	for id := range s.records {
		s.bumpEpochLocked(id)
	}
	s.records = make(map[model.ContextID]model.ProtectionRecord)
	s.mu.Unlock()

	s.logger.Info("store reset", "reason", reason, "dropped", n)
}

// Close wipes the table and rejects later reports.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.records = make(map[model.ContextID]model.ProtectionRecord)
	s.epochs = make(map[model.ContextID]uint64)
}

func (s *Store) bumpEpochLocked(id model.ContextID) {
	s.nextEpoch++
	s.epochs[id] = s.nextEpoch
}

func (s *Store) isStale(rec model.ProtectionRecord, now time.Time) bool {
	return s.staleAfter > 0 && now.Sub(rec.CapturedAt) > s.staleAfter
}

// render draws the badge and swallows renderer failures.
func (s *Store) forget(id model.ContextID) {
	if f, ok := s.renderer.(badge.Forgetter); ok {
		f.Forget(id)
	}
}

func (s *Store) render(ctx context.Context, id model.ContextID, protected bool) {
	if s.renderer == nil {
		return
	}
	if err := s.renderer.Render(ctx, id, protected); err != nil {
		s.logger.Warn("badge render failed", "context", id, "error", err)
	}
}
