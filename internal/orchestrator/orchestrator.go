// Package orchestrator owns a fleet of RTR client sessions, one per
// configured cache, and folds their individually-synchronised state into
// a single merged view.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/mellowdrifter/rtrsync/internal/client"
	"github.com/mellowdrifter/rtrsync/internal/protocol"
	"github.com/mellowdrifter/rtrsync/internal/state"

	"go.uber.org/zap"
)

// CacheConfig names one cache to synchronise with.
type CacheConfig struct {
	ID   int
	Name string
	Addr string
}

// Orchestrator manages one client.Record per configured cache.
type Orchestrator struct {
	mu sync.RWMutex

	records map[int]*client.Record
	order   []int

	logger    *zap.SugaredLogger
	clock     client.Clock
	supported []protocol.Version
}

// New returns an Orchestrator with no caches configured; call Init to
// add them.
func New(logger *zap.SugaredLogger, clock client.Clock, supported []protocol.Version) *Orchestrator {
	return &Orchestrator{
		records:   make(map[int]*client.Record),
		logger:    logger,
		clock:     clock,
		supported: supported,
	}
}

// Init registers every configured cache and performs its initial full
// Reset. A cache that fails its initial sync does not block the others;
// Init returns the first error encountered, if any, after every cache
// has had a chance to run.
func (o *Orchestrator) Init(ctx context.Context, caches []CacheConfig) error {
	o.mu.Lock()
	for _, c := range caches {
		rec := client.New(c.ID, c.Name, c.Addr, o.supported, o.logger, o.clock)
		o.records[c.ID] = rec
		o.order = append(o.order, c.ID)
	}
	ids := append([]int(nil), o.order...)
	records := make(map[int]*client.Record, len(ids))
	for _, id := range ids {
		records[id] = o.records[id]
	}
	o.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		rec := records[id]
		if err := rec.Init(ctx); err != nil {
			o.logger.Warnf("cache %s failed initial sync: %v", rec.Name, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("cache %s: %w", rec.Name, err)
			}
		}
	}
	return firstErr
}

// Restore registers rec, already rebuilt from a persisted Snapshot via
// client.Restore, under its own ClientID, performing no I/O. It is how
// a CLI invocation repopulates an Orchestrator from disk between runs,
// as opposed to Init's fresh-dial-and-reset path.
func (o *Orchestrator) Restore(rec *client.Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.records[rec.ClientID]; !exists {
		o.order = append(o.order, rec.ClientID)
	}
	o.records[rec.ClientID] = rec
}

// Reset forces a full resynchronisation of one cache.
func (o *Orchestrator) Reset(ctx context.Context, id int) error {
	rec, ok := o.record(id)
	if !ok {
		return fmt.Errorf("orchestrator: unknown cache %d", id)
	}
	return rec.Reset(ctx)
}

// Refresh attempts an incremental synchronisation of one cache.
func (o *Orchestrator) Refresh(ctx context.Context, id int, force bool) error {
	rec, ok := o.record(id)
	if !ok {
		return fmt.Errorf("orchestrator: unknown cache %d", id)
	}
	return rec.Refresh(ctx, force)
}

// RefreshAll walks every configured cache in registration order,
// refreshing each in turn. One cache's failure does not stop the others
// from being attempted; the returned map only contains entries for
// caches that failed.
func (o *Orchestrator) RefreshAll(ctx context.Context, force bool) map[int]error {
	o.mu.RLock()
	ids := append([]int(nil), o.order...)
	records := make(map[int]*client.Record, len(ids))
	for _, id := range ids {
		records[id] = o.records[id]
	}
	o.mu.RUnlock()

	errs := make(map[int]error)
	for _, id := range ids {
		rec := records[id]
		if err := rec.Refresh(ctx, force); err != nil {
			o.logger.Warnf("cache %s refresh failed: %v", rec.Name, err)
			errs[id] = err
		}
	}
	return errs
}

// MergedState folds every cache's currently-held state.State together
// via state.Merge, in registration order. An ErrMergeConflict from any
// pair aborts the fold.
func (o *Orchestrator) MergedState() (*state.State, error) {
	o.mu.RLock()
	ids := append([]int(nil), o.order...)
	records := make(map[int]*client.Record, len(ids))
	for _, id := range ids {
		records[id] = o.records[id]
	}
	o.mu.RUnlock()

	var merged *state.State
	for _, id := range ids {
		rec := records[id]
		s := rec.State()
		if merged == nil {
			merged = s
			continue
		}
		m, err := state.Merge(merged, s)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: merging cache %s: %w", rec.Name, err)
		}
		merged = m
	}
	if merged == nil {
		merged = state.New(0)
	}
	return merged, nil
}

// Records returns the IDs of every configured cache, in registration
// order, for CLI/status surfaces.
func (o *Orchestrator) Records() []int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]int(nil), o.order...)
}

// Record returns the client.Record for a given cache ID, for status
// surfaces that need per-cache detail (version, session state, last
// failure).
func (o *Orchestrator) Record(id int) (*client.Record, bool) {
	return o.record(id)
}

func (o *Orchestrator) record(id int) (*client.Record, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	rec, ok := o.records[id]
	return rec, ok
}
