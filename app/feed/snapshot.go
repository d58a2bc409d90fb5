package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SnapshotStore keeps the last successfully built feed. Load returns nil and
// no error when nothing has been stored yet.
type SnapshotStore interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snapshot *Snapshot) error
}

type MemoryStore struct {
	snapshot *Snapshot
	mu       sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, nil
}

func (s *MemoryStore) Save(ctx context.Context, snapshot *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot
	return nil
}

// RuleSource supplies the rules in effect at build time.
type RuleSource interface {
	RuleSet() RuleSet
}

// Builder runs the aggregator with the current rules and keeps its output in
// a SnapshotStore.
type Builder struct {
	aggregator  *Aggregator
	rules       RuleSource
	store       SnapshotStore
	excludeSlug string
	pageSize    int
	mu          sync.Mutex
}

func NewBuilder(aggregator *Aggregator, rules RuleSource, store SnapshotStore, excludeSlug string, pageSize int) *Builder {
	return &Builder{
		aggregator:  aggregator,
		rules:       rules,
		store:       store,
		excludeSlug: excludeSlug,
		pageSize:    pageSize,
	}
}

// Rebuild builds a fresh snapshot and saves it. Concurrent calls are
// serialized. A failed save is logged and the built snapshot still returned.
func (b *Builder) Rebuild(ctx context.Context) (*Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.rebuildLocked(ctx)
}

// Current returns the stored snapshot, building one when the store is empty
// or cannot be read. Callers waiting on a build in progress reuse its result.
func (b *Builder) Current(ctx context.Context) (*Snapshot, error) {
	if snapshot := b.load(ctx); snapshot != nil {
		return snapshot, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if snapshot := b.load(ctx); snapshot != nil {
		return snapshot, nil
	}

	return b.rebuildLocked(ctx)
}

func (b *Builder) load(ctx context.Context) *Snapshot {
	snapshot, err := b.store.Load(ctx)
	if err != nil {
		slog.Warn("Failed to load feed snapshot", "error", err)
		return nil
	}
	return snapshot
}

func (b *Builder) rebuildLocked(ctx context.Context) (*Snapshot, error) {
	startTime := time.Now()

	sections, err := b.aggregator.BuildFeed(ctx, BuildOptions{
		ExcludeSlug: b.excludeSlug,
		PageSize:    b.pageSize,
		Rules:       b.rules.RuleSet(),
	})
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		Sections: sections,
		BuiltAt:  startTime.UTC(),
		Duration: time.Since(startTime),
	}

	if err := b.store.Save(ctx, snapshot); err != nil {
		slog.Error("Failed to save feed snapshot", "error", err)
	}

	return snapshot, nil
}
