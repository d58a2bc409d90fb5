package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/listing-comb/app/database"
)

type MockSnapshotStore struct {
	snapshot *Snapshot
	loadErr  error
	saveErr  error
	saves    int
}

func (m *MockSnapshotStore) Load(ctx context.Context) (*Snapshot, error) {
	return m.snapshot, m.loadErr
}

func (m *MockSnapshotStore) Save(ctx context.Context, snapshot *Snapshot) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.snapshot = snapshot
	return nil
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	snapshot, err := store.Load(ctx)
	if err != nil || snapshot != nil {
		t.Fatalf("Empty store should return nil, nil; got %v, %v", snapshot, err)
	}

	saved := &Snapshot{BuiltAt: time.Now()}
	if err := store.Save(ctx, saved); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, _ := store.Load(ctx)
	if loaded != saved {
		t.Error("Load should return the saved snapshot")
	}
}

func TestSnapshotSection(t *testing.T) {
	snapshot := &Snapshot{Sections: []Section{
		{Category: database.Category{Slug: "vehicules"}},
		{Category: database.Category{Slug: "immobilier"}},
	}}

	if _, ok := snapshot.Section("immobilier"); !ok {
		t.Error("Expected to find immobilier")
	}
	if _, ok := snapshot.Section("emploi"); ok {
		t.Error("Did not expect to find emploi")
	}
}

func TestBuilderRebuild(t *testing.T) {
	listings := &MockListingSource{listings: testListings()}
	store := NewMemoryStore()
	builder := NewBuilder(newTestAggregator(listings, time.Second), NewRuleCache(""), store, DefaultExcludeSlug, DefaultPageSize)

	snapshot, err := builder.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if len(snapshot.Sections) != 4 {
		t.Errorf("Expected 4 sections, got %d", len(snapshot.Sections))
	}
	if snapshot.BuiltAt.IsZero() {
		t.Error("BuiltAt should be set")
	}

	stored, _ := store.Load(context.Background())
	if stored != snapshot {
		t.Error("Rebuild should save the snapshot")
	}

	rentals, ok := snapshot.Section("location-immobiliere")
	if !ok || len(rentals.Listings) != 1 {
		t.Error("Rebuild should apply the cached rules")
	}
}

func TestBuilderCurrent(t *testing.T) {
	listings := &MockListingSource{listings: testListings()}
	store := &MockSnapshotStore{}
	builder := NewBuilder(newTestAggregator(listings, time.Second), NewRuleCache(""), store, DefaultExcludeSlug, DefaultPageSize)
	ctx := context.Background()

	first, err := builder.Current(ctx)
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if store.saves != 1 {
		t.Errorf("Expected a build on miss, got %d saves", store.saves)
	}

	second, err := builder.Current(ctx)
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if second != first || store.saves != 1 {
		t.Error("Current should serve the stored snapshot")
	}
}

func TestBuilderStoreFailures(t *testing.T) {
	listings := &MockListingSource{listings: testListings()}
	store := &MockSnapshotStore{
		loadErr: errors.New("redis down"),
		saveErr: errors.New("redis down"),
	}
	builder := NewBuilder(newTestAggregator(listings, time.Second), NewRuleCache(""), store, DefaultExcludeSlug, DefaultPageSize)

	snapshot, err := builder.Current(context.Background())
	if err != nil {
		t.Fatalf("Store failures should not fail the request, got: %v", err)
	}
	if snapshot == nil || len(snapshot.Sections) == 0 {
		t.Error("Expected a freshly built snapshot")
	}
}

func TestBuilderPropagatesDataSourceError(t *testing.T) {
	aggregator := NewAggregator(&MockCategorySource{err: errors.New("down")}, &MockListingSource{}, nil, nil, time.Second)
	store := NewMemoryStore()
	builder := NewBuilder(aggregator, NewRuleCache(""), store, DefaultExcludeSlug, DefaultPageSize)

	if _, err := builder.Current(context.Background()); !database.IsDataSourceError(err) {
		t.Fatalf("Expected DataSourceError, got: %v", err)
	}

	if snapshot, _ := store.Load(context.Background()); snapshot != nil {
		t.Error("A failed build must not be stored")
	}
}

func TestBuilderCurrentConcurrentColdStart(t *testing.T) {
	listings := &MockListingSource{listings: testListings()}
	builder := NewBuilder(newTestAggregator(listings, time.Second), NewRuleCache(""), NewMemoryStore(), DefaultExcludeSlug, DefaultPageSize)

	const callers = 5
	snapshots := make([]*Snapshot, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snapshot, err := builder.Current(context.Background())
			if err != nil {
				t.Errorf("Current failed: %v", err)
			}
			snapshots[i] = snapshot
		}()
	}
	wg.Wait()

	// One build queries each of the five non-excluded top-level categories once
	if got := listings.callCount(); got != 5 {
		t.Errorf("Expected a single build (5 fetches), got %d fetches", got)
	}
	for i, snapshot := range snapshots {
		if snapshot != snapshots[0] {
			t.Errorf("Caller %d got a different snapshot", i)
		}
	}
}
