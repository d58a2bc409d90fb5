package feed

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lysyi3m/listing-comb/app/catalog"
	"github.com/lysyi3m/listing-comb/app/database"
	"github.com/lysyi3m/listing-comb/app/metrics"
)

type MockCategorySource struct {
	categories []database.Category
	err        error
}

func (m *MockCategorySource) GetAllCategories(ctx context.Context) ([]database.Category, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.categories, nil
}

// MockListingSource serves listings by category ID. Fetches that include a
// failing ID return an error; fetches that include a stalling ID block until
// release is closed, ignoring the context.
type MockListingSource struct {
	listings []database.Listing
	extra    map[string][]database.Listing
	failing  map[string]bool
	stalling map[string]bool
	release  chan struct{}

	mu    sync.Mutex
	calls [][]string
}

func (m *MockListingSource) GetActiveListings(ctx context.Context, categoryIDs []string, limit int) ([]database.Listing, error) {
	m.mu.Lock()
	m.calls = append(m.calls, slices.Clone(categoryIDs))
	m.mu.Unlock()

	for _, id := range categoryIDs {
		if m.failing[id] {
			return nil, &database.DataSourceError{Op: "failed to query listings", Err: errors.New("connection refused")}
		}
		if m.stalling[id] {
			<-m.release
			return nil, nil
		}
	}

	var result []database.Listing
	for _, listing := range m.listings {
		if slices.Contains(categoryIDs, listing.CategoryID) {
			result = append(result, listing)
		}
	}
	result = append(result, m.extra[categoryIDs[0]]...)

	slices.SortStableFunc(result, func(a, b database.Listing) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockListingSource) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func ptr(s string) *string {
	return &s
}

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func listing(id, categoryID string, minutesAgo int, title string) database.Listing {
	return database.Listing{
		ID:         id,
		CategoryID: categoryID,
		Status:     database.ListingStatusActive,
		Title:      title,
		CreatedAt:  baseTime.Add(-time.Duration(minutesAgo) * time.Minute),
	}
}

func testCategories() []database.Category {
	return []database.Category{
		{ID: "veh", Slug: "vehicules", DisplayOrder: 1},
		{ID: "voit", Slug: "voitures", ParentID: ptr("veh"), DisplayOrder: 1},
		{ID: "motos", Slug: "motos", ParentID: ptr("veh"), DisplayOrder: 2},
		{ID: "immo", Slug: "immobilier", DisplayOrder: 2},
		{ID: "appart", Slug: "appartement-vente", ParentID: ptr("immo"), DisplayOrder: 1},
		{ID: "elec", Slug: "electronique", DisplayOrder: 3},
		{ID: "emploi", Slug: "emploi", DisplayOrder: 4},
		{ID: "pro", Slug: "stores-pro", DisplayOrder: 0},
		{ID: "locimmo", Slug: "location-immobiliere", DisplayOrder: 5},
	}
}

func testListings() []database.Listing {
	return []database.Listing{
		listing("l-car", "voit", 1, "Golf 7"),
		listing("l-moto", "motos", 5, "Yamaha MT-07"),
		listing("l-veh", "veh", 3, "Remorque"),
		listing("l-flat", "appart", 2, "Appartement F3"),
		listing("l-bmw", "locimmo", 4, "BMW à louer"),
		listing("l-phone", "elec", 6, "iPhone 15"),
		listing("l-store", "pro", 1, "Boutique"),
		listing("l-rent", "locimmo", 7, "Location voiture Oran"),
		listing("l-studio", "locimmo", 8, "Studio meublé"),
	}
}

func newTestAggregator(listings *MockListingSource, timeout time.Duration) *Aggregator {
	categories := &MockCategorySource{categories: testCategories()}
	return NewAggregator(categories, listings, NewFilterer(), nil, timeout)
}

func sectionSlugs(sections []Section) []string {
	var slugs []string
	for _, section := range sections {
		slugs = append(slugs, section.Category.Slug)
	}
	return slugs
}

func listingIDs(section Section) []string {
	var ids []string
	for _, l := range section.Listings {
		ids = append(ids, l.ID)
	}
	return ids
}

func TestBuildFeed(t *testing.T) {
	listings := &MockListingSource{listings: testListings()}
	aggregator := newTestAggregator(listings, time.Second)

	sections, err := aggregator.BuildFeed(context.Background(), DefaultBuildOptions(NewRuleSet(DefaultRules())))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	// emploi has no listings
	expected := []string{"vehicules", "immobilier", "electronique", "location-immobiliere"}
	if !slices.Equal(sectionSlugs(sections), expected) {
		t.Fatalf("Expected sections %v, got %v", expected, sectionSlugs(sections))
	}

	vehicles := sections[0]
	if ids := listingIDs(vehicles); !slices.Equal(ids, []string{"l-car", "l-veh", "l-moto"}) {
		t.Errorf("Expected vehicles newest first, got %v", ids)
	}

	car := vehicles.Listings[0]
	if car.CategorySlug != "voitures" || car.ParentCategorySlug != "vehicules" {
		t.Errorf("Expected voitures/vehicules, got %s/%s", car.CategorySlug, car.ParentCategorySlug)
	}

	top := vehicles.Listings[1]
	if top.CategorySlug != "vehicules" || top.ParentCategorySlug != "" {
		t.Errorf("Top-level listing should have no parent slug, got %s/%s", top.CategorySlug, top.ParentCategorySlug)
	}

	realEstate := sections[1]
	if ids := listingIDs(realEstate); !slices.Equal(ids, []string{"l-flat"}) {
		t.Errorf("Expected l-flat under immobilier, got %v", ids)
	}
	if realEstate.Listings[0].ParentCategorySlug != "immobilier" {
		t.Errorf("Expected parent slug immobilier, got %q", realEstate.Listings[0].ParentCategorySlug)
	}

	rentals := sections[3]
	if ids := listingIDs(rentals); !slices.Equal(ids, []string{"l-studio"}) {
		t.Errorf("Expected vehicle listings to be excluded from rentals, got %v", ids)
	}
}

func TestBuildFeedExcludesSlug(t *testing.T) {
	listings := &MockListingSource{listings: testListings()}
	aggregator := newTestAggregator(listings, time.Second)

	sections, err := aggregator.BuildFeed(context.Background(), DefaultBuildOptions(RuleSet{}))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if slices.Contains(sectionSlugs(sections), "stores-pro") {
		t.Error("stores-pro should be excluded")
	}

	opts := DefaultBuildOptions(RuleSet{})
	opts.ExcludeSlug = ""
	sections, err = aggregator.BuildFeed(context.Background(), opts)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if sections[0].Category.Slug != "stores-pro" {
		t.Errorf("Without exclusion stores-pro should lead, got %v", sectionSlugs(sections))
	}
}

func TestBuildFeedPageSize(t *testing.T) {
	listings := &MockListingSource{listings: testListings()}
	aggregator := newTestAggregator(listings, time.Second)

	opts := DefaultBuildOptions(RuleSet{})
	opts.PageSize = 2
	sections, err := aggregator.BuildFeed(context.Background(), opts)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if ids := listingIDs(sections[0]); !slices.Equal(ids, []string{"l-car", "l-veh"}) {
		t.Errorf("Expected 2 newest vehicles, got %v", ids)
	}
}

func TestBuildFeedQueriesSubcategories(t *testing.T) {
	listings := &MockListingSource{listings: testListings()}
	aggregator := newTestAggregator(listings, time.Second)

	if _, err := aggregator.BuildFeed(context.Background(), DefaultBuildOptions(RuleSet{})); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	calls := make(map[string][]string)
	for _, ids := range listings.calls {
		calls[ids[0]] = ids
	}

	if !slices.Equal(calls["veh"], []string{"veh", "voit", "motos"}) {
		t.Errorf("Expected vehicules with its children, got %v", calls["veh"])
	}
	if !slices.Equal(calls["emploi"], []string{"emploi"}) {
		t.Errorf("Category without children should query itself only, got %v", calls["emploi"])
	}
	if _, ok := calls["pro"]; ok {
		t.Error("Excluded category should not be queried")
	}
}

func TestBuildFeedPartialFailure(t *testing.T) {
	listings := &MockListingSource{
		listings: testListings(),
		failing:  map[string]bool{"immo": true},
	}
	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(registry)
	aggregator := NewAggregator(&MockCategorySource{categories: testCategories()}, listings, NewFilterer(), recorder, time.Second)

	sections, err := aggregator.BuildFeed(context.Background(), DefaultBuildOptions(RuleSet{}))
	if err != nil {
		t.Fatalf("A single failing section should not fail the feed, got: %v", err)
	}

	expected := []string{"vehicules", "electronique", "location-immobiliere"}
	if !slices.Equal(sectionSlugs(sections), expected) {
		t.Errorf("Expected sections %v, got %v", expected, sectionSlugs(sections))
	}

	count, err := testutil.GatherAndCount(registry, "listing_comb_section_fetch_failures_total")
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected one failing category series, got %d", count)
	}
}

func TestBuildFeedStalledSection(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	listings := &MockListingSource{
		listings: testListings(),
		stalling: map[string]bool{"veh": true},
		release:  release,
	}
	aggregator := newTestAggregator(listings, 50*time.Millisecond)

	done := make(chan []Section, 1)
	go func() {
		sections, err := aggregator.BuildFeed(context.Background(), DefaultBuildOptions(RuleSet{}))
		if err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
		done <- sections
	}()

	select {
	case sections := <-done:
		expected := []string{"immobilier", "electronique", "location-immobiliere"}
		if !slices.Equal(sectionSlugs(sections), expected) {
			t.Errorf("Expected sections %v, got %v", expected, sectionSlugs(sections))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("BuildFeed blocked on a stalled section")
	}
}

func TestBuildFeedAllSectionsFail(t *testing.T) {
	failing := make(map[string]bool)
	for _, category := range testCategories() {
		failing[category.ID] = true
	}
	listings := &MockListingSource{failing: failing}
	aggregator := newTestAggregator(listings, time.Second)

	_, err := aggregator.BuildFeed(context.Background(), DefaultBuildOptions(RuleSet{}))
	if err == nil {
		t.Fatal("Expected error when every section fails")
	}

	var dsErr *database.DataSourceError
	if !errors.As(err, &dsErr) {
		t.Errorf("Expected DataSourceError, got %T", err)
	}
}

func TestBuildFeedCallerCancelled(t *testing.T) {
	registry := prometheus.NewRegistry()
	aggregator := NewAggregator(&MockCategorySource{categories: testCategories()},
		&MockListingSource{listings: testListings()}, NewFilterer(), metrics.NewRecorder(registry), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sections, err := aggregator.BuildFeed(ctx, DefaultBuildOptions(RuleSet{}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got: %v", err)
	}
	if database.IsDataSourceError(err) {
		t.Error("Caller cancellation must not be reported as a data source failure")
	}
	if sections != nil {
		t.Errorf("Expected no sections, got %d", len(sections))
	}

	count, err := testutil.GatherAndCount(registry, "listing_comb_section_fetch_failures_total")
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected no failing category series, got %d", count)
	}
}

func TestBuildFeedCallerCancelledWhileStalled(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	stalling := make(map[string]bool)
	for _, category := range testCategories() {
		stalling[category.ID] = true
	}
	listings := &MockListingSource{stalling: stalling, release: release}
	aggregator := newTestAggregator(listings, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := aggregator.BuildFeed(ctx, DefaultBuildOptions(RuleSet{}))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected the caller's deadline error, got: %v", err)
	}
	if database.IsDataSourceError(err) {
		t.Error("Caller deadline must not be reported as a data source failure")
	}
}

func TestBuildSectionCancelledByParent(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	listings := &MockListingSource{stalling: map[string]bool{"veh": true}, release: release}
	aggregator := newTestAggregator(listings, time.Minute)
	tree := catalog.NewTree(testCategories())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := aggregator.buildSection(ctx, tree, testCategories()[0], DefaultBuildOptions(RuleSet{}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got: %v", err)
	}
	if !strings.Contains(err.Error(), "cancelled") {
		t.Errorf("Expected a cancellation message, got: %v", err)
	}
}

func TestBuildFeedCategoryLoadFailure(t *testing.T) {
	categories := &MockCategorySource{err: errors.New("timeout")}
	listings := &MockListingSource{}
	aggregator := NewAggregator(categories, listings, nil, nil, time.Second)

	_, err := aggregator.BuildFeed(context.Background(), DefaultBuildOptions(RuleSet{}))
	if !database.IsDataSourceError(err) {
		t.Fatalf("Expected DataSourceError, got: %v", err)
	}
	if listings.callCount() != 0 {
		t.Error("No listing fetch should start when the category load fails")
	}
}

func TestBuildFeedNoCategories(t *testing.T) {
	aggregator := NewAggregator(&MockCategorySource{}, &MockListingSource{}, nil, nil, time.Second)

	sections, err := aggregator.BuildFeed(context.Background(), DefaultBuildOptions(RuleSet{}))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(sections) != 0 {
		t.Errorf("Expected no sections, got %d", len(sections))
	}
}

func TestBuildFeedDropsInactiveAndDuplicates(t *testing.T) {
	sold := listing("l-sold", "elec", 0, "Laptop")
	sold.Status = database.ListingStatusSold

	listings := &MockListingSource{
		listings: testListings(),
		extra: map[string][]database.Listing{
			"elec": {sold, listing("l-phone", "elec", 6, "iPhone 15")},
		},
	}
	aggregator := newTestAggregator(listings, time.Second)

	sections, err := aggregator.BuildFeed(context.Background(), DefaultBuildOptions(RuleSet{}))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	for _, section := range sections {
		for _, l := range section.Listings {
			if l.Status != database.ListingStatusActive {
				t.Errorf("Inactive listing %s in section %s", l.ID, section.Category.Slug)
			}
		}
		if section.Category.Slug == "electronique" {
			if ids := listingIDs(section); !slices.Equal(ids, []string{"l-phone"}) {
				t.Errorf("Expected a single l-phone, got %v", ids)
			}
		}
	}
}

func TestBuildFeedListingInExactlyOneSection(t *testing.T) {
	// A misfiled row returned for electronique that belongs under vehicules
	listings := &MockListingSource{
		listings: testListings(),
		extra: map[string][]database.Listing{
			"elec": {listing("l-car", "voit", 1, "Golf 7")},
		},
	}
	aggregator := newTestAggregator(listings, time.Second)

	sections, err := aggregator.BuildFeed(context.Background(), DefaultBuildOptions(RuleSet{}))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	seen := make(map[string]string)
	for _, section := range sections {
		for _, l := range section.Listings {
			if other, ok := seen[l.ID]; ok {
				t.Errorf("Listing %s appears in %s and %s", l.ID, other, section.Category.Slug)
			}
			seen[l.ID] = section.Category.Slug
		}
	}
	if seen["l-car"] != "vehicules" {
		t.Errorf("Expected l-car under vehicules, got %q", seen["l-car"])
	}
}

func TestBuildFeedKeepsUnresolvedListings(t *testing.T) {
	listings := &MockListingSource{
		listings: testListings(),
		extra: map[string][]database.Listing{
			"emploi": {listing("l-orphan", "deleted-category", 0, "Développeur Go")},
		},
	}
	aggregator := newTestAggregator(listings, time.Second)

	sections, err := aggregator.BuildFeed(context.Background(), DefaultBuildOptions(RuleSet{}))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	var jobs *Section
	for i := range sections {
		if sections[i].Category.Slug == "emploi" {
			jobs = &sections[i]
		}
	}
	if jobs == nil {
		t.Fatal("Expected emploi section with the orphan listing")
	}

	orphan := jobs.Listings[0]
	if orphan.ID != "l-orphan" || orphan.CategorySlug != "" || orphan.ParentCategorySlug != "" {
		t.Errorf("Expected orphan with empty slugs, got %+v", orphan)
	}
}

func TestJoinSectionsDropsRepeatsAcrossSections(t *testing.T) {
	results := []sectionResult{
		{section: Section{Category: database.Category{Slug: "a"}, Listings: []Listing{{Listing: database.Listing{ID: "1"}}}}},
		{section: Section{Category: database.Category{Slug: "b"}, Listings: []Listing{{Listing: database.Listing{ID: "1"}}}}},
		{section: Section{Category: database.Category{Slug: "c"}}, err: errors.New("failed")},
		{section: Section{Category: database.Category{Slug: "d"}, Listings: []Listing{{Listing: database.Listing{ID: "2"}}, {Listing: database.Listing{ID: "1"}}}}},
	}

	sections := joinSections(results)

	if !slices.Equal(sectionSlugs(sections), []string{"a", "d"}) {
		t.Fatalf("Expected sections a and d, got %v", sectionSlugs(sections))
	}
	if ids := listingIDs(sections[1]); !slices.Equal(ids, []string{"2"}) {
		t.Errorf("Expected only listing 2 in d, got %v", ids)
	}
}
