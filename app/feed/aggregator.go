package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/listing-comb/app/catalog"
	"github.com/lysyi3m/listing-comb/app/database"
	"github.com/lysyi3m/listing-comb/app/metrics"
)

// ListingSource is the part of the data source a section pipeline reads.
type ListingSource interface {
	GetActiveListings(ctx context.Context, categoryIDs []string, limit int) ([]database.Listing, error)
}

type BuildOptions struct {
	ExcludeSlug string
	PageSize    int
	Rules       RuleSet
}

func DefaultBuildOptions(rules RuleSet) BuildOptions {
	return BuildOptions{
		ExcludeSlug: DefaultExcludeSlug,
		PageSize:    DefaultPageSize,
		Rules:       rules,
	}
}

type Aggregator struct {
	categories     catalog.CategorySource
	listings       ListingSource
	filterer       *Filterer
	recorder       *metrics.Recorder
	sectionTimeout time.Duration
}

func NewAggregator(categories catalog.CategorySource, listings ListingSource, filterer *Filterer, recorder *metrics.Recorder, sectionTimeout time.Duration) *Aggregator {
	if filterer == nil {
		filterer = NewFilterer()
	}
	if sectionTimeout <= 0 {
		sectionTimeout = DefaultSectionTimeout
	}

	return &Aggregator{
		categories:     categories,
		listings:       listings,
		filterer:       filterer,
		recorder:       recorder,
		sectionTimeout: sectionTimeout,
	}
}

type sectionResult struct {
	section Section
	err     error
}

// BuildFeed assembles one section per top-level category. Sections keep the
// display order of their categories and empty ones are left out. Only a
// failed category load, or a failure of every section, is returned as an
// error; a single failing section is logged and skipped. A cancelled or
// expired ctx is returned as ctx.Err(), not as a data source failure.
func (a *Aggregator) BuildFeed(ctx context.Context, opts BuildOptions) ([]Section, error) {
	startTime := time.Now()

	tree, err := catalog.LoadTree(ctx, a.categories)
	if err != nil {
		a.recorder.FeedFailed(time.Since(startTime))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}

	topLevel := tree.TopLevelCategories(opts.ExcludeSlug)
	results := make([]sectionResult, len(topLevel))

	g, gctx := errgroup.WithContext(ctx)
	for i, category := range topLevel {
		g.Go(func() error {
			section, err := a.buildSection(gctx, tree, category, opts)
			results[i] = sectionResult{section: section, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		a.recorder.FeedFailed(time.Since(startTime))
		slog.Debug("Feed build abandoned by caller", "error", err)
		return nil, err
	}

	var errs []error
	for i, result := range results {
		if result.err == nil {
			continue
		}
		slog.Warn("Section fetch failed", "category", topLevel[i].Slug, "error", result.err)
		a.recorder.SectionFetchFailed(topLevel[i].Slug)
		errs = append(errs, result.err)
	}

	if len(topLevel) > 0 && len(errs) == len(topLevel) {
		a.recorder.FeedFailed(time.Since(startTime))
		return nil, &database.DataSourceError{
			Op:  "all section fetches failed",
			Err: errors.Join(errs...),
		}
	}

	sections := joinSections(results)

	duration := time.Since(startTime)
	a.recorder.FeedBuilt(duration, len(sections))

	slog.Debug("Feed built",
		"sections", len(sections),
		"top_level", len(topLevel),
		"failed", len(errs),
		"duration", duration)

	return sections, nil
}

// buildSection fetches, filters and enriches the listings of one top-level
// category. The fetch runs in its own goroutine so a driver that ignores
// context cancellation cannot stall the join past the section timeout.
func (a *Aggregator) buildSection(parent context.Context, tree *catalog.Tree, category database.Category, opts BuildOptions) (Section, error) {
	ctx, cancel := context.WithTimeout(parent, a.sectionTimeout)
	defer cancel()

	categoryIDs := tree.CategoryIDs(category.ID)

	type fetchResult struct {
		listings []database.Listing
		err      error
	}
	done := make(chan fetchResult, 1)

	go func() {
		listings, err := a.listings.GetActiveListings(ctx, categoryIDs, opts.PageSize)
		done <- fetchResult{listings: listings, err: err}
	}()

	var listings []database.Listing
	select {
	case <-ctx.Done():
		if err := parent.Err(); err != nil {
			return Section{Category: category}, fmt.Errorf("section %s cancelled: %w", category.Slug, err)
		}
		return Section{Category: category}, fmt.Errorf("section %s timed out: %w", category.Slug, ctx.Err())
	case result := <-done:
		if result.err != nil {
			return Section{Category: category}, fmt.Errorf("section %s: %w", category.Slug, result.err)
		}
		listings = result.listings
	}

	kept, excluded := a.filterer.Run(listings, opts.Rules.For(category.Slug))
	if excluded > 0 {
		slog.Debug("Listings excluded by rules", "category", category.Slug, "excluded", excluded)
		a.recorder.ListingsExcluded(category.Slug, excluded)
	}

	return Section{
		Category: category,
		Listings: a.enrich(tree, category, kept),
	}, nil
}

func (a *Aggregator) enrich(tree *catalog.Tree, section database.Category, listings []database.Listing) []Listing {
	enriched := make([]Listing, 0, len(listings))
	seen := make(map[string]bool, len(listings))

	for _, listing := range listings {
		if listing.Status != database.ListingStatusActive || seen[listing.ID] {
			continue
		}

		categorySlug, parentSlug := tree.ResolveSlugs(listing.CategoryID)
		if categorySlug == "" {
			a.recorder.UnresolvedCategory()
			slog.Debug("Listing category not found", "listing_id", listing.ID, "category_id", listing.CategoryID)
		} else if ancestor, ok := tree.TopLevelAncestor(listing.CategoryID); ok && ancestor.ID != section.ID {
			continue
		}

		seen[listing.ID] = true
		enriched = append(enriched, Listing{
			Listing:            listing,
			CategorySlug:       categorySlug,
			ParentCategorySlug: parentSlug,
		})
	}

	return enriched
}

// joinSections walks the results in category order, so a listing seen in an
// earlier section is dropped from later ones.
func joinSections(results []sectionResult) []Section {
	sections := make([]Section, 0, len(results))
	emitted := make(map[string]bool)

	for _, result := range results {
		if result.err != nil {
			continue
		}

		listings := make([]Listing, 0, len(result.section.Listings))
		for _, listing := range result.section.Listings {
			if emitted[listing.ID] {
				continue
			}
			emitted[listing.ID] = true
			listings = append(listings, listing)
		}

		if len(listings) == 0 {
			continue
		}
		sections = append(sections, Section{
			Category: result.section.Category,
			Listings: listings,
		})
	}

	return sections
}
