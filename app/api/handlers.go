package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/listing-comb/app/catalog"
	"github.com/lysyi3m/listing-comb/app/database"
	"github.com/lysyi3m/listing-comb/app/tasks"
)

type Handler struct {
	snapshots  SnapshotProvider
	categories CategoryReader
	listings   ListingReader
	rules      RuleProvider
	generator  GeneratorInterface
	scheduler  tasks.TaskSchedulerInterface
	rssCache   RSSCache
}

// NewHandler wires the HTTP handlers. rssCache may be nil.
func NewHandler(snapshots SnapshotProvider, categories CategoryReader, listings ListingReader,
	rules RuleProvider, generator GeneratorInterface, scheduler tasks.TaskSchedulerInterface,
	rssCache RSSCache) *Handler {
	return &Handler{
		snapshots:  snapshots,
		categories: categories,
		listings:   listings,
		rules:      rules,
		generator:  generator,
		scheduler:  scheduler,
		rssCache:   rssCache,
	}
}

func (h *Handler) GetFeed(c *gin.Context) {
	snapshot, err := h.snapshots.Current(c.Request.Context())
	if err != nil {
		h.respondError(c, "get_feed", err)
		return
	}

	c.Header("X-Feed-Sections", strconv.Itoa(len(snapshot.Sections)))
	c.Header("X-Last-Updated", snapshot.BuiltAt.Format(time.RFC3339))

	c.JSON(http.StatusOK, newFeedResponse(snapshot))
}

func (h *Handler) GetSectionRSS(c *gin.Context) {
	slug := c.Param("slug")
	if slug == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	ctx := c.Request.Context()

	snapshot, err := h.snapshots.Current(ctx)
	if err != nil {
		h.respondError(c, "get_section_rss", err)
		return
	}

	section, ok := snapshot.Section(slug)
	if !ok {
		slog.Debug("Section not in feed", "category", slug)
		c.Status(http.StatusNotFound)
		return
	}

	rss, err := h.renderSection(ctx, slug, snapshot.BuiltAt, func() (string, error) {
		return h.generator.Run(section, snapshot.BuiltAt)
	})
	if err != nil {
		slog.Error("RSS generation error", "category", slug, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(section.Listings)))
	c.Header("X-Feed-Name", slug)
	c.Header("X-Last-Updated", snapshot.BuiltAt.Format(time.RFC3339))

	c.String(http.StatusOK, rss)
}

func (h *Handler) renderSection(ctx context.Context, slug string, builtAt time.Time, render func() (string, error)) (string, error) {
	if h.rssCache != nil {
		rss, found, err := h.rssCache.GetSectionRSS(ctx, slug, builtAt)
		if err != nil {
			slog.Warn("Failed to read cached RSS", "category", slug, "error", err)
		}
		if found {
			return rss, nil
		}
	}

	rss, err := render()
	if err != nil {
		return "", err
	}

	if h.rssCache != nil {
		if err := h.rssCache.SetSectionRSS(ctx, slug, builtAt, rss); err != nil {
			slog.Warn("Failed to cache RSS", "category", slug, "error", err)
		}
	}

	return rss, nil
}

func (h *Handler) GetCategories(c *gin.Context) {
	topLevel, err := h.categories.GetTopLevelCategories(c.Request.Context(), c.Query("exclude"))
	if err != nil {
		h.respondError(c, "get_categories", err)
		return
	}

	categories := make([]CategoryResponse, 0, len(topLevel))
	for _, category := range topLevel {
		categories = append(categories, newCategoryResponse(category))
	}

	c.JSON(http.StatusOK, gin.H{
		"categories": categories,
		"total":      len(categories),
	})
}

func (h *Handler) GetChildCategories(c *gin.Context) {
	children, err := h.categories.GetChildCategories(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get_child_categories", err)
		return
	}

	categories := make([]CategoryResponse, 0, len(children))
	for _, category := range children {
		categories = append(categories, newCategoryResponse(category))
	}

	c.JSON(http.StatusOK, gin.H{
		"parent_id":  c.Param("id"),
		"categories": categories,
		"total":      len(categories),
	})
}

func (h *Handler) GetIntent(c *gin.Context) {
	categorySlug := c.Query("category")
	if categorySlug == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing category parameter"})
		return
	}

	c.JSON(http.StatusOK, newIntentResponse(categorySlug, c.Query("parent")))
}

func (h *Handler) GetListingIntent(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing listing id parameter"})
		return
	}

	ctx := c.Request.Context()

	listing, err := h.listings.GetListing(ctx, id)
	if err != nil {
		h.respondError(c, "get_listing", err)
		return
	}
	if listing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		return
	}

	tree, err := catalog.LoadTree(ctx, h.categories)
	if err != nil {
		h.respondError(c, "get_categories", err)
		return
	}

	categorySlug, parentSlug := tree.ResolveSlugs(listing.CategoryID)

	response := newIntentResponse(categorySlug, parentSlug)
	response.ListingID = listing.ID

	c.JSON(http.StatusOK, response)
}

func (h *Handler) GetHealth(c *gin.Context) {
	ctx := c.Request.Context()

	health := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"rules":     h.rules.GetRuleCount(),
	}

	if count, err := h.listings.GetActiveListingCount(ctx); err == nil {
		health["active_listings"] = count
	} else {
		slog.Warn("Health check database error", "error", err)
		health["status"] = "degraded"
	}

	if checker, ok := h.rssCache.(interface {
		Health(ctx context.Context) map[string]any
	}); ok {
		health["cache"] = checker.Health(ctx)
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APIListRules(c *gin.Context) {
	rules := h.rules.GetRules()

	c.JSON(http.StatusOK, gin.H{
		"rules": rules,
		"total": len(rules),
	})
}

func (h *Handler) APIReloadRules(c *gin.Context) {
	task := tasks.NewReloadRulesTask("api", h.rules, h.snapshots)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing reload task", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue reload task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Rule reload enqueued, the feed is rebuilt afterwards",
		"tasks": []gin.H{
			{"id": task.ID, "type": task.Type},
		},
	})
}

func (h *Handler) APIRefreshFeed(c *gin.Context) {
	task := tasks.NewBuildFeedTask("api", h.snapshots)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing build task", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue build task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Feed rebuild enqueued",
		"tasks": []gin.H{
			{"id": task.ID, "type": task.Type},
		},
	})
}

// statusClientClosedRequest marks requests whose client went away mid-build.
const statusClientClosedRequest = 499

// respondError maps data source failures to 503 and everything else to 500.
func (h *Handler) respondError(c *gin.Context, operation string, err error) {
	if errors.Is(err, context.Canceled) {
		slog.Debug("Request cancelled by client", "operation", operation)
		c.AbortWithStatus(statusClientClosedRequest)
		return
	}

	var dsErr *database.DataSourceError
	if errors.As(err, &dsErr) {
		slog.Error("Data source unavailable", "operation", operation, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Data source unavailable"})
		return
	}

	slog.Error("Request failed", "operation", operation, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
}
