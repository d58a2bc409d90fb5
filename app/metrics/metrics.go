package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder groups the feed aggregation metrics. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	feedBuilds      *prometheus.CounterVec
	buildDuration   prometheus.Histogram
	sections        prometheus.Gauge
	partialFailures *prometheus.CounterVec
	ruleExclusions  *prometheus.CounterVec
	unresolved      prometheus.Counter
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		feedBuilds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "listing_comb_feed_builds_total",
			Help: "Home feed builds by result",
		}, []string{"result"}),

		buildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "listing_comb_feed_build_duration_seconds",
			Help:    "Home feed build duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}),

		sections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "listing_comb_feed_sections",
			Help: "Number of non-empty sections in the last built feed",
		}),

		partialFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "listing_comb_section_fetch_failures_total",
			Help: "Per-category listing fetches that failed or timed out",
		}, []string{"category"}),

		ruleExclusions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "listing_comb_rule_exclusions_total",
			Help: "Listings removed from a section by a miscategorization rule",
		}, []string{"category"}),

		unresolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "listing_comb_unresolved_category_listings_total",
			Help: "Listings surfaced with a category missing from the snapshot",
		}),
	}
}

func (r *Recorder) FeedBuilt(duration time.Duration, sections int) {
	if r == nil {
		return
	}
	r.feedBuilds.WithLabelValues("success").Inc()
	r.buildDuration.Observe(duration.Seconds())
	r.sections.Set(float64(sections))
}

func (r *Recorder) FeedFailed(duration time.Duration) {
	if r == nil {
		return
	}
	r.feedBuilds.WithLabelValues("failure").Inc()
	r.buildDuration.Observe(duration.Seconds())
}

func (r *Recorder) SectionFetchFailed(categorySlug string) {
	if r == nil {
		return
	}
	r.partialFailures.WithLabelValues(categorySlug).Inc()
}

func (r *Recorder) ListingsExcluded(categorySlug string, count int) {
	if r == nil || count == 0 {
		return
	}
	r.ruleExclusions.WithLabelValues(categorySlug).Add(float64(count))
}

func (r *Recorder) UnresolvedCategory() {
	if r == nil {
		return
	}
	r.unresolved.Inc()
}
