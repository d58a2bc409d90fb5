package tasks

import (
	"context"

	"github.com/lysyi3m/listing-comb/app/feed"
)

// TaskSchedulerInterface is what the HTTP layer needs to queue work.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// FeedBuilder rebuilds and stores the home feed snapshot.
type FeedBuilder interface {
	Rebuild(ctx context.Context) (*feed.Snapshot, error)
}

type RuleReloader interface {
	Reload() error
	GetRuleCount() int
}
