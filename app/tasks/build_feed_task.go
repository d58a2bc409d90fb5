package tasks

import (
	"context"
	"fmt"
	"log/slog"
)

type BuildFeedTask struct {
	Task
	builder FeedBuilder
}

func NewBuildFeedTask(trigger string, builder FeedBuilder) *BuildFeedTask {
	return &BuildFeedTask{
		Task:    NewTask(TaskTypeBuildFeed, trigger),
		builder: builder,
	}
}

func (t *BuildFeedTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	snapshot, err := t.builder.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("failed to build feed: %w", err)
	}

	listings := 0
	for _, section := range snapshot.Sections {
		listings += len(section.Listings)
	}

	slog.Info("Task completed",
		"type", "BuildFeed",
		"trigger", t.Trigger,
		"duration", t.GetDuration(),
		"sections", len(snapshot.Sections),
		"listings", listings)

	return nil
}
