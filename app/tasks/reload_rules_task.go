package tasks

import (
	"context"
	"fmt"
	"log/slog"
)

// ReloadRulesTask rereads the rules directory and rebuilds the feed with
// the new rules. A failed rebuild does not undo the reload.
type ReloadRulesTask struct {
	Task
	rules   RuleReloader
	builder FeedBuilder
}

func NewReloadRulesTask(trigger string, rules RuleReloader, builder FeedBuilder) *ReloadRulesTask {
	return &ReloadRulesTask{
		Task:    NewTask(TaskTypeReloadRules, trigger),
		rules:   rules,
		builder: builder,
	}
}

func (t *ReloadRulesTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.rules.Reload(); err != nil {
		return fmt.Errorf("failed to reload rules: %w", err)
	}

	rebuilt := true
	if t.builder != nil {
		if _, err := t.builder.Rebuild(ctx); err != nil {
			slog.Warn("Feed rebuild after rule reload failed", "error", err)
			rebuilt = false
		}
	}

	slog.Info("Task completed",
		"type", "ReloadRules",
		"trigger", t.Trigger,
		"duration", t.GetDuration(),
		"rules", t.rules.GetRuleCount(),
		"rebuilt", rebuilt)

	return nil
}
