package pipeline

import (
	"context"

	"diagramd/internal/domain"
)

// Update is one progress checkpoint. Zero-valued fields mean "unchanged"
// when merged into stored job state.
type Update struct {
	Phase     domain.Phase
	Agent     domain.Agent
	Iteration int
	Message   string
}

// Sink receives progress from a running pipeline. The orchestrator has no
// knowledge of where progress is persisted; callers inject a store-backed
// sink in production and a recording sink in tests. Report fires before
// each agent step; IterationDone fires once per completed refinement
// iteration, after the critic returns.
type Sink interface {
	Report(ctx context.Context, u Update)
	IterationDone(ctx context.Context, res domain.IterationResult)
}

// NopSink discards all progress.
type NopSink struct{}

func (NopSink) Report(context.Context, Update) {}
func (NopSink) IterationDone(context.Context, domain.IterationResult) {}
