// Package pipeline drives the five-stage diagram generation sequence:
// retriever, planner and stylist in a one-shot planning phase, then
// visualizer and critic over a bounded number of refinement iterations.
package pipeline

import (
	"context"

	"diagramd/internal/domain"
)

// Retriever selects reference material relevant to the input. Its output
// feeds the planner.
type Retriever interface {
	Run(ctx context.Context, in domain.GenerationInput) (string, error)
}

// Planner drafts the textual diagram description from the input and the
// retrieved references.
type Planner interface {
	Run(ctx context.Context, in domain.GenerationInput, references string) (string, error)
}

// Stylist rewrites the description for visual clarity and aesthetics.
type Stylist interface {
	Run(ctx context.Context, description string) (string, error)
}

// Visualizer renders the description into a candidate image for the given
// 1-based iteration and returns the written image path.
type Visualizer interface {
	Run(ctx context.Context, description string, iteration int) (string, error)
}

// Critic evaluates a candidate image against the input and returns its
// verdict. The verdict is recorded per iteration; it does not feed back
// into the next visualizer call.
type Critic interface {
	Run(ctx context.Context, in domain.GenerationInput, imagePath string, iteration int) (string, error)
}
