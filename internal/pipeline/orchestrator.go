package pipeline

import (
	"context"
	"errors"
	"fmt"

	"diagramd/internal/domain"
	"diagramd/internal/infra"
)

// Options assembles one orchestrator. All five agents are required;
// Iterations must lie within the supported refinement bounds.
type Options struct {
	Retriever  Retriever
	Planner    Planner
	Stylist    Stylist
	Visualizer Visualizer
	Critic     Critic
	Iterations int
	RunDir     string
	Sink       Sink
	Logger     infra.Logger
}

// Orchestrator runs one generation from start to finish: the planning
// phase (retriever, planner, stylist) strictly in order, then the
// refinement loop (visualizer, critic) for each iteration strictly in
// order. Any agent error aborts the run immediately; nothing is retried.
type Orchestrator struct {
	retriever  Retriever
	planner    Planner
	stylist    Stylist
	visualizer Visualizer
	critic     Critic
	iterations int
	runDir     string
	sink       Sink
	logger     infra.Logger
}

// New validates the options and builds an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Retriever == nil || opts.Planner == nil || opts.Stylist == nil ||
		opts.Visualizer == nil || opts.Critic == nil {
		return nil, errors.New("pipeline: all five agents are required")
	}
	if opts.Iterations < infra.MinRefinementIterations || opts.Iterations > infra.MaxRefinementIterations {
		return nil, fmt.Errorf("pipeline: iterations must be between %d and %d, got %d",
			infra.MinRefinementIterations, infra.MaxRefinementIterations, opts.Iterations)
	}
	sink := opts.Sink
	if sink == nil {
		sink = NopSink{}
	}
	return &Orchestrator{
		retriever:  opts.Retriever,
		planner:    opts.Planner,
		stylist:    opts.Stylist,
		visualizer: opts.Visualizer,
		critic:     opts.Critic,
		iterations: opts.Iterations,
		runDir:     opts.RunDir,
		sink:       sink,
		logger:     opts.Logger,
	}, nil
}

// Run executes the full pipeline for one input.
func (o *Orchestrator) Run(ctx context.Context, in domain.GenerationInput) (*domain.GenerationOutput, error) {
	o.sink.Report(ctx, Update{
		Phase:   domain.PhasePlanning,
		Agent:   domain.AgentRetriever,
		Message: "Retrieving relevant examples...",
	})
	references, err := o.retriever.Run(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("retriever: %w", err)
	}

	o.sink.Report(ctx, Update{
		Phase:   domain.PhasePlanning,
		Agent:   domain.AgentPlanner,
		Message: "Generating textual description...",
	})
	description, err := o.planner.Run(ctx, in, references)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	o.sink.Report(ctx, Update{
		Phase:   domain.PhasePlanning,
		Agent:   domain.AgentStylist,
		Message: "Optimizing description aesthetics...",
	})
	styled, err := o.stylist.Run(ctx, description)
	if err != nil {
		return nil, fmt.Errorf("stylist: %w", err)
	}

	results := make([]domain.IterationResult, 0, o.iterations)
	for k := 1; k <= o.iterations; k++ {
		o.sink.Report(ctx, Update{
			Phase:     domain.PhaseRefinement,
			Agent:     domain.AgentVisualizer,
			Iteration: k,
			Message:   fmt.Sprintf("Generating image (iteration %d/%d)...", k, o.iterations),
		})
		imagePath, err := o.visualizer.Run(ctx, styled, k)
		if err != nil {
			return nil, fmt.Errorf("visualizer (iteration %d): %w", k, err)
		}

		o.sink.Report(ctx, Update{
			Phase:     domain.PhaseRefinement,
			Agent:     domain.AgentCritic,
			Iteration: k,
			Message:   fmt.Sprintf("Evaluating image (iteration %d/%d)...", k, o.iterations),
		})
		verdict, err := o.critic.Run(ctx, in, imagePath, k)
		if err != nil {
			return nil, fmt.Errorf("critic (iteration %d): %w", k, err)
		}

		result := domain.IterationResult{Iteration: k, ImagePath: imagePath, Verdict: verdict}
		results = append(results, result)
		o.sink.IterationDone(ctx, result)
	}

	o.logger.Info().
		Int("iterations", len(results)).
		Str("run_dir", o.runDir).
		Msg("pipeline: generation completed")

	return &domain.GenerationOutput{
		ImagePath:  results[len(results)-1].ImagePath,
		Iterations: results,
		RunDir:     o.runDir,
		Metadata:   map[string]string{"run_dir": o.runDir},
	}, nil
}
