package pipeline

import (
	"diagramd/internal/infra"
	"diagramd/internal/providers/imagegen"
	"diagramd/internal/providers/vlm"
	"diagramd/internal/storage"
)

// Factory builds one orchestrator per job with the default provider-backed
// agents. The run directory is baked into the visualizer so every artifact
// the job produces lands in its own directory.
type Factory struct {
	vlm    vlm.Provider
	gen    imagegen.Generator
	runs   *storage.RunStore
	logger infra.Logger
}

func NewFactory(vlmProvider vlm.Provider, gen imagegen.Generator, runs *storage.RunStore, logger infra.Logger) *Factory {
	return &Factory{vlm: vlmProvider, gen: gen, runs: runs, logger: logger}
}

// New assembles an orchestrator for a single run.
func (f *Factory) New(runDir string, iterations int, sink Sink) (*Orchestrator, error) {
	return New(Options{
		Retriever:  NewGuidelineRetriever(f.vlm),
		Planner:    NewDescriptionPlanner(f.vlm),
		Stylist:    NewAestheticStylist(f.vlm),
		Visualizer: NewImageVisualizer(f.gen, f.runs, runDir),
		Critic:     NewVisionCritic(f.vlm),
		Iterations: iterations,
		RunDir:     runDir,
		Sink:       sink,
		Logger:     f.logger,
	})
}
