package domain

// GenerationInput carries the user-supplied material for one run. Created
// per request and never mutated afterwards.
type GenerationInput struct {
	SourceContext       string
	CommunicativeIntent string
}

// IterationResult records one refinement cycle: the candidate image and
// the critic's verdict on it. Results are appended in iteration order and
// never reordered.
type IterationResult struct {
	Iteration int
	ImagePath string
	Verdict   string
}

// GenerationOutput is assembled once, at pipeline completion. ImagePath is
// the most recent iteration's image.
type GenerationOutput struct {
	ImagePath  string
	Iterations []IterationResult
	RunDir     string
	Metadata   map[string]string
}
