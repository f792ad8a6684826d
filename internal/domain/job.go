package domain

import "time"

// JobStatus enumerates job lifecycle states. Transitions are monotonic:
// queued -> running -> completed|failed.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Phase identifies which stage of the pipeline a job is in.
type Phase string

const (
	PhaseNone       Phase = ""
	PhasePlanning   Phase = "planning"
	PhaseRefinement Phase = "refinement"
	PhaseCompleted  Phase = "completed"
)

// Agent identifies a single pipeline stage.
type Agent string

const (
	AgentNone       Agent = ""
	AgentRetriever  Agent = "retriever"
	AgentPlanner    Agent = "planner"
	AgentStylist    Agent = "stylist"
	AgentVisualizer Agent = "visualizer"
	AgentCritic     Agent = "critic"
)

// Job tracks the lifecycle of one diagram generation run. TotalIterations
// is fixed at creation; RunDir, once assigned, never changes; the
// IterationImages slice only grows and never exceeds TotalIterations.
type Job struct {
	ID              string
	Status          JobStatus
	Phase           Phase
	Agent           Agent
	Iteration       int
	TotalIterations int
	Progress        string
	Error           string
	FinalImage      string
	IterationImages []string
	RunDir          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Clone returns an independent copy of the job so readers never observe
// in-place mutation by the orchestrator.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.IterationImages = append([]string(nil), j.IterationImages...)
	return &out
}
