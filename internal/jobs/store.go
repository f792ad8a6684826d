// Package jobs owns the job lifecycle: submission, asynchronous pipeline
// scheduling, progress tracking and the status/result/image query surface.
package jobs

import (
	"context"
	"time"

	"diagramd/internal/domain"
)

// ProgressUpdate carries a partial update merged into a stored job.
// Zero-valued fields are left unchanged; merges are last-write-wins per
// field.
type ProgressUpdate struct {
	Phase     domain.Phase
	Agent     domain.Agent
	Iteration int
	Message   string
}

// Store is the pluggable job state backend. All methods must be safe under
// concurrent inserts from new submissions and concurrent updates and reads
// for running jobs. Unknown job ids yield domain.ErrNotFound.
type Store interface {
	// Insert adds a freshly submitted job.
	Insert(ctx context.Context, job *domain.Job) error
	// Get returns a snapshot of the job.
	Get(ctx context.Context, id string) (*domain.Job, error)
	// MarkRunning transitions the job to running and records its run
	// directory. The run directory never changes afterwards.
	MarkRunning(ctx context.Context, id, runDir string) error
	// UpdateProgress merges the supplied fields into the job.
	UpdateProgress(ctx context.Context, id string, upd ProgressUpdate) error
	// AppendIterationImage records one completed refinement iteration's
	// image, in iteration order.
	AppendIterationImage(ctx context.Context, id, imagePath string) error
	// Complete transitions the job to completed and stores the output.
	Complete(ctx context.Context, id string, out *domain.GenerationOutput) error
	// Fail transitions the job to failed. Previously observed progress
	// fields are kept.
	Fail(ctx context.Context, id, errMsg string) error
	// Sweep evicts terminal jobs last updated before cutoff and reports
	// how many were removed.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}
