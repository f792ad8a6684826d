package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"diagramd/internal/domain"
	"diagramd/internal/infra"
	"diagramd/internal/pipeline"
	"diagramd/internal/storage"
)

// Runner executes one full pipeline run.
type Runner interface {
	Run(ctx context.Context, in domain.GenerationInput) (*domain.GenerationOutput, error)
}

// RunnerFactory builds a Runner for one job. The production factory wires
// the provider-backed agents; tests substitute fakes.
type RunnerFactory interface {
	New(runDir string, iterations int, sink pipeline.Sink) (Runner, error)
}

// FactoryFunc adapts a function to the RunnerFactory interface.
type FactoryFunc func(runDir string, iterations int, sink pipeline.Sink) (Runner, error)

func (f FactoryFunc) New(runDir string, iterations int, sink pipeline.Sink) (Runner, error) {
	return f(runDir, iterations, sink)
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Store   Store
	Runs    *storage.RunStore
	Factory RunnerFactory
	Logger  infra.Logger
	// MaxConcurrent bounds how many pipeline runs execute at once.
	// Additional submissions stay queued until a slot frees.
	MaxConcurrent int
	// TTL is how long terminal jobs are retained before the janitor
	// evicts them. Zero disables eviction.
	TTL time.Duration
}

// Service implements the job-facing API: non-blocking submission, status
// and result queries, and run-directory-scoped image resolution. Each
// submission schedules one pipeline run; runs are isolated, a failing job
// never affects other jobs or the process.
type Service struct {
	store   Store
	runs    *storage.RunStore
	factory RunnerFactory
	logger  infra.Logger
	sem     *semaphore.Weighted
	ttl     time.Duration
	wg      sync.WaitGroup
}

func NewService(opts ServiceOptions) *Service {
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Service{
		store:   opts.Store,
		runs:    opts.Runs,
		factory: opts.Factory,
		logger:  opts.Logger,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		ttl:     opts.TTL,
	}
}

// Submit records a queued job and schedules its pipeline run. It returns
// the job id before any agent executes; callers poll Status afterwards.
func (s *Service) Submit(ctx context.Context, in domain.GenerationInput, iterations int) (string, error) {
	if iterations < infra.MinRefinementIterations || iterations > infra.MaxRefinementIterations {
		return "", fmt.Errorf("%w: iterations must be between %d and %d",
			domain.ErrInvalidInput, infra.MinRefinementIterations, infra.MaxRefinementIterations)
	}

	now := time.Now()
	job := &domain.Job{
		ID:              uuid.NewString(),
		Status:          domain.JobStatusQueued,
		TotalIterations: iterations,
		Progress:        "Job queued",
		IterationImages: []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Insert(ctx, job); err != nil {
		return "", err
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Int("iterations", iterations).
		Msg("jobs: submitted")

	s.wg.Add(1)
	go s.run(job.ID, in, iterations)

	return job.ID, nil
}

// run owns one job from queued to terminal. It executes on a detached
// context: a submitted job runs until it finishes or the process exits.
func (s *Service) run(jobID string, in domain.GenerationInput, iterations int) {
	defer s.wg.Done()
	ctx := context.Background()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.failJob(ctx, jobID, err)
		return
	}
	defer s.sem.Release(1)

	runDir, err := s.runs.CreateRunDir(jobID)
	if err != nil {
		s.failJob(ctx, jobID, err)
		return
	}
	if err := s.store.MarkRunning(ctx, jobID, runDir); err != nil {
		s.failJob(ctx, jobID, err)
		return
	}

	runner, err := s.factory.New(runDir, iterations, &storeSink{store: s.store, jobID: jobID, logger: s.logger})
	if err != nil {
		s.failJob(ctx, jobID, err)
		return
	}

	out, err := runner.Run(ctx, in)
	if err != nil {
		s.failJob(ctx, jobID, err)
		return
	}

	if err := s.store.Complete(ctx, jobID, out); err != nil {
		s.failJob(ctx, jobID, err)
		return
	}
	s.logger.Info().Str("job_id", jobID).Str("run_dir", out.RunDir).Msg("jobs: completed")
}

func (s *Service) failJob(ctx context.Context, jobID string, cause error) {
	s.logger.Error().Err(cause).Str("job_id", jobID).Msg("jobs: failed")
	if err := s.store.Fail(ctx, jobID, cause.Error()); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("jobs: record failure failed")
	}
}

// Status returns a read-only snapshot of the job.
func (s *Service) Status(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.store.Get(ctx, jobID)
}

// Result returns the job once it has reached a terminal status.
func (s *Service) Result(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.Status.Terminal() {
		return nil, fmt.Errorf("%w: job %s is %s", domain.ErrNotReady, jobID, job.Status)
	}
	return job, nil
}

// ImagePath resolves filename strictly inside the job's run directory.
// Traversal attempts and missing artifacts yield domain.ErrNotFound.
func (s *Service) ImagePath(ctx context.Context, jobID, filename string) (string, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.RunDir == "" {
		return "", domain.ErrNotFound
	}
	return s.runs.Resolve(job.RunDir, filename)
}

// Janitor evicts expired terminal jobs at the given interval until ctx is
// done. It is a no-op when the service has no TTL configured.
func (s *Service) Janitor(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.store.Sweep(ctx, time.Now().Add(-s.ttl))
			if err != nil {
				s.logger.Warn().Err(err).Msg("jobs: sweep failed")
				continue
			}
			if removed > 0 {
				s.logger.Debug().Int("removed", removed).Msg("jobs: swept expired jobs")
			}
		}
	}
}

// Drain waits for in-flight pipeline runs to finish or for ctx to expire.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// storeSink persists orchestrator progress onto the job record. Reporting
// is best-effort; a store hiccup must not abort the pipeline.
type storeSink struct {
	store  Store
	jobID  string
	logger infra.Logger
}

func (s *storeSink) Report(ctx context.Context, u pipeline.Update) {
	err := s.store.UpdateProgress(ctx, s.jobID, ProgressUpdate{
		Phase:     u.Phase,
		Agent:     u.Agent,
		Iteration: u.Iteration,
		Message:   u.Message,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", s.jobID).Msg("jobs: progress update failed")
	}
}

func (s *storeSink) IterationDone(ctx context.Context, res domain.IterationResult) {
	if err := s.store.AppendIterationImage(ctx, s.jobID, res.ImagePath); err != nil {
		s.logger.Warn().Err(err).Str("job_id", s.jobID).Msg("jobs: iteration image append failed")
	}
}

var _ pipeline.Sink = (*storeSink)(nil)
