package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"diagramd/internal/domain"
	"diagramd/internal/sqlinline"
)

// PGStore is the durable Store backend over PostgreSQL. It is selected in
// deployments that set DATABASE_URL; the in-memory store remains the
// default.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// EnsureSchema creates the jobs table when it does not exist yet.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, sqlinline.QJobsSchema)
	return err
}

func (s *PGStore) Insert(ctx context.Context, job *domain.Job) error {
	_, err := s.pool.Exec(ctx, sqlinline.QInsertJob,
		job.ID, job.Status, job.TotalIterations, job.Progress)
	return err
}

func (s *PGStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	row := s.pool.QueryRow(ctx, sqlinline.QGetJob, id)
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.Status,
		&job.Phase,
		&job.Agent,
		&job.Iteration,
		&job.TotalIterations,
		&job.Progress,
		&job.Error,
		&job.FinalImage,
		&job.IterationImages,
		&job.RunDir,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (s *PGStore) MarkRunning(ctx context.Context, id, runDir string) error {
	return s.exec(ctx, sqlinline.QMarkJobRunning, id, domain.JobStatusRunning, runDir)
}

func (s *PGStore) UpdateProgress(ctx context.Context, id string, upd ProgressUpdate) error {
	return s.exec(ctx, sqlinline.QUpdateJobProgress,
		id, string(upd.Phase), string(upd.Agent), upd.Iteration, upd.Message)
}

func (s *PGStore) AppendIterationImage(ctx context.Context, id, imagePath string) error {
	return s.exec(ctx, sqlinline.QAppendJobIterationImage, id, imagePath)
}

func (s *PGStore) Complete(ctx context.Context, id string, out *domain.GenerationOutput) error {
	return s.exec(ctx, sqlinline.QCompleteJob,
		id, domain.JobStatusCompleted, domain.PhaseCompleted,
		"Generation completed", out.ImagePath, iterationImages(out), out.RunDir)
}

func (s *PGStore) Fail(ctx context.Context, id, errMsg string) error {
	return s.exec(ctx, sqlinline.QFailJob, id, domain.JobStatusFailed, errMsg)
}

func (s *PGStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, sqlinline.QSweepJobs, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PGStore) exec(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ Store = (*PGStore)(nil)
