package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"diagramd/internal/domain"
)

// MemoryStore keeps jobs in a mutex-guarded map. Reads return clones so
// status queries never observe a job mid-mutation.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*domain.Job)}
}

func (s *MemoryStore) Insert(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("jobs: duplicate id %s", job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryStore) MarkRunning(ctx context.Context, id, runDir string) error {
	return s.mutate(id, func(job *domain.Job) {
		job.Status = domain.JobStatusRunning
		if job.RunDir == "" {
			job.RunDir = runDir
		}
	})
}

func (s *MemoryStore) UpdateProgress(ctx context.Context, id string, upd ProgressUpdate) error {
	return s.mutate(id, func(job *domain.Job) {
		if upd.Phase != domain.PhaseNone {
			job.Phase = upd.Phase
		}
		if upd.Agent != domain.AgentNone {
			job.Agent = upd.Agent
		}
		if upd.Iteration > 0 {
			job.Iteration = upd.Iteration
		}
		if upd.Message != "" {
			job.Progress = upd.Message
		}
	})
}

func (s *MemoryStore) AppendIterationImage(ctx context.Context, id, imagePath string) error {
	return s.mutate(id, func(job *domain.Job) {
		job.IterationImages = append(job.IterationImages, imagePath)
	})
}

func (s *MemoryStore) Complete(ctx context.Context, id string, out *domain.GenerationOutput) error {
	return s.mutate(id, func(job *domain.Job) {
		job.Status = domain.JobStatusCompleted
		job.Phase = domain.PhaseCompleted
		job.Agent = domain.AgentNone
		job.Progress = "Generation completed"
		job.FinalImage = out.ImagePath
		job.IterationImages = iterationImages(out)
		if job.RunDir == "" {
			job.RunDir = out.RunDir
		}
	})
}

func (s *MemoryStore) Fail(ctx context.Context, id, errMsg string) error {
	return s.mutate(id, func(job *domain.Job) {
		job.Status = domain.JobStatusFailed
		job.Error = errMsg
	})
}

func (s *MemoryStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, job := range s.jobs {
		if job.Status.Terminal() && job.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) mutate(id string, fn func(*domain.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(job)
	job.UpdatedAt = time.Now()
	return nil
}

// iterationImages flattens an output's iteration history into the ordered
// image path list stored on the job.
func iterationImages(out *domain.GenerationOutput) []string {
	paths := make([]string, 0, len(out.Iterations))
	for _, it := range out.Iterations {
		paths = append(paths, it.ImagePath)
	}
	return paths
}

var _ Store = (*MemoryStore)(nil)
