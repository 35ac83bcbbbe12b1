package repo

import (
	"context"
	"sync"

	"server/internal/domain"
)

// JobRepositoryMemory keeps jobs in process memory. It backs local
// development runs without a database and the handler tests.
type JobRepositoryMemory struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

// NewMemoryJobRepository creates an empty in-memory job repository.
func NewMemoryJobRepository() *JobRepositoryMemory {
	return &JobRepositoryMemory{jobs: make(map[string]*domain.Job)}
}

func (r *JobRepositoryMemory) Create(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := domain.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *job
	r.jobs[job.ID] = &stored
	return nil
}

func (r *JobRepositoryMemory) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (r *JobRepositoryMemory) Update(ctx context.Context, id string, patch domain.JobPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}

	if patch.Status != nil {
		job.Status = *patch.Status
	}
	if patch.Prompt != nil {
		job.Prompt = *patch.Prompt
	}
	if patch.OriginalURL != nil {
		job.OriginalURL = *patch.OriginalURL
	}
	if patch.PreviewURL != nil {
		job.PreviewURL = *patch.PreviewURL
	}
	if patch.GeneratedURL != nil {
		job.GeneratedURL = *patch.GeneratedURL
	}
	if patch.ResetPrintReady {
		job.PrintReadyURL = ""
	} else if patch.PrintReadyURL != nil {
		job.PrintReadyURL = *patch.PrintReadyURL
	}
	if patch.Likeness != nil {
		copied := *patch.Likeness
		job.Likeness = &copied
	}
	if patch.ProductType != nil {
		job.ProductType = *patch.ProductType
	}
	if patch.LockTweaks != nil {
		job.LockTweaks = *patch.LockTweaks
	}
	if patch.Refinements != nil {
		job.Refinements = *patch.Refinements
	}
	if patch.ErrorMessage != nil {
		job.ErrorMessage = *patch.ErrorMessage
	}
	job.UpdatedAt = domain.Now()
	return nil
}

var _ domain.JobRepository = (*JobRepositoryMemory)(nil)
