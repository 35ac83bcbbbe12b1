package domain

import (
	"context"
	"time"
)

// JobPatch carries a shallow merge-patch for a Job. Nil fields are left
// untouched; set fields replace the stored value. UpdatedAt is always
// server-assigned.
type JobPatch struct {
	Status       *JobStatus
	Prompt       *string
	OriginalURL  *string
	PreviewURL   *string
	GeneratedURL *string

	// PrintReadyURL set to a value replaces the field; ResetPrintReady
	// clears it (a fresh generation invalidates any stale finalized asset).
	PrintReadyURL   *string
	ResetPrintReady bool

	Likeness     *Likeness
	ProductType  *ProductType
	LockTweaks   *string
	Refinements  *int
	ErrorMessage *string
}

// JobRepository defines persistence for job entities. GetByID returns
// ErrNotFound for missing jobs rather than a nil/ok pair; Update applies a
// shallow merge with last-write-wins semantics and refreshes UpdatedAt.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, id string, patch JobPatch) error
}

// Now returns the server-assigned timestamp for job mutations. Indirection
// keeps repository tests deterministic.
var Now = func() time.Time { return time.Now().UTC() }
