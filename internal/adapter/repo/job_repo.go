package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	likeness, err := marshalLikeness(job.Likeness)
	if err != nil {
		return err
	}
	query := `
INSERT INTO jobs (id, status, style_id, pet_name, email, ip, prompt,
                  original_url, preview_url, generated_url, print_ready_url,
                  likeness, product_type, lock_tweaks, refinements, error_message,
                  created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17);
`
	now := domain.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		job.StyleID,
		job.PetName,
		job.Email,
		job.IP,
		job.Prompt,
		job.OriginalURL,
		job.PreviewURL,
		job.GeneratedURL,
		nullableString(job.PrintReadyURL),
		likeness,
		nullableString(string(job.ProductType)),
		job.LockTweaks,
		job.Refinements,
		job.ErrorMessage,
		now,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	query := `
SELECT id, status, style_id, pet_name, email, ip, prompt,
       original_url, preview_url, generated_url, COALESCE(print_ready_url, ''),
       likeness, COALESCE(product_type, ''), lock_tweaks, refinements, error_message,
       created_at, updated_at
FROM jobs
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, id)
	var job domain.Job
	var likeness []byte
	var productType string
	if err := row.Scan(
		&job.ID,
		&job.Status,
		&job.StyleID,
		&job.PetName,
		&job.Email,
		&job.IP,
		&job.Prompt,
		&job.OriginalURL,
		&job.PreviewURL,
		&job.GeneratedURL,
		&job.PrintReadyURL,
		&likeness,
		&productType,
		&job.LockTweaks,
		&job.Refinements,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.ProductType = domain.ProductType(productType)
	if len(likeness) > 0 {
		var l domain.Likeness
		if err := json.Unmarshal(likeness, &l); err != nil {
			return nil, fmt.Errorf("decode likeness: %w", err)
		}
		job.Likeness = &l
	}
	return &job, nil
}

// Update applies a shallow merge-patch: set patch fields replace stored
// values, everything else stays. Last write wins; updated_at is refreshed on
// every mutation.
func (r *JobRepositoryPG) Update(ctx context.Context, id string, patch domain.JobPatch) error {
	sets := []string{"updated_at = $2"}
	args := []any{id, domain.Now()}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.Prompt != nil {
		add("prompt", *patch.Prompt)
	}
	if patch.OriginalURL != nil {
		add("original_url", *patch.OriginalURL)
	}
	if patch.PreviewURL != nil {
		add("preview_url", *patch.PreviewURL)
	}
	if patch.GeneratedURL != nil {
		add("generated_url", *patch.GeneratedURL)
	}
	if patch.ResetPrintReady {
		sets = append(sets, "print_ready_url = NULL")
	} else if patch.PrintReadyURL != nil {
		add("print_ready_url", *patch.PrintReadyURL)
	}
	if patch.Likeness != nil {
		likeness, err := marshalLikeness(patch.Likeness)
		if err != nil {
			return err
		}
		add("likeness", likeness)
	}
	if patch.ProductType != nil {
		add("product_type", string(*patch.ProductType))
	}
	if patch.LockTweaks != nil {
		add("lock_tweaks", *patch.LockTweaks)
	}
	if patch.Refinements != nil {
		add("refinements", *patch.Refinements)
	}
	if patch.ErrorMessage != nil {
		add("error_message", *patch.ErrorMessage)
	}

	query := fmt.Sprintf("UPDATE jobs SET %s WHERE id = $1;", strings.Join(sets, ", "))
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func marshalLikeness(l *domain.Likeness) ([]byte, error) {
	if l == nil {
		return nil, nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("encode likeness: %w", err)
	}
	return data, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
