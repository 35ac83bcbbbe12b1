package finalize

import (
	"context"
	"fmt"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/providers/upscale"
	"server/internal/storage"
)

// Finalizer produces and releases the print-ready asset once the gate allows
// it: upscale the accepted candidate, store it under the job's final key and
// advance the job.
type Finalizer struct {
	jobs     domain.JobRepository
	store    storage.ArtifactStore
	upscaler upscale.Upscaler
	scale    int
	flags    Flags
	logger   infra.Logger
}

// NewFinalizer wires the finalize flow.
func NewFinalizer(
	jobs domain.JobRepository,
	store storage.ArtifactStore,
	upscaler upscale.Upscaler,
	scale int,
	flags Flags,
	logger infra.Logger,
) *Finalizer {
	return &Finalizer{
		jobs:     jobs,
		store:    store,
		upscaler: upscaler,
		scale:    scale,
		flags:    flags,
		logger:   logger,
	}
}

// Outcome reports the finalized asset reference.
type Outcome struct {
	PrintReadyURL string `json:"printReadyUrl"`
	AlreadyFinal  bool   `json:"alreadyFinal,omitempty"`
}

// Finalize runs the release flow for jobID. A gate denial returns a
// *GateError with no state mutation. Re-finalizing a job whose print-ready
// asset already exists is a no-op returning the existing reference.
func (f *Finalizer) Finalize(ctx context.Context, jobID string, req Request) (*Outcome, error) {
	job, err := f.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if err := CanUnlockFinal(job, req, f.flags); err != nil {
		return nil, err
	}

	if job.PrintReadyURL != "" {
		return &Outcome{PrintReadyURL: job.PrintReadyURL, AlreadyFinal: true}, nil
	}

	if job.GeneratedURL == "" {
		return nil, fmt.Errorf("finalize: job %s has no generated asset", jobID)
	}
	source, err := f.store.Get(ctx, job.GeneratedURL)
	if err != nil {
		return nil, fmt.Errorf("finalize: load generated asset: %w", err)
	}

	upscaled, err := f.upscaler.Upscale(ctx, source, f.scale)
	if err != nil {
		return nil, fmt.Errorf("finalize: upscale: %w", err)
	}

	finalKey, err := f.store.Put(ctx, storage.ObjectKey(jobID, storage.RoleFinal), upscaled, "image/png")
	if err != nil {
		return nil, fmt.Errorf("finalize: persist final asset: %w", err)
	}

	status := domain.JobStatusUpscaled
	// Jobs past the upscaled rank keep their status; only the asset ref moves.
	if job.Status.Rank() >= status.Rank() {
		status = job.Status
	}
	if err := f.jobs.Update(ctx, jobID, domain.JobPatch{
		Status:        &status,
		PrintReadyURL: &finalKey,
	}); err != nil {
		return nil, fmt.Errorf("finalize: record result: %w", err)
	}

	f.logger.Info().
		Str("job_id", jobID).
		Str("final_key", finalKey).
		Bool("admin", req.IsAdmin).
		Msg("finalize: asset released")

	return &Outcome{PrintReadyURL: finalKey}, nil
}
