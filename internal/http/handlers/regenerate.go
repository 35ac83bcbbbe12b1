package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"server/internal/domain"
	"server/internal/pipeline"
	"server/internal/prompt"
	"server/internal/storage"
)

type regenerateRequest struct {
	JobID      string `json:"jobId"`
	Refinement string `json:"refinement"`
}

// Regenerate re-runs the pipeline for an existing job, optionally extending
// the stored prompt with refinement text. Refinements are bounded separately
// from the per-run attempt budget.
func (a *App) Regenerate(w http.ResponseWriter, r *http.Request) {
	var req regenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.JobID) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "jobId required")
		return
	}

	job, err := a.Jobs.GetByID(r.Context(), req.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	if job.Status == domain.JobStatusFulfilled {
		a.error(w, http.StatusConflict, "conflict", "job is already fulfilled")
		return
	}
	if job.Refinements >= a.Cfg.MaxRefinements {
		a.error(w, http.StatusForbidden, "refinement_limit", "refinement limit reached for this job")
		return
	}
	if job.OriginalURL == "" {
		a.error(w, http.StatusConflict, "conflict", "job has no original image")
		return
	}

	resolved := prompt.AppendRefinement(job.Prompt, req.Refinement)
	refinements := job.Refinements + 1
	if err := a.Jobs.Update(r.Context(), job.ID, domain.JobPatch{
		Prompt:      &resolved,
		Refinements: &refinements,
	}); err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to update job")
		return
	}

	original, err := a.Store.Get(r.Context(), job.OriginalURL)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			a.error(w, http.StatusConflict, "conflict", "original image is no longer available")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load original image")
		return
	}

	result, err := a.Pipeline.Run(r.Context(), job.ID, pipeline.Params{
		ImageData:         original,
		MIMEType:          http.DetectContentType(original),
		Prompt:            resolved,
		MaxAttempts:       a.Cfg.MaxGenerationAttempts,
		LikenessThreshold: a.Cfg.LikenessThreshold,
		IsRegeneration:    true,
	})
	if err != nil {
		a.pipelineError(w, job.ID, err)
		return
	}

	a.json(w, http.StatusOK, generateResponse{JobID: job.ID, Result: result})
}
