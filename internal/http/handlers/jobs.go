package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
)

// JobStatus returns the job record for polling clients.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	a.json(w, http.StatusOK, job)
}

type lockRequest struct {
	JobID       string `json:"jobId"`
	Tweaks      string `json:"tweaks"`
	ProductType string `json:"productType"`
}

// Lock commits the user to the current preview: the job stops accepting
// regenerations through the UI and records the chosen product.
func (a *App) Lock(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
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
	if !job.Status.CanTransition(domain.JobStatusLocked) {
		a.error(w, http.StatusConflict, "conflict", "job cannot be locked from its current status")
		return
	}

	patch := domain.JobPatch{}
	locked := domain.JobStatusLocked
	patch.Status = &locked
	if tweaks := strings.TrimSpace(req.Tweaks); tweaks != "" {
		patch.LockTweaks = &tweaks
	}
	if req.ProductType != "" {
		productType := domain.ProductType(req.ProductType)
		if productType != domain.ProductDigitalOnly && productType != domain.ProductPrintBundle {
			a.error(w, http.StatusBadRequest, "bad_request", "unknown productType")
			return
		}
		if productType == domain.ProductDigitalOnly && !a.Flags.AllowDigitalOnly {
			a.error(w, http.StatusBadRequest, "bad_request", "digital-only product is not available")
			return
		}
		patch.ProductType = &productType
	}

	if err := a.Jobs.Update(r.Context(), job.ID, patch); err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to update job")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"jobId": job.ID, "status": domain.JobStatusLocked})
}

type reportErrorRequest struct {
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

// ReportError lets the client surface a terminal failure it observed, leaving
// the job in an inspectable error state.
func (a *App) ReportError(w http.ResponseWriter, r *http.Request) {
	var req reportErrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.JobID) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "jobId required")
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		message = "client reported an unspecified error"
	}
	status := domain.JobStatusError
	if err := a.Jobs.Update(r.Context(), req.JobID, domain.JobPatch{
		Status:       &status,
		ErrorMessage: &message,
	}); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to update job")
		return
	}

	a.Log.Warn().Str("job_id", req.JobID).Str("message", message).Msg("client reported error")
	a.json(w, http.StatusOK, map[string]any{"jobId": req.JobID, "status": status})
}
