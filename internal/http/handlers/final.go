package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/finalize"
	"server/internal/middleware"
	"server/internal/storage"
)

type finalizeRequest struct {
	JobID string `json:"jobId"`
}

// Finalize runs the release flow: gate check, upscale, store the print-ready
// asset and advance the job. A denial carries the gate's reason code.
func (a *App) Finalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.JobID) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "jobId required")
		return
	}

	outcome, err := a.Finalizer.Finalize(r.Context(), req.JobID, finalize.Request{
		IsAdmin: middleware.IsAdmin(r.Context()),
	})
	if err != nil {
		a.finalizeError(w, req.JobID, err)
		return
	}
	a.json(w, http.StatusOK, outcome)
}

// Final streams the unwatermarked print-ready asset, re-checking the gate on
// every request so a job that regressed cannot keep serving its final.
// Registered for both GET and HEAD.
func (a *App) Final(w http.ResponseWriter, r *http.Request) {
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

	if err := finalize.CanUnlockFinal(job, finalize.Request{IsAdmin: middleware.IsAdmin(r.Context())}, a.Flags); err != nil {
		a.finalizeError(w, jobID, err)
		return
	}
	if job.PrintReadyURL == "" {
		a.error(w, http.StatusConflict, "conflict", "job has not been finalized yet")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, no-store")
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	stream, err := a.Store.Stream(r.Context(), job.PrintReadyURL)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "final asset not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to stream asset")
		return
	}
	defer stream.Close()

	if _, err := io.Copy(w, stream); err != nil {
		a.Log.Warn().Err(err).Str("job_id", jobID).Msg("final: stream interrupted")
	}
}

func (a *App) finalizeError(w http.ResponseWriter, jobID string, err error) {
	var gateErr *finalize.GateError
	switch {
	case errors.As(err, &gateErr):
		status := http.StatusPaymentRequired
		if gateErr.Code != finalize.CodePaymentRequired {
			status = http.StatusForbidden
		}
		a.error(w, status, gateErr.Code, gateErr.Reason)
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
	default:
		a.Log.Error().Err(err).Str("job_id", jobID).Msg("finalize failed")
		a.error(w, http.StatusInternalServerError, "internal", "finalize failed")
	}
}
