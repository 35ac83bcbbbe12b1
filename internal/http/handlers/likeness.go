package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"server/internal/domain"
)

type likenessRequest struct {
	JobID string `json:"jobId"`
}

type likenessResponse struct {
	JobID     string  `json:"jobId"`
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
	Met       bool    `json:"met"`
}

// Likeness re-scores a job's accepted portrait against the original photo on
// demand. The stored likeness record on the job is left untouched; this is a
// read-only diagnostic.
func (a *App) Likeness(w http.ResponseWriter, r *http.Request) {
	var req likenessRequest
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
	if job.OriginalURL == "" || job.GeneratedURL == "" {
		a.error(w, http.StatusConflict, "conflict", "job has no generated portrait to score")
		return
	}

	original, err := a.Store.Get(r.Context(), job.OriginalURL)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load original image")
		return
	}
	generated, err := a.Store.Get(r.Context(), job.GeneratedURL)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load generated image")
		return
	}

	score, err := a.Scorer.Score(r.Context(), original, generated)
	if err != nil {
		a.error(w, http.StatusBadGateway, "scorer_unavailable", "likeness scoring failed")
		return
	}

	threshold := a.Cfg.LikenessThreshold
	if job.Likeness != nil {
		threshold = job.Likeness.Threshold
	}
	a.json(w, http.StatusOK, likenessResponse{
		JobID:     job.ID,
		Score:     score,
		Threshold: threshold,
		Met:       score >= threshold,
	})
}
