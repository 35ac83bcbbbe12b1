package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/middleware"
	"server/internal/pipeline"
	"server/internal/prompt"
	"server/internal/providers/image"
	"server/internal/storage"
)

type generateRequest struct {
	ImageBase64 string `json:"imageBase64"`
	Style       string `json:"style"`
	PetName     string `json:"petName"`
	Email       string `json:"email"`
	Background  string `json:"background"`
	ProductType string `json:"productType"`
}

type generateResponse struct {
	JobID string `json:"jobId"`
	*pipeline.Result
}

// Generate creates a Job from an uploaded pet photo and runs the generation
// pipeline to completion, returning the watermarked preview reference.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	imageData, mime, err := decodeImagePayload(req.ImageBase64)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "imageBase64 is not a valid encoded image")
		return
	}

	resolved, err := prompt.Resolve(req.Style, req.PetName, req.Background)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unknown style")
		return
	}

	productType := domain.ProductType(req.ProductType)
	if productType != "" && productType != domain.ProductDigitalOnly && productType != domain.ProductPrintBundle {
		a.error(w, http.StatusBadRequest, "bad_request", "unknown productType")
		return
	}
	if productType == domain.ProductDigitalOnly && !a.Flags.AllowDigitalOnly {
		a.error(w, http.StatusBadRequest, "bad_request", "digital-only product is not available")
		return
	}

	job := &domain.Job{
		ID:          uuid.NewString(),
		Status:      domain.JobStatusCreated,
		StyleID:     strings.ToLower(strings.TrimSpace(req.Style)),
		PetName:     strings.TrimSpace(req.PetName),
		Email:       strings.TrimSpace(req.Email),
		IP:          middleware.ClientIP(r),
		Prompt:      resolved,
		ProductType: productType,
	}
	if err := a.Jobs.Create(r.Context(), job); err != nil {
		a.Log.Error().Err(err).Msg("generate: create job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create job")
		return
	}

	originalKey, err := a.Store.Put(r.Context(), storage.ObjectKey(job.ID, storage.RoleOriginal), imageData, mime)
	if err != nil {
		a.Log.Error().Err(err).Str("job_id", job.ID).Msg("generate: store original")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store image")
		return
	}
	if err := a.Jobs.Update(r.Context(), job.ID, domain.JobPatch{OriginalURL: &originalKey}); err != nil {
		a.Log.Error().Err(err).Str("job_id", job.ID).Msg("generate: record original")
		a.error(w, http.StatusInternalServerError, "internal", "failed to update job")
		return
	}

	result, err := a.Pipeline.Run(r.Context(), job.ID, pipeline.Params{
		ImageData:         imageData,
		MIMEType:          mime,
		Prompt:            resolved,
		MaxAttempts:       a.Cfg.MaxGenerationAttempts,
		LikenessThreshold: a.Cfg.LikenessThreshold,
	})
	if err != nil {
		a.pipelineError(w, job.ID, err)
		return
	}

	a.json(w, http.StatusOK, generateResponse{JobID: job.ID, Result: result})
}

// pipelineError maps pipeline failures onto the API error vocabulary. The job
// itself has already been moved to "error" by the pipeline.
func (a *App) pipelineError(w http.ResponseWriter, jobID string, err error) {
	var noCandidate *pipeline.NoCandidateError
	switch {
	case image.IsRefusal(err):
		a.error(w, http.StatusUnprocessableEntity, "policy_refusal", "the generator declined this image; try a different photo")
	case errors.As(err, &noCandidate):
		a.error(w, http.StatusBadGateway, "no_candidate", "generation failed on every attempt; try again later")
	default:
		a.Log.Error().Err(err).Str("job_id", jobID).Msg("pipeline run failed")
		a.error(w, http.StatusInternalServerError, "internal", "generation failed")
	}
}

// decodeImagePayload accepts both a bare base64 string and a data URI and
// returns the raw bytes with a sniffed content type.
func decodeImagePayload(payload string) ([]byte, string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, "", errors.New("empty image payload")
	}
	if idx := strings.Index(payload, ";base64,"); idx >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[idx+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", err
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, "", errors.New("payload is not an image")
	}
	return data, mime, nil
}
