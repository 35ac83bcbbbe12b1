package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/providers/image"
	"server/internal/providers/likeness"
	"server/internal/storage"
	"server/internal/watermark"
)

// NoCandidateError reports that every attempt of a run failed before a single
// candidate was produced.
type NoCandidateError struct {
	Attempts int
}

func (e *NoCandidateError) Error() string {
	return fmt.Sprintf("pipeline: no candidate produced after %d attempts", e.Attempts)
}

// Params configures one pipeline run for a job.
type Params struct {
	ImageData         []byte
	MIMEType          string
	Prompt            string
	MaxAttempts       int
	LikenessThreshold float64
	IsRegeneration    bool
}

// Result is the outcome of a successful run.
//
// Final is always true: the UI surfaces whatever best candidate the run
// produced rather than an ambiguous "still trying" state. It does NOT mean
// the likeness threshold was met; check LikenessScore against the configured
// threshold for that.
type Result struct {
	PreviewURL    string  `json:"previewUrl"`
	LikenessScore float64 `json:"likenessScore"`
	Attempts      int     `json:"attempts"`
	Final         bool    `json:"final"`
}

// Orchestrator drives a job from "generating" to "generated": a bounded
// generate-and-score loop that keeps the best candidate, persists it, and
// records the attempt log on the job.
type Orchestrator struct {
	jobs      domain.JobRepository
	store     storage.ArtifactStore
	generator image.Generator
	scorer    likeness.Scorer
	mark      watermark.Options
	logger    infra.Logger

	// group deduplicates concurrent runs for the same job, e.g. a user
	// double-clicking regenerate; both callers share one run's result.
	group singleflight.Group
}

// NewOrchestrator wires the pipeline's collaborators.
func NewOrchestrator(
	jobs domain.JobRepository,
	store storage.ArtifactStore,
	generator image.Generator,
	scorer likeness.Scorer,
	mark watermark.Options,
	logger infra.Logger,
) *Orchestrator {
	return &Orchestrator{
		jobs:      jobs,
		store:     store,
		generator: generator,
		scorer:    scorer,
		mark:      mark,
		logger:    logger,
	}
}

// Run executes the generation pipeline for jobID. Attempts are strictly
// sequential; the loop exits early once a score meets the threshold. The
// best-scoring candidate is accepted even when the threshold was never met.
func (o *Orchestrator) Run(ctx context.Context, jobID string, p Params) (*Result, error) {
	if jobID == "" {
		return nil, fmt.Errorf("pipeline: job id is required")
	}
	if len(p.ImageData) == 0 {
		return nil, fmt.Errorf("pipeline: source image is required")
	}
	if p.MaxAttempts < 1 {
		return nil, fmt.Errorf("pipeline: max attempts must be >= 1")
	}
	if p.LikenessThreshold < 0 || p.LikenessThreshold > 1 {
		return nil, fmt.Errorf("pipeline: likeness threshold must be within [0,1]")
	}

	v, err, _ := o.group.Do(jobID, func() (any, error) {
		return o.run(ctx, jobID, p)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (o *Orchestrator) run(ctx context.Context, jobID string, p Params) (*Result, error) {
	log := o.logger.With().
		Str("job_id", jobID).
		Bool("regeneration", p.IsRegeneration).
		Logger()

	generating := domain.JobStatusGenerating
	if err := o.jobs.Update(ctx, jobID, domain.JobPatch{Status: &generating}); err != nil {
		return nil, fmt.Errorf("pipeline: mark generating: %w", err)
	}

	attempts := make([]domain.LikenessAttempt, 0, p.MaxAttempts)
	var best *image.Candidate
	bestScore := -1.0

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		candidate, err := o.generator.Generate(ctx, image.GenerateRequest{
			ImageData: p.ImageData,
			MIMEType:  p.MIMEType,
			Prompt:    p.Prompt,
			RequestID: fmt.Sprintf("%s-%d", jobID, attempt),
		})
		if err != nil {
			if image.IsRefusal(err) {
				// A refusal is non-retryable with the same prompt; the
				// remaining attempts are not spent.
				o.markError(ctx, jobID, err.Error())
				return nil, fmt.Errorf("pipeline: attempt %d: %w", attempt, err)
			}
			log.Warn().Err(err).Int("attempt", attempt).Msg("pipeline: attempt failed")
			attempts = append(attempts, domain.LikenessAttempt{Attempt: attempt, Score: 0})
			continue
		}

		score, err := o.scorer.Score(ctx, p.ImageData, candidate.Data)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("pipeline: scoring failed")
			score = 0
		}
		attempts = append(attempts, domain.LikenessAttempt{Attempt: attempt, Score: score})
		log.Info().Int("attempt", attempt).Float64("score", score).Msg("pipeline: attempt scored")

		// Strict > keeps the earliest-occurring maximum on ties. bestScore
		// starts below zero so a produced candidate always counts, even at
		// score zero.
		if score > bestScore {
			best = candidate
			bestScore = score
		}
		if score >= p.LikenessThreshold {
			break
		}
	}

	if best == nil {
		o.markError(ctx, jobID, "no successful generations")
		return nil, &NoCandidateError{Attempts: len(attempts)}
	}

	generatedKey, err := o.store.Put(ctx, storage.ObjectKey(jobID, storage.RoleGenerated), best.Data, best.Format)
	if err != nil {
		o.markError(ctx, jobID, "persist generated asset failed")
		return nil, fmt.Errorf("pipeline: persist candidate: %w", err)
	}

	marked, err := watermark.Stamp(best.Data, o.mark)
	if err != nil {
		o.markError(ctx, jobID, "watermark failed")
		return nil, fmt.Errorf("pipeline: watermark preview: %w", err)
	}
	previewKey, err := o.store.Put(ctx, storage.ObjectKey(jobID, storage.RolePreview), marked, "image/png")
	if err != nil {
		o.markError(ctx, jobID, "persist preview failed")
		return nil, fmt.Errorf("pipeline: persist preview: %w", err)
	}

	generated := domain.JobStatusGenerated
	if err := o.jobs.Update(ctx, jobID, domain.JobPatch{
		Status:       &generated,
		PreviewURL:   &previewKey,
		GeneratedURL: &generatedKey,
		Likeness: &domain.Likeness{
			Score:     bestScore,
			Threshold: p.LikenessThreshold,
			Attempts:  attempts,
		},
		// A fresh generation invalidates any previously finalized asset.
		ResetPrintReady: true,
	}); err != nil {
		return nil, fmt.Errorf("pipeline: record result: %w", err)
	}

	log.Info().
		Float64("best_score", bestScore).
		Int("attempts", len(attempts)).
		Msg("pipeline: run complete")

	return &Result{
		PreviewURL:    previewKey,
		LikenessScore: bestScore,
		Attempts:      len(attempts),
		Final:         true,
	}, nil
}

// markError leaves the job in an inspectable error state before the failure
// propagates to the caller.
func (o *Orchestrator) markError(ctx context.Context, jobID, message string) {
	status := domain.JobStatusError
	if err := o.jobs.Update(ctx, jobID, domain.JobPatch{Status: &status, ErrorMessage: &message}); err != nil {
		o.logger.Error().Err(err).Str("job_id", jobID).Msg("pipeline: mark error failed")
	}
}
