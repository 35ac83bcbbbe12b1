package domain

import "time"

// JobStatus enumerates the lifecycle states of a portrait job.
type JobStatus string

const (
	JobStatusCreated        JobStatus = "created"
	JobStatusGenerating     JobStatus = "generating"
	JobStatusGenerated      JobStatus = "generated"
	JobStatusLocked         JobStatus = "locked"
	JobStatusUpscaled       JobStatus = "upscaled"
	JobStatusAwaitingPay    JobStatus = "awaiting_payment"
	JobStatusPaid           JobStatus = "paid"
	JobStatusSentToPrintify JobStatus = "sent_to_printify"
	JobStatusFulfilled      JobStatus = "fulfilled"
	JobStatusError          JobStatus = "error"
)

// statusRank orders the forward progression of a job. Error sits outside the
// ordering: it is reachable from any active state and terminal for the
// current attempt cycle (a regeneration starts a fresh cycle on the same Job).
var statusRank = map[JobStatus]int{
	JobStatusCreated:        0,
	JobStatusGenerating:     1,
	JobStatusGenerated:      2,
	JobStatusLocked:         3,
	JobStatusUpscaled:       4,
	JobStatusAwaitingPay:    5,
	JobStatusPaid:           6,
	JobStatusSentToPrintify: 7,
	JobStatusFulfilled:      8,
}

// Rank returns the position of the status in the forward progression, or -1
// for error/unknown states.
func (s JobStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// CanTransition reports whether moving from s to next respects the monotonic
// progression. Error is always allowed; so is re-entering "generating" from
// any non-fulfilled state, which is how a regeneration restarts the cycle.
// A fresh generation cycle is also the only way out of error: the job holds
// no trustworthy preview to lock or finalize until one succeeds.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if next == JobStatusError {
		return true
	}
	if next == JobStatusGenerating {
		return s != JobStatusFulfilled
	}
	if s == JobStatusError {
		return false
	}
	return next.Rank() >= s.Rank()
}

// ProductType gates the finalize policy for a job.
type ProductType string

const (
	ProductDigitalOnly ProductType = "digital_only"
	ProductPrintBundle ProductType = "print_bundle"
)

// LikenessAttempt records the score of a single generation attempt. Image
// payloads are never stored here, only in the artifact store once a winner is
// selected.
type LikenessAttempt struct {
	Attempt int     `json:"attempt"`
	Score   float64 `json:"score"`
}

// Likeness summarizes the scoring outcome of one pipeline run.
type Likeness struct {
	Score     float64           `json:"score"`
	Threshold float64           `json:"threshold"`
	Attempts  []LikenessAttempt `json:"attempts"`
}

// Job tracks one user's portrait-generation session end-to-end.
type Job struct {
	ID      string    `json:"id"`
	Status  JobStatus `json:"status"`
	StyleID string    `json:"styleId"`
	PetName string    `json:"petName,omitempty"`
	Email   string    `json:"email,omitempty"`
	IP      string    `json:"ip,omitempty"`

	// Prompt is resolved at creation and only ever extended by refinement
	// text, never replaced, so a regeneration is reproducible.
	Prompt string `json:"prompt,omitempty"`

	OriginalURL   string `json:"originalUrl,omitempty"`
	PreviewURL    string `json:"previewUrl,omitempty"`
	GeneratedURL  string `json:"generatedUrl,omitempty"`
	PrintReadyURL string `json:"printReadyUrl,omitempty"`

	Likeness *Likeness `json:"likeness,omitempty"`

	ProductType ProductType `json:"productType,omitempty"`
	LockTweaks  string      `json:"lockTweaks,omitempty"`

	// Refinements counts regeneration requests; it is bounded separately
	// from the per-run attempt budget.
	Refinements int `json:"refinements"`

	ErrorMessage string `json:"error,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
