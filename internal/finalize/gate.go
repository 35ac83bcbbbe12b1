package finalize

import (
	"fmt"

	"server/internal/domain"
)

// Flags are the deployment toggles that feed the release gate.
type Flags struct {
	TestMode bool
	// AllowDigitalOnly opens the digital_only product for selection. It
	// does not touch the payment condition; see paymentSatisfied.
	AllowDigitalOnly bool
	BypassPayment    bool
}

// Request describes one attempt to release the final asset.
type Request struct {
	IsAdmin bool
}

// GateError explains why the gate rejected a release. Code is stable and safe
// to surface to API clients.
type GateError struct {
	Code   string
	Reason string
}

func (e *GateError) Error() string {
	return fmt.Sprintf("finalize: %s: %s", e.Code, e.Reason)
}

const (
	CodeNotEligible     = "not_eligible"
	CodePaymentRequired = "payment_required"
	CodeLowLikeness     = "low_likeness"
)

// releasableStatuses are the job states from which the final asset may be
// released. Locked and awaiting_payment are deliberately absent: both mean
// the flow has committed but not yet cleared.
var releasableStatuses = map[domain.JobStatus]bool{
	domain.JobStatusGenerated: true,
	domain.JobStatusUpscaled:  true,
	domain.JobStatusPaid:      true,
	domain.JobStatusFulfilled: true,
}

// CanUnlockFinal decides whether the unwatermarked final asset may be
// released for the given job. The admin bypass requires test mode AND the
// payment bypass flag on top of admin identity; an admin token alone never
// unlocks a final.
func CanUnlockFinal(job *domain.Job, req Request, flags Flags) error {
	if req.IsAdmin && flags.TestMode && flags.BypassPayment {
		return nil
	}

	if !releasableStatuses[job.Status] {
		return &GateError{
			Code:   CodeNotEligible,
			Reason: fmt.Sprintf("status %q is not releasable", job.Status),
		}
	}

	if !paymentSatisfied(job, flags) {
		return &GateError{
			Code:   CodePaymentRequired,
			Reason: "payment has not cleared for this job",
		}
	}

	if job.Likeness != nil && job.Likeness.Score < job.Likeness.Threshold {
		return &GateError{
			Code:   CodeLowLikeness,
			Reason: fmt.Sprintf("likeness %.2f is below threshold %.2f", job.Likeness.Score, job.Likeness.Threshold),
		}
	}

	return nil
}

// paymentSatisfied reports whether the job has cleared the payment condition.
// Digital-only jobs get no discount here: every product type must reach paid
// or fulfilled before the unwatermarked final leaves the store. The bypass
// flag waives payment for deployments that opted in, without widening the
// releasable status set.
func paymentSatisfied(job *domain.Job, flags Flags) bool {
	if job.Status == domain.JobStatusPaid || job.Status == domain.JobStatusFulfilled {
		return true
	}
	return flags.BypassPayment
}
