package image

import (
	"context"
	"errors"

	"server/internal/providers/genai"
)

// GenerateRequest describes one candidate-generation call: a source photo
// plus the resolved style prompt.
type GenerateRequest struct {
	ImageData []byte
	MIMEType  string
	Prompt    string
	RequestID string
}

// Candidate is one generated portrait image.
type Candidate struct {
	Data   []byte
	Format string
}

// Generator is the contract implemented by all image providers. A policy
// refusal is reported via an error matching IsRefusal; any other error is
// treated as transient by the pipeline.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Candidate, error)
}

// IsRefusal reports whether err is a non-retryable policy rejection.
func IsRefusal(err error) bool {
	var refusal *genai.RefusalError
	return errors.As(err, &refusal)
}
