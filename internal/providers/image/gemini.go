package image

import (
	"context"

	"server/internal/providers/genai"
)

// GeminiGenerator adapts the Gemini client to the Generator contract.
type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (*Candidate, error) {
	data, format, err := g.client.GenerateImage(ctx, genai.ImageRequest{
		ImageData: req.ImageData,
		MIMEType:  req.MIMEType,
		Prompt:    req.Prompt,
		RequestID: req.RequestID,
	})
	if err != nil {
		return nil, err
	}
	return &Candidate{Data: data, Format: format}, nil
}

var _ Generator = (*GeminiGenerator)(nil)
