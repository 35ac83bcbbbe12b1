package likeness

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"server/internal/infra"
)

// Scorer measures visual similarity between a source photo and a generated
// portrait. Scores are in [0,1].
type Scorer interface {
	Score(ctx context.Context, source, candidate []byte) (float64, error)
}

// ClipScorer calls the CLIP scoring sidecar. A failing or unreachable service
// yields a zero score rather than an error: the pipeline treats a scorer
// outage as a low-scoring attempt, never as a fatal failure.
type ClipScorer struct {
	url        string
	httpClient *http.Client
	logger     infra.Logger
}

// NewClipScorer builds a scorer against the CLIP service endpoint.
func NewClipScorer(url string, httpClient *http.Client, logger infra.Logger) *ClipScorer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ClipScorer{url: url, httpClient: httpClient, logger: logger}
}

type scoreRequest struct {
	ImageABase64 string `json:"imageABase64"`
	ImageBBase64 string `json:"imageBBase64"`
}

// scoreResponse tolerates the two field names the service has used across
// versions; similarity_01 is the canonical one.
type scoreResponse struct {
	Similarity01 *float64 `json:"similarity_01"`
	Similarity   *float64 `json:"similarity"`
}

func (r scoreResponse) value() float64 {
	if r.Similarity01 != nil {
		return *r.Similarity01
	}
	if r.Similarity != nil {
		return *r.Similarity
	}
	return 0
}

func (s *ClipScorer) Score(ctx context.Context, source, candidate []byte) (float64, error) {
	payload := scoreRequest{
		ImageABase64: base64.StdEncoding.EncodeToString(source),
		ImageBBase64: base64.StdEncoding.EncodeToString(candidate),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("likeness: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("likeness: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn().Err(err).Msg("likeness: scorer unreachable")
		return 0, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		s.logger.Warn().
			Int("status", resp.StatusCode).
			Str("body", string(data)).
			Msg("likeness: scorer returned error")
		return 0, nil
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		s.logger.Warn().Err(err).Msg("likeness: decode scorer response")
		return 0, nil
	}

	score := out.value()
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}

var _ Scorer = (*ClipScorer)(nil)

// MockScorer returns a fixed score. Used when USE_MOCK_LIKENESS is enabled so
// the pipeline can run without the CLIP sidecar.
type MockScorer struct {
	Value float64
}

func (m MockScorer) Score(ctx context.Context, source, candidate []byte) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return m.Value, nil
}

var _ Scorer = MockScorer{}
