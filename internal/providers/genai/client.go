package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"server/internal/infra"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger

	// RequestsPerSecond bounds outbound calls to the API; zero disables
	// client-side limiting.
	RequestsPerSecond float64
}

// Client is a lightweight facade over the Gemini generateContent API for
// image-to-image portrait generation.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
	limiter    *rate.Limiter
}

// ImageRequest carries one portrait-generation call: a source image plus the
// resolved style prompt.
type ImageRequest struct {
	ImageData []byte
	MIMEType  string
	Prompt    string
	RequestID string
}

// RefusalError marks a non-retryable policy rejection by the model, distinct
// from transient service failures so callers can stop instead of retrying
// with the same prompt.
type RefusalError struct {
	Reason string
}

func (e *RefusalError) Error() string {
	return fmt.Sprintf("genai: generation refused: %s", e.Reason)
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

// geminiPart tolerates both camelCase and snake_case field names: the API
// has emitted either depending on version, so decoding accepts both and
// encoding sticks to snake_case.
type geminiPart struct {
	Text         string            `json:"text,omitempty"`
	InlineData   *geminiInlineData `json:"inline_data,omitempty"`
	InlineDataCC *geminiInlineData `json:"inlineData,omitempty"`
}

func (p geminiPart) inline() *geminiInlineData {
	if p.InlineData != nil {
		return p.InlineData
	}
	return p.InlineDataCC
}

type geminiInlineData struct {
	MIMEType   string `json:"mime_type,omitempty"`
	MIMETypeCC string `json:"mimeType,omitempty"`
	Data       string `json:"data,omitempty"`
}

func (d *geminiInlineData) mime() string {
	if d.MIMEType != "" {
		return d.MIMEType
	}
	return d.MIMETypeCC
}

type geminiImageConfig struct {
	ImageSize   string `json:"imageSize,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities,omitempty"`
	ImageConfig        *geminiImageConfig `json:"imageConfig,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := opts.Model
	if model == "" {
		model = "gemini-3-pro-image-preview"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     logger,
		limiter:    limiter,
	}, nil
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

// GenerateImage produces one portrait candidate from the source image and
// prompt. A policy refusal is surfaced as *RefusalError; every other failure
// is transient from the caller's point of view.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if c.apiKey == "" {
		return nil, "", fmt.Errorf("genai: api key is not configured")
	}
	if len(req.ImageData) == 0 {
		return nil, "", fmt.Errorf("genai: source image is required")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, "", err
		}
	}

	mime := req.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: req.Prompt},
				{InlineData: &geminiInlineData{
					MIMEType: mime,
					Data:     base64.StdEncoding.EncodeToString(req.ImageData),
				}},
			},
		}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig:        &geminiImageConfig{ImageSize: "2K", AspectRatio: "1:1"},
		},
	}

	var response geminiGenerateContentResponse
	path := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model))
	if err := c.invokeGemini(ctx, path, payload, &response); err != nil {
		return nil, "", err
	}

	if len(response.Candidates) == 0 {
		return nil, "", fmt.Errorf("genai: response carried no candidates")
	}
	candidate := response.Candidates[0]
	if candidate.FinishReason != "" && candidate.FinishReason != "STOP" {
		c.logger.Warn().
			Str("request_id", req.RequestID).
			Str("finish_reason", candidate.FinishReason).
			Msg("genai: generation refused")
		return nil, "", &RefusalError{Reason: candidate.FinishReason}
	}

	for _, part := range candidate.Content.Parts {
		inline := part.inline()
		if inline == nil || inline.Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(inline.Data)
		if err != nil {
			return nil, "", fmt.Errorf("genai: decode inline data: %w", err)
		}
		format := inline.mime()
		if format == "" {
			format = "image/png"
		}
		c.logger.Debug().
			Str("request_id", req.RequestID).
			Str("model", c.model).
			Int("bytes", len(data)).
			Msg("genai: received image candidate")
		return data, format, nil
	}

	return nil, "", fmt.Errorf("genai: generation finished but returned no image data")
}

func (c *Client) invokeGemini(ctx context.Context, path string, payload any, out any) error {
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr geminiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("gemini status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}
