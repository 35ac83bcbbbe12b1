package upscale

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Upscaler produces a higher-resolution copy of an image for print and
// digital delivery.
type Upscaler interface {
	Upscale(ctx context.Context, image []byte, scale int) ([]byte, error)
}

// Client calls the external upscaler service over HTTP with optional bearer
// authentication.
type Client struct {
	url        string
	key        string
	httpClient *http.Client
}

// NewClient builds an upscaler client. An empty url yields a passthrough
// client that returns the input unchanged, which keeps local environments
// working without the upscaler deployed.
func NewClient(url, key string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{url: strings.TrimRight(url, "/"), key: key, httpClient: httpClient}
}

type upscaleRequest struct {
	ImageBase64 string `json:"imageBase64"`
	Scale       int    `json:"scale,omitempty"`
}

type upscaleResponse struct {
	ImageBase64 string `json:"imageBase64"`
}

func (c *Client) Upscale(ctx context.Context, image []byte, scale int) ([]byte, error) {
	if c.url == "" {
		return image, nil
	}
	if scale <= 0 {
		scale = 2
	}

	body, err := json.Marshal(upscaleRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(image),
		Scale:       scale,
	})
	if err != nil {
		return nil, fmt.Errorf("upscale: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/upscale", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("upscale: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upscale: invoke service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("upscale: service status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out upscaleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("upscale: decode response: %w", err)
	}
	if out.ImageBase64 == "" {
		return nil, fmt.Errorf("upscale: service returned empty payload")
	}
	data, err := base64.StdEncoding.DecodeString(out.ImageBase64)
	if err != nil {
		return nil, fmt.Errorf("upscale: decode image: %w", err)
	}
	return data, nil
}

var _ Upscaler = (*Client)(nil)
