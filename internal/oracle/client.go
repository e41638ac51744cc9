package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrNotConfigured is returned when no oracle endpoint is set. Callers treat it
// like any other system failure.
var ErrNotConfigured = errors.New("biometric oracle is not configured")

// Comparer decides whether a live capture shows the same person as the
// enrolled reference image. A non-nil error means no decision could be made.
type Comparer interface {
	Compare(ctx context.Context, referenceImage, liveImage string) (bool, error)
}

type compareRequest struct {
	ReferenceImage string `json:"referenceImage"`
	LiveImage      string `json:"liveImage"`
}

type compareResponse struct {
	Match      *bool   `json:"match"`
	Confidence float64 `json:"confidence"`
}

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

func NewClient(baseURL, apiKey string, timeout time.Duration, requestsPerSecond int) *Client {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
}

func (c *Client) Compare(ctx context.Context, referenceImage, liveImage string) (bool, error) {
	if c.baseURL == "" {
		return false, ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("wait for oracle slot: %w", err)
	}

	body, err := json.Marshal(compareRequest{
		ReferenceImage: referenceImage,
		LiveImage:      asDataURL(liveImage),
	})
	if err != nil {
		return false, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/compare", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("oracle request error")
		return false, fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("oracle request failed")
		return false, fmt.Errorf("oracle returned status %d", resp.StatusCode)
	}

	var out compareResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode oracle response: %w", err)
	}
	if out.Match == nil {
		return false, fmt.Errorf("oracle response missing match verdict")
	}

	log.Debug().
		Bool("match", *out.Match).
		Float64("confidence", out.Confidence).
		Dur("elapsed", elapsed).
		Msg("oracle compare finished")

	return *out.Match, nil
}

// asDataURL accepts either a data URL or bare base64 JPEG.
func asDataURL(image string) string {
	if strings.HasPrefix(image, "data:") {
		return image
	}
	return "data:image/jpeg;base64," + image
}
