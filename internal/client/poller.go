package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vairify/vaicheck-server-go/internal/httputil"
	"github.com/vairify/vaicheck-server-go/internal/service"
)

const (
	DefaultInterval = 3 * time.Second
	DefaultMaxWait  = 5 * time.Minute
)

// ErrPollTimeout means MaxWait elapsed without a state change. The caller
// should abandon the wait and surface the last known status.
var ErrPollTimeout = errors.New("poll: max wait elapsed without a state change")

// HTTPError is a non-2xx answer from the session service.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// retryable reports whether polling should continue past this failure.
func retryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	return true
}

// Poller watches one session on behalf of a waiting participant.
type Poller struct {
	baseURL    string
	token      string
	httpClient *http.Client

	Interval time.Duration
	MaxWait  time.Duration
}

func NewPoller(baseURL, token string) *Poller {
	return &Poller{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		Interval:   DefaultInterval,
		MaxWait:    DefaultMaxWait,
	}
}

// Status fetches the caller's current view of the session.
func (p *Poller) Status(ctx context.Context, sessionID string) (*service.StatusView, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.baseURL+"/v1/sessions/"+url.PathEscape(sessionID)+"/status", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		var apiErr httputil.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, &HTTPError{StatusCode: resp.StatusCode, Code: string(apiErr.Code), Message: apiErr.Error}
		}
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var view service.StatusView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &view, nil
}

// WaitForChange polls until the session moves past the state observed on the
// first read, it reaches a terminal status, or MaxWait elapses. Transient
// failures (transport errors, 429, 5xx) are retried on the next tick.
func (p *Poller) WaitForChange(ctx context.Context, sessionID string) (*service.StatusView, error) {
	ctx, cancel := context.WithTimeout(ctx, p.MaxWait)
	defer cancel()

	start, err := p.Status(ctx, sessionID)
	if err != nil {
		return nil, p.timeoutOr(ctx, err)
	}
	if start.Disposition == service.DispositionDone {
		return start, nil
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	last := start
	for {
		select {
		case <-ctx.Done():
			return last, p.timeoutOr(ctx, ctx.Err())
		case <-ticker.C:
		}

		view, err := p.Status(ctx, sessionID)
		if err != nil {
			if !retryable(err) {
				return last, err
			}
			log.Debug().Err(err).Str("sessionId", sessionID).Msg("status poll failed, retrying")
			continue
		}
		last = view
		if view.Version != start.Version || view.Status != start.Status {
			return view, nil
		}
	}
}

func (p *Poller) timeoutOr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrPollTimeout
	}
	return err
}
