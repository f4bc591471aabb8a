// Package peer holds HTTP clients for sibling services.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tanvi-vanity/vanity-agent/internal/infra/logger"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/telemetry"
)

const (
	defaultTimeout  = 3 * time.Second
	maxErrorBody    = 4 << 10
	jsonContentType = "application/json"

	// ServiceTokenHeader carries the caller's service JWT on /internal routes.
	ServiceTokenHeader = "X-Service-Token"
)

// ServiceTokenSource issues the JWT a service presents on internal routes.
type ServiceTokenSource interface {
	Issue(service string) (string, error)
}

// StatusError is a non-2xx response from a peer.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: %d", e.Method, e.URL, e.StatusCode)
}

// Server reports a 5xx response.
func (e *StatusError) Server() bool { return e.StatusCode >= http.StatusInternalServerError }

type auth struct {
	bearer  string
	service bool
}

type client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	caller  string
	tokens  ServiceTokenSource
}

func newClient(baseURL string, timeout time.Duration, caller string, tokens ServiceTokenSource, httpClient *http.Client) client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		timeout: timeout,
		caller:  caller,
		tokens:  tokens,
	}
}

func (c client) get(ctx context.Context, path string, a auth, out any) error {
	return c.do(ctx, http.MethodGet, path, a, nil, out)
}

func (c client) post(ctx context.Context, path string, a auth, body, out any) error {
	return c.do(ctx, http.MethodPost, path, a, body, out)
}

func (c client) do(ctx context.Context, method, path string, a auth, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		reader = buf
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, url, err)
	}
	req.Header.Set("Accept", jsonContentType)
	if body != nil {
		req.Header.Set("Content-Type", jsonContentType)
	}
	if a.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+a.bearer)
	}
	if a.service {
		if c.tokens == nil {
			return fmt.Errorf("%s %s: service credentials not configured", method, url)
		}
		token, err := c.tokens.Issue(c.caller)
		if err != nil {
			return fmt.Errorf("issue service token: %w", err)
		}
		req.Header.Set(ServiceTokenHeader, token)
	}
	if id := logger.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	telemetry.InjectHTTP(ctx, req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		statusErr := &StatusError{Method: method, URL: url, StatusCode: resp.StatusCode}
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)); len(raw) > 0 {
			if json.Unmarshal(raw, &payload) == nil {
				statusErr.Code, statusErr.Message = payload.Error, payload.Message
			}
		}
		return statusErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, url, err)
	}
	return nil
}

// isTimeout reports whether err came from a deadline rather than a refusal.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
