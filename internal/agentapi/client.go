package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	headerHostUser     = "X-Aspia-Host-User"
	headerHostPassword = "X-Aspia-Host-Password"

	// peerNotFound is what the gateway reports for an agent that is simply offline.
	peerNotFound = "PEER_NOT_FOUND"

	maxErrorBody = 64 << 10
)

// APIError is an error payload or non-2xx response from the remote API.
type APIError struct {
	Message    string
	Code       string
	StatusCode int
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s [%s]", e.Message, e.Code)
	}
	return e.Message
}

// PeerUnreachable reports whether the error only means the agent is offline.
func (e *APIError) PeerUnreachable() bool {
	if e == nil {
		return false
	}
	return strings.Contains(e.Message, peerNotFound) || strings.EqualFold(e.Code, peerNotFound)
}

// IsPeerUnreachable unwraps err looking for an offline-peer APIError.
func IsPeerUnreachable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.PeerUnreachable()
}

// HostSummary is one roster entry.
type HostSummary struct {
	HostID       *int64 `json:"host_id"`
	SessionID    *int64 `json:"session_id"`
	ComputerName string `json:"computer_name"`
	IPAddress    string `json:"ip_address"`
	OSName       string `json:"os_name"`
	Architecture string `json:"architecture"`
	Version      string `json:"version"`
}

// ConfigDocument is the response of the per-host configuration endpoint.
type ConfigDocument struct {
	HostID     int64           `json:"host_id,omitempty"`
	SystemInfo json.RawMessage `json:"system_info,omitempty"`
	Error      string          `json:"error,omitempty"`
	Code       any             `json:"code,omitempty"`
}

// Credentials are optional per-host agent credentials, already decrypted.
type Credentials struct {
	User     string
	Password string
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	// RateLimit caps outgoing requests per second; zero disables pacing.
	RateLimit float64
	Burst     int
}

// Client is a stateless accessor for the remote API; it is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
	}
}

// ListHosts returns the current roster of reachable agents.
func (c *Client) ListHosts(ctx context.Context) ([]HostSummary, error) {
	var out []HostSummary
	if err := c.getJSON(ctx, "/hosts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchConfig returns the full configuration snapshot of one agent.
//
// An error payload (either a 2xx body with an "error" field or a non-2xx
// response) is returned as *APIError; any other error is a transport failure.
func (c *Client) FetchConfig(ctx context.Context, remoteID int64, creds *Credentials) (*ConfigDocument, error) {
	var headers map[string]string
	if creds != nil && creds.User != "" && creds.Password != "" {
		headers = map[string]string{
			headerHostUser:     creds.User,
			headerHostPassword: creds.Password,
		}
	}

	var out ConfigDocument
	path := fmt.Sprintf("/hosts/%d/config?category=all", remoteID)
	if err := c.getJSON(ctx, path, headers, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, &APIError{Message: out.Error, Code: codeString(out.Code), StatusCode: http.StatusOK}
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, headers map[string]string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return decodeAPIError(resp, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("GET %s: read body: %w", path, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{
			Message:    fmt.Sprintf("malformed response from %s: %v", path, err),
			Code:       "malformed_response",
			StatusCode: resp.StatusCode,
		}
	}
	return nil
}

func decodeAPIError(resp *http.Response, body []byte) *APIError {
	var payload struct {
		Error string `json:"error"`
		Code  any    `json:"code"`
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
			return &APIError{Message: payload.Error, Code: codeString(payload.Code), StatusCode: resp.StatusCode}
		}
	}
	return &APIError{
		Message:    fmt.Sprintf("HTTP %s", resp.Status),
		Code:       "http_error",
		StatusCode: resp.StatusCode,
	}
}

func codeString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		return fmt.Sprintf("%.0f", c)
	default:
		return fmt.Sprint(c)
	}
}
