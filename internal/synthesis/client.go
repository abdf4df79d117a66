package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mimic/internal/config"
	"mimic/internal/services"
)

const (
	defaultBaseURL     = "https://api.d-id.com"
	defaultHTTPTimeout = 30 * time.Second
	maxErrorBodyBytes  = 2048
)

// JobStatus is the provider-side state of a synthesis job.
type JobStatus string

const (
	JobCreated  JobStatus = "created"
	JobStarted  JobStatus = "started"
	JobDone     JobStatus = "done"
	JobError    JobStatus = "error"
	JobRejected JobStatus = "rejected"
)

// Terminal reports whether the provider will never advance this job further.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobError || s == JobRejected
}

// HTTPDoer abstracts the HTTP client so tests can intercept requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Job describes a synthesis job as reported by the provider.
type Job struct {
	ID           string
	Status       JobStatus
	ResultURL    string
	ThumbnailURL string
	Duration     float64
	ErrorDetail  string
}

// Credits reports the account balance at the provider.
type Credits struct {
	Remaining float64 `json:"remaining"`
	Total     float64 `json:"total"`
}

// SubmitRequest carries the media references and rendering options for a new
// talking-head job.
type SubmitRequest struct {
	AudioURL string
	ImageURL string
	Fluent   bool
	PadAudio float64
	Stitch   bool
}

// Client talks to the synthesis provider's REST API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.httpClient = doer
		}
	}
}

// WithBaseURL overrides the provider endpoint.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if strings.TrimSpace(base) != "" {
			c.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
		}
	}
}

// NewClient constructs a synthesis client from configuration. The client is
// usable without an API key; every call then fails with a configuration error
// so the daemon can run ingestion-only.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.Synthesis.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Synthesis.TimeoutSeconds) * time.Second
	}
	client := &Client{
		apiKey:     strings.TrimSpace(cfg.Synthesis.APIKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.Synthesis.BaseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Configured reports whether the client has an API key.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

func (c *Client) checkConfigured(operation string) error {
	if c.Configured() {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "synthesis", operation, "api key not configured", nil)
}

// Submit creates a new talking-head job from previously ingested media.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (Job, error) {
	if err := c.checkConfigured("submit"); err != nil {
		return Job{}, err
	}
	if strings.TrimSpace(req.AudioURL) == "" || strings.TrimSpace(req.ImageURL) == "" {
		return Job{}, services.Wrap(services.ErrValidation, "synthesis", "submit", "audio and image urls are required", nil)
	}

	payload := talkRequest{
		Script:    talkScript{Type: "audio", AudioURL: req.AudioURL},
		SourceURL: req.ImageURL,
		Config: talkConfig{
			Fluent:   req.Fluent,
			PadAudio: req.PadAudio,
			Stitch:   req.Stitch,
		},
	}

	var resp talkResponse
	if err := c.do(ctx, http.MethodPost, "/talks", payload, &resp, "submit"); err != nil {
		return Job{}, err
	}
	if resp.ID == "" {
		return Job{}, services.Wrap(services.ErrTransient, "synthesis", "submit", "provider returned no job id", nil)
	}
	return resp.job(), nil
}

// Status fetches the current state of a job.
func (c *Client) Status(ctx context.Context, jobID string) (Job, error) {
	if err := c.checkConfigured("status"); err != nil {
		return Job{}, err
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return Job{}, services.Wrap(services.ErrValidation, "synthesis", "status", "job id is required", nil)
	}

	var resp talkResponse
	if err := c.do(ctx, http.MethodGet, "/talks/"+url.PathEscape(jobID), nil, &resp, "status"); err != nil {
		return Job{}, err
	}
	return resp.job(), nil
}

// Delete removes a job at the provider.
func (c *Client) Delete(ctx context.Context, jobID string) error {
	if err := c.checkConfigured("delete"); err != nil {
		return err
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return services.Wrap(services.ErrValidation, "synthesis", "delete", "job id is required", nil)
	}
	return c.do(ctx, http.MethodDelete, "/talks/"+url.PathEscape(jobID), nil, nil, "delete")
}

// Credits fetches the account balance.
func (c *Client) Credits(ctx context.Context) (Credits, error) {
	if err := c.checkConfigured("credits"); err != nil {
		return Credits{}, err
	}
	var credits Credits
	if err := c.do(ctx, http.MethodGet, "/credits", nil, &credits, "credits"); err != nil {
		return Credits{}, err
	}
	return credits, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any, operation string) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", operation, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Basic "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatusError(operation, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrTransient, "synthesis", operation, "decode response", err)
	}
	return nil
}

// classifyTransportError maps network-level failures. Cancellation passes
// through untouched; timeouts and connection failures are retryable.
func classifyTransportError(operation string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return services.Wrap(services.ErrTimeout, "synthesis", operation, "request timed out", err)
	}
	return services.Wrap(services.ErrTransient, "synthesis", operation, "request failed", err)
}

func classifyStatusError(operation string, resp *http.Response) error {
	detail := readErrorDetail(resp.Body)
	message := fmt.Sprintf("http %d", resp.StatusCode)
	if detail != "" {
		message += ": " + detail
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "synthesis", operation, message, nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "synthesis", operation, message, nil)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		return services.Wrap(services.ErrTransient, "synthesis", operation, message, nil)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return services.Wrap(services.ErrPermanent, "synthesis", operation, message, nil)
	default:
		return services.Wrap(services.ErrTransient, "synthesis", operation, message, nil)
	}
}

// readErrorDetail pulls the provider's message out of an error body without
// trusting it to be small or well-formed.
func readErrorDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBodyBytes))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var parsed struct {
		Message     string `json:"message"`
		Description string `json:"description"`
	}
	if json.Unmarshal(raw, &parsed) == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Description != "" {
			return parsed.Description
		}
	}
	return strings.TrimSpace(string(raw))
}

type talkScript struct {
	Type     string `json:"type"`
	AudioURL string `json:"audio_url"`
}

type talkConfig struct {
	Fluent   bool    `json:"fluent"`
	PadAudio float64 `json:"pad_audio"`
	Stitch   bool    `json:"stitch"`
}

type talkRequest struct {
	Script    talkScript `json:"script"`
	SourceURL string     `json:"source_url"`
	Config    talkConfig `json:"config"`
}

type talkResponse struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	ResultURL string  `json:"result_url"`
	Duration  float64 `json:"duration"`
	Error     struct {
		Description string `json:"description"`
	} `json:"error"`
	Metadata struct {
		ThumbnailURL string `json:"thumbnail_url"`
	} `json:"metadata"`
}

func (r talkResponse) job() Job {
	return Job{
		ID:           r.ID,
		Status:       JobStatus(strings.ToLower(strings.TrimSpace(r.Status))),
		ResultURL:    r.ResultURL,
		ThumbnailURL: r.Metadata.ThumbnailURL,
		Duration:     r.Duration,
		ErrorDetail:  r.Error.Description,
	}
}
