// Package apiclient is the HTTP client the CLI uses to talk to a running
// mimic daemon.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mimic/internal/api"
	"mimic/internal/config"
)

const defaultTimeout = 30 * time.Second

// Client talks to the daemon's REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New constructs a client for the daemon bound per configuration.
func New(cfg *config.Config) *Client {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	base := "http://" + bind
	if strings.HasPrefix(bind, "http://") || strings.HasPrefix(bind, "https://") {
		base = bind
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		token:      cfg.Paths.APIToken,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// StatusError carries the HTTP status and daemon error message of a failed call.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("daemon returned http %d: %s", e.StatusCode, e.Message)
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// ListClones fetches clones, optionally filtered by owner.
func (c *Client) ListClones(ctx context.Context, owner string) ([]api.Clone, error) {
	path := "/api/clone/saved"
	if strings.TrimSpace(owner) != "" {
		path += "?owner=" + url.QueryEscape(strings.TrimSpace(owner))
	}
	var out api.CloneListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Clones, nil
}

// GetClone fetches one clone by id.
func (c *Client) GetClone(ctx context.Context, id string) (api.Clone, error) {
	var out api.CloneResponse
	err := c.do(ctx, http.MethodGet, "/api/clone/saved/"+url.PathEscape(id), nil, &out)
	return out.Clone, err
}

// CreateClone submits a new clone job.
func (c *Client) CreateClone(ctx context.Context, req api.CreateCloneRequest) (api.Clone, error) {
	var out api.CloneResponse
	err := c.do(ctx, http.MethodPost, "/api/clone/create", req, &out)
	return out.Clone, err
}

// UseClone records a use of a saved clone.
func (c *Client) UseClone(ctx context.Context, id string) (api.Clone, error) {
	var out api.CloneResponse
	err := c.do(ctx, http.MethodPut, "/api/clone/saved/"+url.PathEscape(id)+"/use", nil, &out)
	return out.Clone, err
}

// DeleteClone removes a saved clone.
func (c *Client) DeleteClone(ctx context.Context, id string) (bool, error) {
	var out api.DeleteResponse
	if err := c.do(ctx, http.MethodDelete, "/api/clone/saved/"+url.PathEscape(id), nil, &out); err != nil {
		return false, err
	}
	return out.Deleted, nil
}

// CancelJob cancels a running synthesis job.
func (c *Client) CancelJob(ctx context.Context, jobID string) (api.Clone, error) {
	var out api.CloneResponse
	err := c.do(ctx, http.MethodDelete, "/api/clone/jobs/"+url.PathEscape(jobID), nil, &out)
	return out.Clone, err
}

// Credits fetches the provider account balance through the daemon.
func (c *Client) Credits(ctx context.Context) (api.CreditsResponse, error) {
	var out api.CreditsResponse
	err := c.do(ctx, http.MethodGet, "/api/clone/credits", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var parsed api.ErrorResponse
		message := http.StatusText(resp.StatusCode)
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error != "" {
			message = parsed.Error
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: message}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
