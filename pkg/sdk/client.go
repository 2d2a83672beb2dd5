package labelsmith

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client is the labelsmith API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	obs        *observer
}

// New creates a labelsmith Client for the given server base URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("labelsmith: server base URL required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("labelsmith: invalid base URL: %w", err)
	}

	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.apiKey,
		httpClient: httpClient,
		obs:        obs,
	}, nil
}

// NextTask fetches the next annotation task for the given annotator.
// Returns ErrQueueDrained when no work is left for this annotator.
func (c *Client) NextTask(ctx context.Context, annotatorID string) (task Task, err error) {
	start := time.Now()
	defer func() { c.obs.observe("next_task", start, err) }()

	if annotatorID == "" {
		return Task{}, errors.New("labelsmith: annotator id required")
	}

	path := "/queue/next?annotator_id=" + url.QueryEscape(annotatorID)
	err = c.do(ctx, http.MethodGet, path, nil, &task)
	return task, err
}

// SubmitDecision records one annotator's label decision.
func (c *Client) SubmitDecision(ctx context.Context, d Decision) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("submit_decision", start, err) }()

	if d.AnnotatorID == "" || d.ItemID == "" || d.Label == "" {
		return errors.New("labelsmith: annotator id, item id and label required")
	}
	return c.do(ctx, http.MethodPost, "/decisions", d, nil)
}

// Consensus returns the resolved labels and the agreement score over all
// submitted decisions.
func (c *Client) Consensus(ctx context.Context) (res ConsensusResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("consensus", start, err) }()

	err = c.do(ctx, http.MethodGet, "/consensus", nil, &res)
	return res, err
}

// Issues returns the audit review queue, worst item first.
func (c *Client) Issues(ctx context.Context) (issues []Issue, err error) {
	start := time.Now()
	defer func() { c.obs.observe("issues", start, err) }()

	var resp struct {
		Issues []Issue `json:"issues"`
	}
	err = c.do(ctx, http.MethodGet, "/issues", nil, &resp)
	return resp.Issues, err
}

// Scatter returns the 2-D projection of the pool for plotting.
func (c *Client) Scatter(ctx context.Context) (points []ScatterPoint, err error) {
	start := time.Now()
	defer func() { c.obs.observe("scatter", start, err) }()

	var resp struct {
		Points []ScatterPoint `json:"points"`
	}
	err = c.do(ctx, http.MethodGet, "/items/scatter", nil, &resp)
	return resp.Points, err
}

// Health checks the health of all server components.
func (c *Client) Health(ctx context.Context) (status HealthStatus, err error) {
	start := time.Now()
	defer func() { c.obs.observe("health", start, err) }()

	req, err := c.newRequest(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return HealthStatus{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("labelsmith: health request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// 503 still carries a health body; decode either way.
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return HealthStatus{}, fmt.Errorf("labelsmith: decode health response: %w", err)
	}
	return status, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("labelsmith: marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("labelsmith: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("labelsmith: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return parseAPIError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("labelsmith: decode response: %w", err)
	}
	return nil
}

// parseAPIError maps an error response body onto the exported sentinels.
func parseAPIError(resp *http.Response) error {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Code:       body.Code,
		Message:    body.Message,
	}
	switch body.Code {
	case "not_found":
		apiErr.sentinel = ErrQueueDrained
	case "already_exists":
		apiErr.sentinel = ErrAlreadyDecided
	case "validation_failed":
		apiErr.sentinel = ErrInvalidDecision
	case "insufficient_annotators":
		apiErr.sentinel = ErrInsufficientAnnotators
	case "embedding_provider_error":
		apiErr.sentinel = ErrEmbeddingProvider
	}
	return apiErr
}
