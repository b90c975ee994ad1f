// ============================================================================
// kflogs - Kubefill Job Log Viewer
// ============================================================================
//
// Package:     api
// Description: REST client for jobs and historical logs
// Author:      Mike Stoffels
// Created:     2026-10-14
// License:     MIT
// ============================================================================

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// StatusError is returned when the backend answers with a non-success status
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// Client talks to the Kubefill REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a REST client for the given API base URL
// (e.g. http://localhost:8080/api)
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetJob fetches a job by id
func (c *Client) GetJob(ctx context.Context, id int) (*Job, error) {
	var job Job
	if err := c.get(ctx, "/jobs/"+strconv.Itoa(id), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// FetchLogs fetches the collected log chunks of a job. A 204 or empty
// body yields no chunks.
func (c *Client) FetchLogs(ctx context.Context, id int) ([]LogChunk, error) {
	var chunks []LogChunk
	if err := c.get(ctx, "/jobs/"+strconv.Itoa(id)+"/logs", &chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

func (c *Client) get(ctx context.Context, path string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		var errResp ErrorResponse
		if json.Unmarshal(body, &errResp) == nil {
			statusErr.Message = errResp.Message
		}
		return statusErr
	}

	if resp.StatusCode == http.StatusNoContent || len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
