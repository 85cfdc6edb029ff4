// Package executor speaks to the remote workflow engine that runs SQL on
// the pipeline's behalf. The engine either returns rows synchronously or
// acknowledges that it queued the job.
package executor

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
)

var (
	ErrUnreachable = errors.New("executor unreachable")
	ErrTimeout     = errors.New("executor timeout")
	ErrProtocol    = errors.New("executor protocol error")
)

type Result struct {
	Rows          []map[string]any
	RowCount      int
	ExecutionTime time.Duration
	Asynchronous  bool
}

type Config struct {
	URL            string
	ExecuteTimeout time.Duration
	ProbeTimeout   time.Duration
	HTTPClient     *http.Client
}

type Client struct {
	url            string
	executeTimeout time.Duration
	probeTimeout   time.Duration
	client         *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("executor url is required")
	}
	executeTimeout := cfg.ExecuteTimeout
	if executeTimeout <= 0 {
		executeTimeout = 30 * time.Second
	}
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		url:            strings.TrimSpace(cfg.URL),
		executeTimeout: executeTimeout,
		probeTimeout:   probeTimeout,
		client:         client,
	}, nil
}

// Execute dispatches one statement and normalizes the response shape.
// An acknowledgement payload without a results array is the asynchronous
// case and is not an error.
func (c *Client) Execute(ctx context.Context, sqlText string) (Result, error) {
	body, err := json.Marshal(map[string]any{"query": sqlText})
	if err != nil {
		return Result{}, fmt.Errorf("marshal executor payload: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.executeTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build executor request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Result{}, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: read response body: %v", ErrProtocol, err)
	}
	switch {
	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable:
		return Result{}, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	case resp.StatusCode == http.StatusGatewayTimeout:
		return Result{}, fmt.Errorf("%w: status %d", ErrTimeout, resp.StatusCode)
	case resp.StatusCode >= 400:
		return Result{}, fmt.Errorf("%w: status %d body=%s", ErrProtocol, resp.StatusCode, truncate(rawBody, 200))
	}

	return normalizeResponse(rawBody, time.Since(start))
}

// Probe checks connectivity with the short timeout. Any HTTP response at
// all counts as reachable; only transport failures do not.
func (c *Client) Probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(probeCtx, http.MethodHead, c.url, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyTransportError(err)
	}
	_ = resp.Body.Close()
	return nil
}

func normalizeResponse(rawBody []byte, elapsed time.Duration) (Result, error) {
	var payload map[string]any
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return Result{}, fmt.Errorf("%w: decode response: %v", ErrProtocol, err)
	}

	rawResults, hasResults := payload["results"]
	if !hasResults {
		if _, hasMessage := payload["message"]; hasMessage {
			return Result{Rows: []map[string]any{}, Asynchronous: true, ExecutionTime: elapsed}, nil
		}
		return Result{}, fmt.Errorf("%w: response has neither results nor acknowledgement", ErrProtocol)
	}

	list, ok := rawResults.([]any)
	if !ok {
		return Result{}, fmt.Errorf("%w: results field is not a list", ErrProtocol)
	}

	rows := make([]map[string]any, 0, len(list))
	for _, item := range list {
		row, ok := item.(map[string]any)
		if !ok {
			return Result{}, fmt.Errorf("%w: results element is not an object", ErrProtocol)
		}
		rows = append(rows, row)
	}
	return Result{Rows: rows, RowCount: len(rows), ExecutionTime: elapsed}, nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
