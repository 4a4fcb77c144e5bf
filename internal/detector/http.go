package detector

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// HTTPClient implements Pipeline against the inference service's HTTP API.
// Video detection uses a newline-delimited JSON stream so results arrive
// per frame instead of one giant payload at the end.
type HTTPClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPClient creates an inference client. The timeout bounds frame and
// readiness calls; video streams run for the length of the video, so their
// deadline comes from the caller's context instead.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		timeout: timeout,
		client:  &http.Client{},
	}
}

func (c *HTTPClient) Name() string { return "http" }

func (c *HTTPClient) ProcessVideo(ctx context.Context, req VideoRequest, onUnit func(Unit) error) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding video request: %w", err)
	}

	u := fmt.Sprintf("%s/v1/videos/detect", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrInvalidResponse, resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	// Frames crowded with detections can produce long lines.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var unit Unit
		if err := json.Unmarshal(line, &unit); err != nil {
			return fmt.Errorf("%w: decoding unit: %v", ErrInvalidResponse, err)
		}
		if err := onUnit(unit); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return classifyError(err)
	}
	return nil
}

func (c *HTTPClient) DetectFrame(ctx context.Context, req FrameRequest) (FrameResult, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return FrameResult{}, fmt.Errorf("encoding frame request: %w", err)
	}

	u := fmt.Sprintf("%s/v1/frames/detect", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return FrameResult{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return FrameResult{}, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return FrameResult{}, fmt.Errorf("%w: status %d", ErrInvalidResponse, resp.StatusCode)
	}

	var result FrameResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return FrameResult{}, fmt.Errorf("%w: decoding frame result: %v", ErrInvalidResponse, err)
	}
	return result, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	u := fmt.Sprintf("%s/healthz", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPipelineUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: detector not ready (status %d)", ErrPipelineUnavailable, resp.StatusCode)
	}
	return nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrPipelineUnavailable, err)
	}

	return fmt.Errorf("%w: %v", ErrPipelineUnavailable, err)
}

var _ Pipeline = (*HTTPClient)(nil)
