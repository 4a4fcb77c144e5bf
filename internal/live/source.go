package live

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"
)

// FrameSource yields one encoded frame per call. The capture loop polls it
// at the configured interval.
type FrameSource interface {
	Capture(ctx context.Context) (imageBase64 string, err error)
}

// HTTPSource fetches JPEG snapshots from a camera's still-image endpoint,
// the lowest common denominator of IP cameras.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates an HTTPSource for the given snapshot URL.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) Capture(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return "", fmt.Errorf("building snapshot request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("snapshot endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32*1024*1024))
	if err != nil {
		return "", fmt.Errorf("reading snapshot body: %w", err)
	}
	return base64.StdEncoding.EncodeToString(body), nil
}

var _ FrameSource = (*HTTPSource)(nil)
