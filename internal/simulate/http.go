package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/smartsession/internal/domain/model"
)

// HTTPClient talks to the service API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Health calls GET /health.
func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// PostFrame submits one frame and decodes the resolved record.
func (c *HTTPClient) PostFrame(ctx context.Context, f Frame) (model.SubjectState, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return model.SubjectState{}, fmt.Errorf("failed to marshal frame: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/student/process-frame", bytes.NewReader(body))
	if err != nil {
		return model.SubjectState{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var st model.SubjectState
	if err := c.do(req, &st); err != nil {
		return model.SubjectState{}, err
	}
	return st, nil
}

// Roster calls GET /teacher/sessions.
func (c *HTTPClient) Roster(ctx context.Context) ([]model.SubjectState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/teacher/sessions", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	var roster []model.SubjectState
	if err := c.do(req, &roster); err != nil {
		return nil, err
	}
	return roster, nil
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s %s: %d %s", ErrUnexpectedStatus, req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
