package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Backend REST client
// ============================================================================
// Outbound writes go over the audio server's HTTP API. Responses are treated
// as delivery acknowledgements only: the authoritative state change always
// arrives back through the event stream, so nothing here updates the mirror.
// ============================================================================

// BackendAPI is the effects-layer view of the audio server.
type BackendAPI interface {
	ChangeSource(ctx context.Context, source string) error
	SendCommand(ctx context.Context, source, name string, data map[string]any) error
	SetVolume(ctx context.Context, percent float64) error
	SetBand(ctx context.Context, band string, value float64) error
	SetFeature(ctx context.Context, flag string, enabled bool) error
	PollStatus(ctx context.Context, source string) (StatusUpdated, error)
}

// BackendClient talks to the audio server's REST API.
type BackendClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewBackendClient creates a client for the server at baseURL.
func NewBackendClient(baseURL string, timeout time.Duration, logger *slog.Logger) *BackendClient {
	return &BackendClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *BackendClient) ChangeSource(ctx context.Context, source string) error {
	return c.postJSON(ctx, "/api/source", map[string]any{"source": source})
}

func (c *BackendClient) SendCommand(ctx context.Context, source, name string, data map[string]any) error {
	body := map[string]any{"command": name}
	if len(data) > 0 {
		body["data"] = data
	}
	return c.postJSON(ctx, "/api/sources/"+source+"/command", body)
}

func (c *BackendClient) SetVolume(ctx context.Context, percent float64) error {
	return c.postJSON(ctx, "/api/volume", map[string]any{"volume": percent})
}

func (c *BackendClient) SetBand(ctx context.Context, band string, value float64) error {
	return c.postJSON(ctx, "/api/equalizer/band", map[string]any{"band": band, "value": value})
}

func (c *BackendClient) SetFeature(ctx context.Context, flag string, enabled bool) error {
	return c.postJSON(ctx, "/api/features/"+flag, map[string]any{"enabled": enabled})
}

// PollStatus fetches the current status of one source. The payload shape is
// the same heterogeneous one the push stream uses.
func (c *BackendClient) PollStatus(ctx context.Context, source string) (StatusUpdated, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/sources/"+source+"/status", nil)
	if err != nil {
		return StatusUpdated{}, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return StatusUpdated{}, fmt.Errorf("poll %s status: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return StatusUpdated{}, fmt.Errorf("poll %s status: HTTP %d: %s", source, resp.StatusCode, string(body))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return StatusUpdated{}, fmt.Errorf("read %s status: %w", source, err)
	}

	ev, err := DecodeEvent(Envelope{Topic: "audio", Type: "status_updated", Data: raw})
	if err != nil {
		return StatusUpdated{}, fmt.Errorf("decode %s status: %w", source, err)
	}
	status := ev.(StatusUpdated)
	if status.Source == "" {
		status.Source = source
	}
	return status, nil
}

func (c *BackendClient) postJSON(ctx context.Context, path string, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	c.logger.Debug("backend request", "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("POST %s: HTTP %d: %s", path, resp.StatusCode, string(msg))
	}
	return nil
}
