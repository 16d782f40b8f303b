// Package remote is the client-side HTTP binding to the sync API. It
// implements the reconciler's RemoteStore contract; retry policy lives in
// the reconciler, not here.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/veranda-labs/canvass/internal/geo"
	"github.com/veranda-labs/canvass/internal/shift"
	"github.com/veranda-labs/canvass/internal/syncer"
)

const defaultRequestTimeout = 10 * time.Second

// ClientConfig describes the inputs for a sync API client.
type ClientConfig struct {
	BaseURL    string
	RepID      string
	Token      string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the sync API over HTTP. A 409 response maps to
// ErrRemoteConflict so the reconciler can discard superseded entries; every
// other non-2xx status is a retryable failure.
type Client struct {
	baseURL    string
	repID      string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs a sync API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("remote: base URL is required")
	}
	if strings.TrimSpace(cfg.RepID) == "" {
		return nil, fmt.Errorf("remote: rep id is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		repID:      cfg.RepID,
		token:      cfg.Token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type doorEventEnvelope struct {
	RepID string          `json:"repId"`
	Event shift.DoorEvent `json:"event"`
}

// UpsertDoorEvent delivers one immutable door event. The server keys on the
// client-generated event id, so redelivery is a no-op.
func (c *Client) UpsertDoorEvent(ctx context.Context, event shift.DoorEvent) error {
	return c.post(ctx, "/v1/events", doorEventEnvelope{RepID: c.repID, Event: event})
}

// MergeShiftSummary delivers the current derived summary for a shift.
func (c *Client) MergeShiftSummary(ctx context.Context, summary shift.Summary) error {
	return c.post(ctx, "/v1/summaries", summary)
}

// MergeLivePosition delivers the rep's latest position sample.
func (c *Client) MergeLivePosition(ctx context.Context, position geo.RepPosition) error {
	return c.post(ctx, "/v1/positions", position)
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("remote: encoding %s payload: %w", path, err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("remote: building %s request: %w", path, err)
	}
	request.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("remote: %s: %w", path, err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return nil
	}
	if response.StatusCode == http.StatusConflict {
		return syncer.ErrRemoteConflict
	}
	detail, _ := io.ReadAll(io.LimitReader(response.Body, 512))
	return fmt.Errorf("remote: %s returned %d: %s", path, response.StatusCode, strings.TrimSpace(string(detail)))
}
