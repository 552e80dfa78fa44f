package healthsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"posyandu-logistics/internal/common"
)

var ErrShadowNotFound = errors.New("healthsync: shadow record not found")

// SourcePost is a health post as the health service owns it.
type SourcePost struct {
	ExternalID string           `yaml:"externalId"`
	Name       string           `yaml:"name"`
	Address    string           `yaml:"address"`
	Location   *common.Location `yaml:"location"`
	UpdatedAt  time.Time        `yaml:"updatedAt"`
}

type locationPayload struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type syncPayload struct {
	ExternalID string           `json:"externalId"`
	Name       string           `json:"name"`
	Address    string           `json:"address"`
	Location   *locationPayload `json:"location,omitempty"`
}

// ShadowRecord is the logistics-side view of a post.
type ShadowRecord struct {
	ExternalID    string     `json:"externalId"`
	LastSyncedAt  time.Time  `json:"lastSyncedAt"`
	AssignedHubID *uuid.UUID `json:"assignedHubId,omitempty"`
}

// StatusError is a non-2xx answer from the logistics service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("logistics responded %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether sending the same request again may succeed.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client talks to the logistics internal API with the shared secret.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Push(ctx context.Context, p SourcePost) error {
	payload := syncPayload{
		ExternalID: p.ExternalID,
		Name:       p.Name,
		Address:    p.Address,
	}
	if p.Location != nil {
		payload.Location = &locationPayload{Lat: p.Location.Lat, Lng: p.Location.Lng}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/internal/posyandu-sync", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (c *Client) Shadow(ctx context.Context, externalID string) (*ShadowRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.BaseURL+"/internal/posyandu-sync/"+url.PathEscape(externalID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrShadowNotFound
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var rec ShadowRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode shadow record: %w", err)
	}
	return &rec, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
