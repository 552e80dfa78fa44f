package maps

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"posyandu-logistics/internal/common"
)

type mapboxDirectionsResponse struct {
	Routes []struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
	} `json:"routes"`
	Code string `json:"code"`
}

// MapboxClient is the alternative travel-time provider (Directions API,
// driving profile). It does not geocode.
type MapboxClient struct {
	BaseURL     string
	AccessToken string
	HTTPClient  *http.Client
}

func NewMapboxClient(baseURL, accessToken string, timeout time.Duration) *MapboxClient {
	return &MapboxClient{
		BaseURL:     baseURL,
		AccessToken: accessToken,
		HTTPClient:  &http.Client{Timeout: timeout},
	}
}

func (m *MapboxClient) TravelTime(ctx context.Context, from, to common.Location) (time.Duration, error) {
	if m.AccessToken == "" {
		return 0, ErrMissingAPIKey
	}

	url := fmt.Sprintf(
		"%s/directions/v5/mapbox/driving/%f,%f;%f,%f?access_token=%s&overview=false",
		m.BaseURL, from.Lng, from.Lat, to.Lng, to.Lat, m.AccessToken,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRequest, err)
	}

	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d", ErrRequest, resp.StatusCode)
	}

	var result mapboxDirectionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRequest, err)
	}

	switch {
	case result.Code == "NoRoute" || result.Code == "NoSegment":
		return 0, fmt.Errorf("%w (code: %s)", ErrNoRoute, result.Code)
	case result.Code != "Ok":
		return 0, fmt.Errorf("%w: code %s", ErrRequest, result.Code)
	case len(result.Routes) == 0:
		return 0, fmt.Errorf("%w (no routes)", ErrNoRoute)
	}

	return time.Duration(result.Routes[0].Duration * float64(time.Second)), nil
}
