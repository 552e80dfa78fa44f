package maps

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"posyandu-logistics/internal/common"
)

type distanceMatrixResponse struct {
	Status string `json:"status"`
	Rows   []struct {
		Elements []struct {
			Status   string `json:"status"`
			Duration struct {
				Value float64 `json:"value"` // seconds
			} `json:"duration"`
			Distance struct {
				Value float64 `json:"value"` // meters
			} `json:"distance"`
		} `json:"elements"`
	} `json:"rows"`
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
		Types []string `json:"types"`
	} `json:"results"`
}

// GoogleClient talks to the Google Distance Matrix and Geocoding APIs.
type GoogleClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewGoogleClient(baseURL, apiKey string, timeout time.Duration) *GoogleClient {
	return &GoogleClient{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (g *GoogleClient) TravelTime(ctx context.Context, from, to common.Location) (time.Duration, error) {
	if g.APIKey == "" {
		return 0, ErrMissingAPIKey
	}

	q := url.Values{}
	q.Set("origins", fmt.Sprintf("%f,%f", from.Lat, from.Lng))
	q.Set("destinations", fmt.Sprintf("%f,%f", to.Lat, to.Lng))
	q.Set("mode", "driving")
	q.Set("key", g.APIKey)

	var result distanceMatrixResponse
	if err := g.get(ctx, "/maps/api/distancematrix/json", q, &result); err != nil {
		return 0, err
	}

	if result.Status != "OK" {
		return 0, fmt.Errorf("%w: status %s", ErrRequest, result.Status)
	}
	if len(result.Rows) == 0 || len(result.Rows[0].Elements) == 0 {
		return 0, fmt.Errorf("%w (no elements)", ErrNoRoute)
	}
	el := result.Rows[0].Elements[0]
	if el.Status != "OK" {
		return 0, fmt.Errorf("%w (element status: %s)", ErrNoRoute, el.Status)
	}

	return time.Duration(el.Duration.Value) * time.Second, nil
}

func (g *GoogleClient) Geocode(ctx context.Context, address string) (*GeocodeMatch, error) {
	if g.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	q := url.Values{}
	q.Set("address", address)
	q.Set("key", g.APIKey)

	var result geocodeResponse
	if err := g.get(ctx, "/maps/api/geocode/json", q, &result); err != nil {
		return nil, err
	}

	if result.Status != "OK" || len(result.Results) == 0 {
		return nil, fmt.Errorf("%w (status: %s)", ErrNoResults, result.Status)
	}

	best := result.Results[0]
	return &GeocodeMatch{
		Location:         common.NewLocation(best.Geometry.Location.Lat, best.Geometry.Location.Lng),
		FormattedAddress: best.FormattedAddress,
		Types:            best.Types,
	}, nil
}

func (g *GoogleClient) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequest, err)
	}

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrRequest, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrRequest, err)
	}
	return nil
}
