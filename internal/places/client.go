package places

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/kenmarshall/brite-shopping-api/internal/model"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api"

// maxCandidates caps how many lookup results are returned per query.
const maxCandidates = 10

// GatewayError is an upstream place-lookup failure. The upstream's
// message is passed through to the caller.
type GatewayError struct {
	Message string
}

func (e *GatewayError) Error() string {
	return e.Message
}

// Query is a place lookup by free-text name or address. Exactly one
// field should be set; Name takes precedence when both are.
type Query struct {
	Name    string
	Address string
}

// Gateway looks up place candidates for a store search. Implementations
// perform no mutation and an empty result is not an error.
type Gateway interface {
	Search(ctx context.Context, q Query) ([]model.PlaceCandidate, error)
}

// Client queries the Google Maps Places and Geocoding APIs.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// NewClient creates a place lookup client.
func NewClient(apiKey string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
	}
}

// Search finds place candidates by name (Places text search) or by
// address (Geocoding). Zero candidates with a nil error means the
// upstream found nothing.
func (c *Client) Search(ctx context.Context, q Query) ([]model.PlaceCandidate, error) {
	if q.Name != "" {
		return c.searchByName(ctx, q.Name)
	}
	return c.searchByAddress(ctx, q.Address)
}

type placesResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Name             string `json:"name"`
		PlaceID          string `json:"place_id"`
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func (c *Client) searchByName(ctx context.Context, name string) ([]model.PlaceCandidate, error) {
	params := url.Values{}
	params.Set("query", name)
	params.Set("key", c.apiKey)

	resp, err := c.fetch(ctx, c.baseURL+"/place/textsearch/json?"+params.Encode())
	if err != nil {
		return nil, err
	}

	candidates := make([]model.PlaceCandidate, 0, len(resp.Results))
	for _, place := range resp.Results {
		if len(candidates) == maxCandidates {
			break
		}
		lat := place.Geometry.Location.Lat
		lng := place.Geometry.Location.Lng
		candidates = append(candidates, model.PlaceCandidate{
			PlaceID:   place.PlaceID,
			Name:      place.Name,
			Address:   place.FormattedAddress,
			Latitude:  &lat,
			Longitude: &lng,
		})
	}
	return candidates, nil
}

func (c *Client) searchByAddress(ctx context.Context, address string) ([]model.PlaceCandidate, error) {
	params := url.Values{}
	params.Set("address", address)
	params.Set("key", c.apiKey)

	resp, err := c.fetch(ctx, c.baseURL+"/geocode/json?"+params.Encode())
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return []model.PlaceCandidate{}, nil
	}

	// Geocoding resolves an address to a single location.
	place := resp.Results[0]
	lat := place.Geometry.Location.Lat
	lng := place.Geometry.Location.Lng
	return []model.PlaceCandidate{{
		PlaceID:   place.PlaceID,
		Address:   place.FormattedAddress,
		Latitude:  &lat,
		Longitude: &lng,
	}}, nil
}

func (c *Client) fetch(ctx context.Context, rawURL string) (*placesResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &GatewayError{Message: fmt.Sprintf("place lookup request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &GatewayError{Message: fmt.Sprintf("place lookup returned status %d", resp.StatusCode)}
	}

	var parsed placesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &GatewayError{Message: fmt.Sprintf("failed to decode place lookup response: %v", err)}
	}

	switch parsed.Status {
	case "OK", "ZERO_RESULTS":
		return &parsed, nil
	default:
		msg := parsed.ErrorMessage
		if msg == "" {
			msg = parsed.Status
		}
		return nil, &GatewayError{Message: msg}
	}
}
