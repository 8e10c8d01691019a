// Package route computes and holds the on-map path between the user's
// position and a selected place.
package route

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/twpayne/go-polyline"

	"github.com/jpvelasco/placedrop/internal/model"
)

// ErrRoute wraps every directions service failure. Callers degrade to a
// marker-only display, they never crash the map render.
var ErrRoute = errors.New("route computation failed")

// Directions abstracts the external directions service.
type Directions interface {
	Route(ctx context.Context, origin, dest model.GeoFix) (model.RoutePath, error)
}

// Client talks to a Google-Directions-shaped HTTP service.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	log      zerolog.Logger
}

// NewClient constructs a Client.
func NewClient(endpoint, apiKey string, httpClient *http.Client, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     httpClient,
		log:      log.With().Str("component", "route").Logger(),
	}
}

type directionsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		OverviewPolyline struct {
			Points string `json:"points"`
		} `json:"overview_polyline"`
		Legs []struct {
			Distance struct {
				Value int `json:"value"`
			} `json:"distance"`
			Duration struct {
				Value int `json:"value"`
			} `json:"duration"`
		} `json:"legs"`
	} `json:"routes"`
}

// Route requests a routed path between two fixes. Every failure mode comes
// back wrapped in ErrRoute.
func (c *Client) Route(ctx context.Context, origin, dest model.GeoFix) (model.RoutePath, error) {
	q := url.Values{}
	q.Set("origin", fmt.Sprintf("%f,%f", origin.Latitude, origin.Longitude))
	q.Set("destination", fmt.Sprintf("%f,%f", dest.Latitude, dest.Longitude))
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return model.RoutePath{}, fmt.Errorf("%w: %v", ErrRoute, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return model.RoutePath{}, fmt.Errorf("%w: %v", ErrRoute, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.RoutePath{}, fmt.Errorf("%w: directions service returned %s", ErrRoute, resp.Status)
	}

	var body directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.RoutePath{}, fmt.Errorf("%w: decode response: %v", ErrRoute, err)
	}
	if body.Status != "OK" || len(body.Routes) == 0 {
		msg := body.ErrorMessage
		if msg == "" {
			msg = body.Status
		}
		return model.RoutePath{}, fmt.Errorf("%w: %s", ErrRoute, msg)
	}

	coords, _, err := polyline.DecodeCoords([]byte(body.Routes[0].OverviewPolyline.Points))
	if err != nil {
		return model.RoutePath{}, fmt.Errorf("%w: decode polyline: %v", ErrRoute, err)
	}
	path := model.RoutePath{Points: make([]model.GeoFix, 0, len(coords))}
	for _, c := range coords {
		path.Points = append(path.Points, model.GeoFix{Latitude: c[0], Longitude: c[1]})
	}
	for _, leg := range body.Routes[0].Legs {
		path.DistanceMeters += leg.Distance.Value
		path.DurationSeconds += leg.Duration.Value
	}
	return path, nil
}
