// README: Google Maps driving estimates used to fill a ride's expected duration.
package maps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"googlemaps.github.io/maps"
)

var ErrNoRoute = errors.New("no route found")

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client   *maps.Client
	language string
	region   string
}

type Option func(*routeOptions)

type routeOptions struct {
	language string
	region   string
	baseURL  string
}

// WithLocale sets the response language and the region bias, e.g. "th", "TH".
func WithLocale(language, region string) Option {
	return func(o *routeOptions) {
		o.language = language
		o.region = region
	}
}

// WithBaseURL points the client at another Maps endpoint.
func WithBaseURL(u string) Option {
	return func(o *routeOptions) { o.baseURL = u }
}

func NewRouteService(apiKey string, opts ...Option) (*RouteService, error) {
	o := routeOptions{language: "th", region: "TH"}
	for _, opt := range opts {
		opt(&o)
	}
	clientOpts := []maps.ClientOption{maps.WithAPIKey(apiKey)}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, maps.WithBaseURL(o.baseURL))
	}
	client, err := maps.NewClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client, language: o.language, region: o.region}, nil
}

// GetTravelEstimate returns the driving duration and a readable distance
// for the first leg of the best route.
func (s *RouteService) GetTravelEstimate(ctx context.Context, origin, destination string) (time.Duration, string, error) {
	r := &maps.DirectionsRequest{
		Origin:      origin,
		Destination: destination,
		Mode:        maps.TravelModeDriving,
		Language:    s.language,
		Region:      s.region,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return 0, "", fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, "", ErrNoRoute
	}

	leg := routes[0].Legs[0]
	return leg.Duration, leg.Distance.HumanReadable, nil
}
