package feeds

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/balloon-weather-service/internal/domain"
	"github.com/couchcryptid/balloon-weather-service/internal/observability"
)

// WeatherClient reads the Visual Crossing timeline for one fixed location.
type WeatherClient struct {
	baseURL string
	apiKey  string
	fetcher fetcher
}

// NewWeatherClient creates a weather feed client. baseURL is the full
// timeline URL including the location path segment.
func NewWeatherClient(baseURL, apiKey string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *WeatherClient {
	return &WeatherClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		fetcher: newFetcher(domain.FeedWeather, timeout, metrics, logger),
	}
}

// Current fetches the raw, unsanitized weather document.
func (c *WeatherClient) Current(ctx context.Context) (domain.Value, error) {
	query := map[string]string{
		"unitGroup":   "us",
		"key":         c.apiKey,
		"contentType": "json",
	}
	return c.fetcher.getJSON(ctx, c.baseURL, query, domain.KindObject)
}
