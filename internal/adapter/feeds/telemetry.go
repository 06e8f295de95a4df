package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/balloon-weather-service/internal/domain"
	"github.com/couchcryptid/balloon-weather-service/internal/observability"
)

// TelemetryClient reads balloon position snapshots from the Windborne feed.
type TelemetryClient struct {
	baseURL string
	fetcher fetcher
}

// NewTelemetryClient creates a telemetry feed client. baseURL must not end in a slash.
func NewTelemetryClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *TelemetryClient {
	return &TelemetryClient{
		baseURL: baseURL,
		fetcher: newFetcher(domain.FeedTelemetry, timeout, metrics, logger),
	}
}

// SnapshotURL returns the feed URL for a snapshot taken hoursAgo hours back.
// Offset 0 is the current snapshot, 00.json.
func (c *TelemetryClient) SnapshotURL(hoursAgo int) string {
	return fmt.Sprintf("%s/%02d.json", c.baseURL, hoursAgo)
}

// Snapshot fetches the raw, unsanitized snapshot array for hoursAgo.
func (c *TelemetryClient) Snapshot(ctx context.Context, hoursAgo int) (domain.Value, error) {
	return c.fetcher.getJSON(ctx, c.SnapshotURL(hoursAgo), nil, domain.KindArray)
}

// Ping checks that the current snapshot is reachable without downloading it.
func (c *TelemetryClient) Ping(ctx context.Context) error {
	return c.fetcher.head(ctx, c.SnapshotURL(domain.CurrentOffset))
}
