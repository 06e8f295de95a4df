package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/balloon-weather-service/internal/config"
	"github.com/couchcryptid/balloon-weather-service/internal/domain"
	"github.com/couchcryptid/balloon-weather-service/internal/observability"
)

// genericFailureMessage is the only error text clients see in lenient mode.
const genericFailureMessage = "Failed to fetch data from APIs"

var (
	errNoBalloons    = errors.New("current snapshot contained no balloon records")
	errEmptyWeather  = errors.New("weather payload was empty")
	errNotConfigured = errors.New("aggregator has no telemetry source")
)

// TelemetrySource fetches raw telemetry snapshots.
type TelemetrySource interface {
	Snapshot(ctx context.Context, hoursAgo int) (domain.Value, error)
	Ping(ctx context.Context) error
}

// WeatherSource fetches the raw weather document.
type WeatherSource interface {
	Current(ctx context.Context) (domain.Value, error)
}

// SnapshotPublisher receives every successful combined response.
type SnapshotPublisher interface {
	Publish(ctx context.Context, resp domain.CombinedResponse, generatedAt time.Time) error
}

// Settings are the aggregation knobs taken from configuration.
type Settings struct {
	HistoricalOffsets []int
	FetchTimeout      time.Duration
	FailureMode       config.FailureMode
	PublishTimeout    time.Duration
}

// SettingsFromConfig extracts aggregation settings from the service config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		HistoricalOffsets: cfg.HistoricalOffsets,
		FetchTimeout:      cfg.FetchTimeout,
		FailureMode:       cfg.FailureMode,
		PublishTimeout:    cfg.PublishTimeout,
	}
}

// Aggregator combines the current telemetry snapshot, historical snapshots
// and weather into one response. It holds no per-request state; every call
// to Aggregate is independent.
type Aggregator struct {
	telemetry TelemetrySource
	weather   WeatherSource
	publisher SnapshotPublisher
	settings  Settings
	logger    *slog.Logger
	metrics   *observability.Metrics

	publishes sync.WaitGroup
}

// New creates an Aggregator. publisher may be nil to disable publishing.
func New(telemetry TelemetrySource, weather WeatherSource, publisher SnapshotPublisher, settings Settings, logger *slog.Logger, metrics *observability.Metrics) *Aggregator {
	if settings.FailureMode == "" {
		settings.FailureMode = config.FailureModeLenient
	}
	return &Aggregator{
		telemetry: telemetry,
		weather:   weather,
		publisher: publisher,
		settings:  settings,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness reports whether the telemetry feed is reachable.
func (a *Aggregator) CheckReadiness(ctx context.Context) error {
	if a.telemetry == nil {
		return errNotConfigured
	}
	if err := a.telemetry.Ping(ctx); err != nil {
		return fmt.Errorf("telemetry feed unreachable: %w", err)
	}
	return nil
}

// fetchResult is one upstream document or the reason it is missing.
type fetchResult struct {
	value domain.Value
	err   error
}

// Aggregate fetches every feed concurrently, sanitizes and reshapes the
// results and merges them. It returns a *domain.AggregateError when the
// current snapshot or the weather payload is unusable; historical failures
// only shrink historical_balloons.
func (a *Aggregator) Aggregate(ctx context.Context) (domain.CombinedResponse, error) {
	start := clock.Now()

	var (
		wg         sync.WaitGroup
		current    fetchResult
		weather    fetchResult
		historical = make([]fetchResult, len(a.settings.HistoricalOffsets))
	)

	wg.Add(2 + len(historical))
	go func() {
		defer wg.Done()
		current = a.fetchSnapshot(ctx, domain.CurrentOffset)
	}()
	go func() {
		defer wg.Done()
		weather = a.fetchWeather(ctx)
	}()
	for i, offset := range a.settings.HistoricalOffsets {
		go func() {
			defer wg.Done()
			historical[i] = a.fetchSnapshot(ctx, offset)
		}()
	}
	wg.Wait()

	resp, err := a.combine(current, weather, historical)
	a.metrics.AggregationDuration.Observe(clock.Since(start).Seconds())
	if err != nil {
		a.metrics.Aggregations.WithLabelValues("failure").Inc()
		a.logger.Error("aggregation failed", "error", err, "failure_mode", a.settings.FailureMode)
		return domain.CombinedResponse{}, err
	}

	a.metrics.Aggregations.WithLabelValues("success").Inc()
	a.publish(ctx, resp)
	return resp, nil
}

func (a *Aggregator) combine(current, weather fetchResult, historical []fetchResult) (domain.CombinedResponse, error) {
	// Weather is checked first: when both feeds fail, strict mode reports weather.
	if weather.err != nil {
		return domain.CombinedResponse{}, a.failure(domain.FeedWeather, weather.err)
	}
	weatherPayload := domain.Sanitize(weather.value)
	if weatherPayload.Len() == 0 {
		return domain.CombinedResponse{}, a.failure(domain.FeedWeather, errEmptyWeather)
	}

	if current.err != nil {
		return domain.CombinedResponse{}, a.failure(domain.FeedTelemetry, current.err)
	}
	balloons := a.transform(current.value, domain.CurrentOffset)
	if len(balloons) == 0 {
		return domain.CombinedResponse{}, a.failure(domain.FeedTelemetry, errNoBalloons)
	}

	resp := domain.CombinedResponse{
		Weather:  weatherPayload,
		Balloons: balloons,
	}
	if len(a.settings.HistoricalOffsets) > 0 {
		resp.HistoricalBalloons = []domain.BalloonRecord{}
		for i, offset := range a.settings.HistoricalOffsets {
			if historical[i].err != nil {
				a.metrics.HistoricalFailures.Inc()
				continue
			}
			resp.HistoricalBalloons = append(resp.HistoricalBalloons, a.transform(historical[i].value, offset)...)
		}
	}
	return resp, nil
}

func (a *Aggregator) transform(raw domain.Value, hoursAgo int) []domain.BalloonRecord {
	records, stats := domain.TransformBalloonsWithStats(domain.Sanitize(raw), hoursAgo)

	kind := "current"
	if hoursAgo != domain.CurrentOffset {
		kind = "historical"
	}
	a.metrics.BalloonRecords.WithLabelValues(kind).Add(float64(stats.Records))
	if stats.Malformed > 0 {
		a.metrics.MalformedPoints.Add(float64(stats.Malformed))
		a.logger.Debug("dropped malformed telemetry points",
			"hours_ago", hoursAgo,
			"malformed", stats.Malformed,
			"points", stats.Points,
		)
	}
	return records
}

func (a *Aggregator) fetchSnapshot(ctx context.Context, hoursAgo int) fetchResult {
	ctx, cancel := context.WithTimeout(ctx, a.settings.FetchTimeout)
	defer cancel()

	v, err := a.telemetry.Snapshot(ctx, hoursAgo)
	if err != nil {
		a.logFetchError(domain.FeedTelemetry, hoursAgo, err)
	}
	return fetchResult{value: v, err: err}
}

func (a *Aggregator) fetchWeather(ctx context.Context) fetchResult {
	ctx, cancel := context.WithTimeout(ctx, a.settings.FetchTimeout)
	defer cancel()

	v, err := a.weather.Current(ctx)
	if err != nil {
		a.logFetchError(domain.FeedWeather, domain.CurrentOffset, err)
	}
	return fetchResult{value: v, err: err}
}

func (a *Aggregator) logFetchError(feed string, hoursAgo int, err error) {
	attrs := []any{"feed", feed, "hours_ago", hoursAgo, "kind", domain.UpstreamKind(err), "error", err}
	var ue *domain.UpstreamError
	if errors.As(err, &ue) && ue.StatusCode != 0 {
		attrs = append(attrs, "status", ue.StatusCode)
	}
	a.logger.Warn("upstream fetch failed", attrs...)
}

// failure builds the client-facing error for a failed primary feed.
func (a *Aggregator) failure(feed string, cause error) *domain.AggregateError {
	if a.settings.FailureMode != config.FailureModeStrict {
		return &domain.AggregateError{Message: genericFailureMessage, Cause: cause}
	}

	message := "Balloon data API error"
	if feed == domain.FeedWeather {
		message = "Weather data API error"
	}

	var ue *domain.UpstreamError
	if !errors.As(cause, &ue) {
		return &domain.AggregateError{Message: message, Cause: cause}
	}
	switch ue.Kind {
	case domain.UpstreamHTTPError:
		return &domain.AggregateError{Message: message, StatusCode: ue.StatusCode, Cause: cause}
	case domain.UpstreamParseError:
		return &domain.AggregateError{Message: "JSON parsing error: " + ue.Error(), Cause: cause}
	default:
		return &domain.AggregateError{Message: "Request failed: " + ue.Error(), Cause: cause}
	}
}

// publish hands resp to the publisher in the background. It runs detached
// from the request so a slow broker never delays the response.
func (a *Aggregator) publish(ctx context.Context, resp domain.CombinedResponse) {
	if a.publisher == nil {
		return
	}
	generatedAt := clock.Now()

	a.publishes.Add(1)
	go func() {
		defer a.publishes.Done()

		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.settings.PublishTimeout)
		defer cancel()

		if err := a.publisher.Publish(pubCtx, resp, generatedAt); err != nil {
			a.metrics.SnapshotPublishErrors.Inc()
			a.logger.Warn("snapshot publish failed", "error", err)
			return
		}
		a.metrics.SnapshotsPublished.Inc()
	}()
}

// Wait blocks until background publishes finish or ctx is done.
func (a *Aggregator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.publishes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
