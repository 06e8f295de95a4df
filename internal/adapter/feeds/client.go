// Package feeds fetches the two upstream documents the service combines:
// Windborne balloon telemetry snapshots and Visual Crossing weather.
//
// Both feeds are decoded leniently (see domain.Decode) because the telemetry
// feed writes Python-style NaN literals. Every failure is returned as a
// *domain.UpstreamError; nothing is retried.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/couchcryptid/balloon-weather-service/internal/domain"
	"github.com/couchcryptid/balloon-weather-service/internal/observability"
)

// fetcher is the request plumbing shared by the feed clients.
type fetcher struct {
	feed    string
	http    *resty.Client
	metrics *observability.Metrics
	logger  *slog.Logger
}

func newFetcher(feed string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) fetcher {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{logger: logger.With("feed", feed)})

	return fetcher{
		feed:    feed,
		http:    client,
		metrics: metrics,
		logger:  logger,
	}
}

// getJSON issues a GET and decodes the body, requiring the top-level value
// to be of kind want.
func (f fetcher) getJSON(ctx context.Context, rawURL string, query map[string]string, want domain.Kind) (domain.Value, error) {
	start := time.Now()
	v, err := f.doGet(ctx, rawURL, query, want)
	f.metrics.UpstreamDuration.WithLabelValues(f.feed).Observe(time.Since(start).Seconds())

	outcome := "success"
	if err != nil {
		outcome = string(domain.UpstreamKind(err))
	}
	f.metrics.UpstreamRequests.WithLabelValues(f.feed, outcome).Inc()
	return v, err
}

func (f fetcher) doGet(ctx context.Context, rawURL string, query map[string]string, want domain.Kind) (domain.Value, error) {
	resp, err := f.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(rawURL)
	if err != nil {
		return domain.Value{}, f.networkError(err)
	}

	if !resp.IsSuccess() {
		return domain.Value{}, &domain.UpstreamError{
			Kind:       domain.UpstreamHTTPError,
			Feed:       f.feed,
			StatusCode: resp.StatusCode(),
			Err:        errors.New(http.StatusText(resp.StatusCode())),
		}
	}

	v, err := domain.Decode(resp.Body())
	if err != nil {
		return domain.Value{}, &domain.UpstreamError{
			Kind: domain.UpstreamParseError,
			Feed: f.feed,
			Err:  fmt.Errorf("decode response: %w", err),
		}
	}
	if v.Kind() != want {
		return domain.Value{}, &domain.UpstreamError{
			Kind: domain.UpstreamParseError,
			Feed: f.feed,
			Err:  fmt.Errorf("unexpected response shape: got %s, want %s", v.Kind(), want),
		}
	}
	return v, nil
}

func (f fetcher) head(ctx context.Context, rawURL string) error {
	resp, err := f.http.R().SetContext(ctx).Head(rawURL)
	if err != nil {
		return f.networkError(err)
	}
	if !resp.IsSuccess() {
		return &domain.UpstreamError{
			Kind:       domain.UpstreamHTTPError,
			Feed:       f.feed,
			StatusCode: resp.StatusCode(),
			Err:        errors.New(http.StatusText(resp.StatusCode())),
		}
	}
	return nil
}

// networkError strips the request URL from transport errors; the weather URL
// carries the API key in its query string.
func (f fetcher) networkError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = fmt.Errorf("%s request: %w", strings.ToLower(urlErr.Op), urlErr.Err)
	}
	return &domain.UpstreamError{Kind: domain.UpstreamNetworkError, Feed: f.feed, Err: err}
}

// restyLogger routes resty's internal warnings through slog.
type restyLogger struct {
	logger *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
