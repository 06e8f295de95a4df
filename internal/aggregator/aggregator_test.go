package aggregator_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/balloon-weather-service/internal/aggregator"
	"github.com/couchcryptid/balloon-weather-service/internal/config"
	"github.com/couchcryptid/balloon-weather-service/internal/domain"
	"github.com/couchcryptid/balloon-weather-service/internal/observability"
)

// --- fakes ---

type fakeTelemetry struct {
	mu        sync.Mutex
	snapshots map[int]string // hoursAgo -> raw body
	errs      map[int]error
	delay     time.Duration
	pingErr   error
	calls     []int
}

func (f *fakeTelemetry) Snapshot(ctx context.Context, hoursAgo int) (domain.Value, error) {
	f.mu.Lock()
	f.calls = append(f.calls, hoursAgo)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.Value{}, &domain.UpstreamError{Kind: domain.UpstreamNetworkError, Feed: domain.FeedTelemetry, Err: ctx.Err()}
		}
	}
	if err := f.errs[hoursAgo]; err != nil {
		return domain.Value{}, err
	}
	body, ok := f.snapshots[hoursAgo]
	if !ok {
		return domain.Value{}, &domain.UpstreamError{Kind: domain.UpstreamHTTPError, Feed: domain.FeedTelemetry, StatusCode: 404, Err: errors.New("Not Found")}
	}
	return domain.Decode([]byte(body))
}

func (f *fakeTelemetry) Ping(context.Context) error { return f.pingErr }

type fakeWeather struct {
	body string
	err  error
}

func (f *fakeWeather) Current(context.Context) (domain.Value, error) {
	if f.err != nil {
		return domain.Value{}, f.err
	}
	return domain.Decode([]byte(f.body))
}

type fakePublisher struct {
	published chan domain.CombinedResponse
	times     chan time.Time
	err       error
}

func newFakePublisher(err error) *fakePublisher {
	return &fakePublisher{
		published: make(chan domain.CombinedResponse, 1),
		times:     make(chan time.Time, 1),
		err:       err,
	}
}

func (p *fakePublisher) Publish(_ context.Context, resp domain.CombinedResponse, generatedAt time.Time) error {
	p.published <- resp
	p.times <- generatedAt
	return p.err
}

// --- helpers ---

const weatherBody = `{"resolvedAddress":"Palo Alto, CA","days":[{"temp":61.2,"precip":NaN}]}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func settings(mode config.FailureMode, offsets ...int) aggregator.Settings {
	if offsets == nil {
		offsets = []int{}
	}
	return aggregator.Settings{
		HistoricalOffsets: offsets,
		FetchTimeout:      time.Second,
		FailureMode:       mode,
		PublishTimeout:    time.Second,
	}
}

func newAggregator(tel *fakeTelemetry, wx *fakeWeather, pub aggregator.SnapshotPublisher, s aggregator.Settings) (*aggregator.Aggregator, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	return aggregator.New(tel, wx, pub, s, discardLogger(), metrics), metrics
}

func marshal(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

// --- tests ---

func TestAggregate_HappyPath(t *testing.T) {
	tel := &fakeTelemetry{snapshots: map[int]string{
		0: `[[10,20,5000],[NaN,30,100]]`,
		1: `[[11,21,5100]]`,
		3: `[[13,23,5300],[1,2],[14,24,null]]`,
	}}
	agg, metrics := newAggregator(tel, &fakeWeather{body: weatherBody}, nil, settings(config.FailureModeLenient, 1, 3))

	resp, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"weather": {"resolvedAddress":"Palo Alto, CA","days":[{"temp":61.2,"precip":null}]},
		"balloons": [
			{"id":1,"lat":10,"lon":20,"alt":5000},
			{"id":2,"lat":"N/A","lon":30,"alt":100}
		],
		"historical_balloons": [
			{"id":1,"lat":11,"lon":21,"alt":5100,"hours_ago":1},
			{"id":1,"lat":13,"lon":23,"alt":5300,"hours_ago":3},
			{"id":3,"lat":14,"lon":24,"alt":"N/A","hours_ago":3}
		]
	}`, marshal(t, resp))

	assert.ElementsMatch(t, []int{0, 1, 3}, tel.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Aggregations.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.BalloonRecords.WithLabelValues("current")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.BalloonRecords.WithLabelValues("historical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MalformedPoints))
}

func TestAggregate_HistoricalOrderFollowsOffsets(t *testing.T) {
	tel := &fakeTelemetry{snapshots: map[int]string{
		0: `[[1,1,1]]`,
		1: `[[10,10,10],[11,11,11]]`,
		3: `[[30,30,30]]`,
	}}
	agg, _ := newAggregator(tel, &fakeWeather{body: weatherBody}, nil, settings(config.FailureModeLenient, 3, 1))

	resp, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	require.Len(t, resp.HistoricalBalloons, 3)
	assert.Equal(t, 3, resp.HistoricalBalloons[0].HoursAgo)
	assert.Equal(t, 1, resp.HistoricalBalloons[1].HoursAgo)
	assert.Equal(t, 1, resp.HistoricalBalloons[1].ID)
	assert.Equal(t, 2, resp.HistoricalBalloons[2].ID)
}

func TestAggregate_HistoricalFailureIsSwallowed(t *testing.T) {
	tel := &fakeTelemetry{
		snapshots: map[int]string{0: `[[1,2,3]]`, 3: `[[4,5,6]]`},
		errs: map[int]error{
			1: &domain.UpstreamError{Kind: domain.UpstreamNetworkError, Feed: domain.FeedTelemetry, Err: errors.New("connection reset")},
		},
	}
	agg, metrics := newAggregator(tel, &fakeWeather{body: weatherBody}, nil, settings(config.FailureModeStrict, 1, 3))

	resp, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	require.Len(t, resp.HistoricalBalloons, 1)
	assert.Equal(t, 3, resp.HistoricalBalloons[0].HoursAgo)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HistoricalFailures))
}

func TestAggregate_AllHistoricalFailedGivesEmptyList(t *testing.T) {
	tel := &fakeTelemetry{snapshots: map[int]string{0: `[[1,2,3]]`}}
	agg, _ := newAggregator(tel, &fakeWeather{body: weatherBody}, nil, settings(config.FailureModeLenient, 1, 3))

	resp, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	assert.NotNil(t, resp.HistoricalBalloons)
	assert.Empty(t, resp.HistoricalBalloons)
	assert.Contains(t, marshal(t, resp), `"historical_balloons":[]`)
}

func TestAggregate_NoOffsetsOmitsHistorical(t *testing.T) {
	tel := &fakeTelemetry{snapshots: map[int]string{0: `[[1,2,3]]`}}
	agg, _ := newAggregator(tel, &fakeWeather{body: weatherBody}, nil, settings(config.FailureModeLenient))

	resp, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	assert.Nil(t, resp.HistoricalBalloons)
	assert.NotContains(t, marshal(t, resp), "historical_balloons")
	assert.Equal(t, []int{0}, tel.calls)
}

func TestAggregate_LenientFailures(t *testing.T) {
	networkErr := &domain.UpstreamError{Kind: domain.UpstreamNetworkError, Feed: domain.FeedTelemetry, Err: errors.New("connection refused")}

	cases := []struct {
		name string
		tel  *fakeTelemetry
		wx   *fakeWeather
	}{
		{"telemetry unreachable", &fakeTelemetry{errs: map[int]error{0: networkErr}}, &fakeWeather{body: weatherBody}},
		{"telemetry empty", &fakeTelemetry{snapshots: map[int]string{0: `[]`}}, &fakeWeather{body: weatherBody}},
		{"telemetry all malformed", &fakeTelemetry{snapshots: map[int]string{0: `[[1,2],"x"]`}}, &fakeWeather{body: weatherBody}},
		{"weather failed", &fakeTelemetry{snapshots: map[int]string{0: `[[1,2,3]]`}}, &fakeWeather{err: &domain.UpstreamError{Kind: domain.UpstreamHTTPError, Feed: domain.FeedWeather, StatusCode: 429, Err: errors.New("Too Many Requests")}}},
		{"weather empty object", &fakeTelemetry{snapshots: map[int]string{0: `[[1,2,3]]`}}, &fakeWeather{body: `{}`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			agg, metrics := newAggregator(tc.tel, tc.wx, nil, settings(config.FailureModeLenient, 1))

			_, err := agg.Aggregate(context.Background())

			var aggErr *domain.AggregateError
			require.True(t, errors.As(err, &aggErr))
			assert.Equal(t, "Failed to fetch data from APIs", aggErr.Message)
			assert.Zero(t, aggErr.StatusCode)
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Aggregations.WithLabelValues("failure")))
		})
	}
}

func TestAggregate_StrictFailures(t *testing.T) {
	t.Run("weather http status surfaces", func(t *testing.T) {
		tel := &fakeTelemetry{snapshots: map[int]string{0: `[[1,2,3]]`}}
		wx := &fakeWeather{err: &domain.UpstreamError{Kind: domain.UpstreamHTTPError, Feed: domain.FeedWeather, StatusCode: 401, Err: errors.New("Unauthorized")}}
		agg, _ := newAggregator(tel, wx, nil, settings(config.FailureModeStrict))

		_, err := agg.Aggregate(context.Background())

		var aggErr *domain.AggregateError
		require.True(t, errors.As(err, &aggErr))
		assert.Equal(t, "Weather data API error", aggErr.Message)
		assert.Equal(t, 401, aggErr.StatusCode)
	})

	t.Run("weather reported before balloons", func(t *testing.T) {
		tel := &fakeTelemetry{}
		wx := &fakeWeather{err: &domain.UpstreamError{Kind: domain.UpstreamHTTPError, Feed: domain.FeedWeather, StatusCode: 500, Err: errors.New("Internal Server Error")}}
		agg, _ := newAggregator(tel, wx, nil, settings(config.FailureModeStrict))

		_, err := agg.Aggregate(context.Background())

		var aggErr *domain.AggregateError
		require.True(t, errors.As(err, &aggErr))
		assert.Equal(t, "Weather data API error", aggErr.Message)
	})

	t.Run("balloon http status surfaces", func(t *testing.T) {
		tel := &fakeTelemetry{} // 00.json missing -> 404
		agg, _ := newAggregator(tel, &fakeWeather{body: weatherBody}, nil, settings(config.FailureModeStrict))

		_, err := agg.Aggregate(context.Background())

		var aggErr *domain.AggregateError
		require.True(t, errors.As(err, &aggErr))
		assert.Equal(t, "Balloon data API error", aggErr.Message)
		assert.Equal(t, 404, aggErr.StatusCode)
	})

	t.Run("network error message", func(t *testing.T) {
		tel := &fakeTelemetry{errs: map[int]error{0: &domain.UpstreamError{Kind: domain.UpstreamNetworkError, Feed: domain.FeedTelemetry, Err: errors.New("connection refused")}}}
		agg, _ := newAggregator(tel, &fakeWeather{body: weatherBody}, nil, settings(config.FailureModeStrict))

		_, err := agg.Aggregate(context.Background())

		var aggErr *domain.AggregateError
		require.True(t, errors.As(err, &aggErr))
		assert.Equal(t, "Request failed: telemetry feed: network_error: connection refused", aggErr.Message)
	})

	t.Run("parse error message", func(t *testing.T) {
		tel := &fakeTelemetry{snapshots: map[int]string{0: `[[1,2,3]]`}}
		wx := &fakeWeather{err: &domain.UpstreamError{Kind: domain.UpstreamParseError, Feed: domain.FeedWeather, Err: errors.New("decode response: bad")}}
		agg, _ := newAggregator(tel, wx, nil, settings(config.FailureModeStrict))

		_, err := agg.Aggregate(context.Background())

		var aggErr *domain.AggregateError
		require.True(t, errors.As(err, &aggErr))
		assert.Equal(t, "JSON parsing error: weather feed: parse_error: decode response: bad", aggErr.Message)
	})
}

func TestAggregate_FetchTimeoutDegrades(t *testing.T) {
	tel := &fakeTelemetry{snapshots: map[int]string{0: `[[1,2,3]]`}, delay: 500 * time.Millisecond}
	s := settings(config.FailureModeLenient)
	s.FetchTimeout = 20 * time.Millisecond
	agg, _ := newAggregator(tel, &fakeWeather{body: weatherBody}, nil, s)

	start := time.Now()
	_, err := agg.Aggregate(context.Background())

	require.Error(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.Equal(t, domain.UpstreamNetworkError, domain.UpstreamKind(err))
}

func TestAggregate_FetchesConcurrently(t *testing.T) {
	tel := &fakeTelemetry{
		snapshots: map[int]string{0: `[[1,2,3]]`, 1: `[[1,2,3]]`, 3: `[[1,2,3]]`},
		delay:     150 * time.Millisecond,
	}
	agg, _ := newAggregator(tel, &fakeWeather{body: weatherBody}, nil, settings(config.FailureModeLenient, 1, 3))

	start := time.Now()
	_, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	// Three sequential fetches would take at least 450ms.
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestAggregate_PublishesSnapshot(t *testing.T) {
	fixed := time.Date(2025, 2, 14, 9, 30, 0, 0, time.UTC)
	aggregator.SetClock(clockwork.NewFakeClockAt(fixed))
	defer aggregator.SetClock(nil)

	pub := newFakePublisher(nil)
	tel := &fakeTelemetry{snapshots: map[int]string{0: `[[1,2,3]]`}}
	agg, metrics := newAggregator(tel, &fakeWeather{body: weatherBody}, pub, settings(config.FailureModeLenient))

	resp, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	select {
	case published := <-pub.published:
		assert.Equal(t, resp.Balloons, published.Balloons)
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot was not published")
	}
	assert.Equal(t, fixed, <-pub.times)

	require.NoError(t, agg.Wait(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SnapshotsPublished))
}

func TestAggregate_PublishErrorDoesNotFailRequest(t *testing.T) {
	pub := newFakePublisher(errors.New("broker down"))
	tel := &fakeTelemetry{snapshots: map[int]string{0: `[[1,2,3]]`}}
	agg, metrics := newAggregator(tel, &fakeWeather{body: weatherBody}, pub, settings(config.FailureModeLenient))

	_, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	<-pub.published
	require.NoError(t, agg.Wait(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SnapshotPublishErrors))
}

func TestAggregate_FailureIsNotPublished(t *testing.T) {
	pub := newFakePublisher(nil)
	agg, _ := newAggregator(&fakeTelemetry{}, &fakeWeather{body: weatherBody}, pub, settings(config.FailureModeLenient))

	_, err := agg.Aggregate(context.Background())
	require.Error(t, err)
	require.NoError(t, agg.Wait(context.Background()))

	assert.Empty(t, pub.published)
}

func TestCheckReadiness(t *testing.T) {
	agg, _ := newAggregator(&fakeTelemetry{}, &fakeWeather{}, nil, settings(config.FailureModeLenient))
	assert.NoError(t, agg.CheckReadiness(context.Background()))

	down, _ := newAggregator(&fakeTelemetry{pingErr: errors.New("dial tcp: refused")}, &fakeWeather{}, nil, settings(config.FailureModeLenient))
	err := down.CheckReadiness(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telemetry feed unreachable")
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := &config.Config{
		HistoricalOffsets: []int{2},
		FetchTimeout:      3 * time.Second,
		FailureMode:       config.FailureModeStrict,
		PublishTimeout:    time.Second,
	}
	s := aggregator.SettingsFromConfig(cfg)

	assert.Equal(t, []int{2}, s.HistoricalOffsets)
	assert.Equal(t, 3*time.Second, s.FetchTimeout)
	assert.Equal(t, config.FailureModeStrict, s.FailureMode)
	assert.Equal(t, time.Second, s.PublishTimeout)
}
