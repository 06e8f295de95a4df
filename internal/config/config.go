package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// FailureMode selects how a failed primary feed is reported to API clients.
type FailureMode string

const (
	// FailureModeLenient hides upstream details behind one generic error.
	FailureModeLenient FailureMode = "lenient"
	// FailureModeStrict names the failing feed and passes its HTTP status through.
	FailureModeStrict FailureMode = "strict"
)

// Snapshot offsets are hour counts; the feed publishes 00.json through 23.json.
const maxHistoricalOffset = 23

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Upstream feeds.
	TelemetryBaseURL  string
	WeatherBaseURL    string
	WeatherAPIKey     string
	HistoricalOffsets []int
	FetchTimeout      time.Duration
	FailureMode       FailureMode

	// Optional snapshot publishing to Kafka.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSnapshotTopic string
	PublishTimeout     time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := parsePositiveDuration("FETCH_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	publishTimeout, err := parsePositiveDuration("PUBLISH_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	// An explicitly empty HISTORICAL_OFFSETS disables historical snapshots.
	rawOffsets, ok := os.LookupEnv("HISTORICAL_OFFSETS")
	if !ok {
		rawOffsets = "1,3"
	}
	offsets, err := parseHistoricalOffsets(rawOffsets)
	if err != nil {
		return nil, err
	}

	mode := FailureMode(strings.ToLower(sharedcfg.EnvOrDefault("FAILURE_MODE", string(FailureModeLenient))))
	switch mode {
	case FailureModeLenient, FailureModeStrict:
	default:
		return nil, fmt.Errorf("invalid FAILURE_MODE %q (allowed: lenient, strict)", mode)
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		TelemetryBaseURL:  strings.TrimRight(sharedcfg.EnvOrDefault("TELEMETRY_BASE_URL", "https://a.windbornesystems.com/treasure"), "/"),
		WeatherBaseURL:    sharedcfg.EnvOrDefault("WEATHER_BASE_URL", "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services/timeline/palo%20alto"),
		WeatherAPIKey:     strings.TrimSpace(os.Getenv("WEATHER_API_KEY")),
		HistoricalOffsets: offsets,
		FetchTimeout:      fetchTimeout,
		FailureMode:       mode,

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSnapshotTopic: sharedcfg.EnvOrDefault("KAFKA_SNAPSHOT_TOPIC", "balloon-weather-snapshots"),
		PublishTimeout:     publishTimeout,
	}

	if cfg.WeatherAPIKey == "" {
		return nil, errors.New("WEATHER_API_KEY is required")
	}
	if cfg.TelemetryBaseURL == "" {
		return nil, errors.New("TELEMETRY_BASE_URL is required")
	}
	if cfg.WeatherBaseURL == "" {
		return nil, errors.New("WEATHER_BASE_URL is required")
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q (allowed: json, text)", cfg.LogFormat)
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED=true")
		}
		if cfg.KafkaSnapshotTopic == "" {
			return nil, errors.New("KAFKA_SNAPSHOT_TOPIC is required when KAFKA_ENABLED=true")
		}
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

// parseHistoricalOffsets parses a comma-separated list of hour offsets.
// Order is kept and duplicates are dropped.
func parseHistoricalOffsets(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []int{}, nil
	}
	seen := map[int]bool{}
	var offsets []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 || n > maxHistoricalOffset {
			return nil, fmt.Errorf("invalid HISTORICAL_OFFSETS entry %q (allowed: 1-%d)", part, maxHistoricalOffset)
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		offsets = append(offsets, n)
	}
	if offsets == nil {
		offsets = []int{}
	}
	return offsets, nil
}
