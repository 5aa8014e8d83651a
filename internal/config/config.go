// Package config loads the flagprobe demo configuration from environment
// variables.
//
// Either FLAGPROBE_REMOTE_URL or FLAGPROBE_TEST_TOGGLES must be set.
//
// Remote mode:
//   - FLAGPROBE_REMOTE_URL: base URL of the toggle service.
//   - FLAGPROBE_SDK_KEY: client SDK key (required with FLAGPROBE_REMOTE_URL).
//   - FLAGPROBE_REFRESH_INTERVAL: sync period in whole seconds (default "10",
//     must be > 0).
//   - FLAGPROBE_START_WAIT: seconds to wait for the first sync (default "3",
//     "0" disables waiting).
//
// Offline mode:
//   - FLAGPROBE_TEST_TOGGLES: JSON object of toggle key to value. Takes
//     precedence over FLAGPROBE_REMOTE_URL.
//
// Common optional variables:
//   - FLAGPROBE_USER_KEY: user key (default: anonymous).
//   - FLAGPROBE_USER_ATTRS: comma separated name=value attributes.
//   - FLAGPROBE_TOGGLES: comma separated toggle keys to report
//     (default "campaign_allow_list").
//   - FLAGPROBE_POLL_INTERVAL: reporting period (default "3s", must be > 0).
//   - METRICS_ADDR: listen address for /metrics and /healthz
//     (default ":9100").
//   - LOG_LEVEL: debug, info, warn or error (default "info").
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultRefreshInterval uint32 = 10
	defaultStartWait       uint32 = 3
	defaultPollInterval           = 3 * time.Second
	defaultMetricsAddr            = ":9100"
	defaultToggles                = "campaign_allow_list"
)

// Config holds the runtime configuration for the flagprobe demo.
type Config struct {
	RemoteURL       string
	SDKKey          string
	RefreshInterval uint32
	StartWait       uint32
	TestToggles     string
	UserKey         string
	UserAttrs       map[string]string
	Toggles         []string
	PollInterval    time.Duration
	MetricsAddr     string
	LogLevel        string
}

// Offline reports whether the demo should run from FLAGPROBE_TEST_TOGGLES
// instead of a remote service.
func (c Config) Offline() bool {
	return c.TestToggles != ""
}

// Load reads configuration from environment variables, applying defaults where
// appropriate. It returns an error if required variables are missing or if
// optional values fail validation.
func Load() (Config, error) {
	testToggles := strings.TrimSpace(os.Getenv("FLAGPROBE_TEST_TOGGLES"))
	if testToggles != "" && !json.Valid([]byte(testToggles)) {
		return Config{}, errors.New("FLAGPROBE_TEST_TOGGLES must be a JSON object")
	}

	remoteURL := strings.TrimSpace(os.Getenv("FLAGPROBE_REMOTE_URL"))
	sdkKey := strings.TrimSpace(os.Getenv("FLAGPROBE_SDK_KEY"))
	if testToggles == "" {
		if remoteURL == "" {
			return Config{}, errors.New("FLAGPROBE_REMOTE_URL or FLAGPROBE_TEST_TOGGLES is required")
		}
		if sdkKey == "" {
			return Config{}, errors.New("FLAGPROBE_SDK_KEY is required when FLAGPROBE_REMOTE_URL is set")
		}
	}

	refreshInterval, err := seconds("FLAGPROBE_REFRESH_INTERVAL", defaultRefreshInterval)
	if err != nil {
		return Config{}, err
	}
	if refreshInterval == 0 {
		return Config{}, errors.New("FLAGPROBE_REFRESH_INTERVAL must be > 0")
	}

	startWait, err := seconds("FLAGPROBE_START_WAIT", defaultStartWait)
	if err != nil {
		return Config{}, err
	}

	pollInterval := defaultPollInterval
	if value := strings.TrimSpace(os.Getenv("FLAGPROBE_POLL_INTERVAL")); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse FLAGPROBE_POLL_INTERVAL: %w", err)
		}
		if parsed <= 0 {
			return Config{}, errors.New("FLAGPROBE_POLL_INTERVAL must be > 0")
		}
		pollInterval = parsed
	}

	userAttrs, err := parseAttrs(os.Getenv("FLAGPROBE_USER_ATTRS"))
	if err != nil {
		return Config{}, err
	}

	return Config{
		RemoteURL:       remoteURL,
		SDKKey:          sdkKey,
		RefreshInterval: refreshInterval,
		StartWait:       startWait,
		TestToggles:     testToggles,
		UserKey:         strings.TrimSpace(os.Getenv("FLAGPROBE_USER_KEY")),
		UserAttrs:       userAttrs,
		Toggles:         splitList(envOrDefault("FLAGPROBE_TOGGLES", defaultToggles)),
		PollInterval:    pollInterval,
		MetricsAddr:     envOrDefault("METRICS_ADDR", defaultMetricsAddr),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
	}, nil
}

func seconds(key string, fallback uint32) (uint32, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s must be a whole number of seconds", key)
	}
	return uint32(n), nil
}

func parseAttrs(raw string) (map[string]string, error) {
	attrs := map[string]string{}
	for _, pair := range splitList(raw) {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("FLAGPROBE_USER_ATTRS entry %q must be name=value", pair)
		}
		attrs[name] = strings.TrimSpace(value)
	}
	return attrs, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
