package flagprobe

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidConfig is returned for a missing URL, an empty SDK key or a zero
// refresh interval.
var ErrInvalidConfig = errors.New("flagprobe: invalid config")

// DefaultStartWaitSeconds is the start wait selected by
// NewConfigWaitFirstResponse(..., true).
const DefaultStartWaitSeconds = 3

// Config is the immutable client configuration.
type Config struct {
	url             *ServiceURL
	sdkKey          string
	refreshInterval time.Duration
	startWait       time.Duration
}

// NewConfig validates and builds a Config. startWaitSeconds bounds how long
// New blocks for the first toggle fetch; 0 means New does not wait.
func NewConfig(remote *ServiceURL, sdkKey string, refreshIntervalSeconds, startWaitSeconds uint32) (*Config, error) {
	if remote == nil {
		return nil, fmt.Errorf("%w: service url is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(sdkKey) == "" {
		return nil, fmt.Errorf("%w: sdk key is required", ErrInvalidConfig)
	}
	if refreshIntervalSeconds == 0 {
		return nil, fmt.Errorf("%w: refresh interval must be positive", ErrInvalidConfig)
	}

	return &Config{
		url:             remote,
		sdkKey:          sdkKey,
		refreshInterval: time.Duration(refreshIntervalSeconds) * time.Second,
		startWait:       time.Duration(startWaitSeconds) * time.Second,
	}, nil
}

// NewConfigWaitFirstResponse accepts the boolean form of the start wait:
// true waits up to DefaultStartWaitSeconds, false does not wait.
func NewConfigWaitFirstResponse(remote *ServiceURL, sdkKey string, refreshIntervalSeconds uint32, waitFirstResponse bool) (*Config, error) {
	var startWait uint32
	if waitFirstResponse {
		startWait = DefaultStartWaitSeconds
	}
	return NewConfig(remote, sdkKey, refreshIntervalSeconds, startWait)
}

func (c *Config) URL() *ServiceURL { return c.url }
func (c *Config) SDKKey() string { return c.sdkKey }
func (c *Config) RefreshInterval() time.Duration { return c.refreshInterval }
func (c *Config) StartWait() time.Duration { return c.startWait }
