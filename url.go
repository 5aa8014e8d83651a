package flagprobe

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned when a service URL cannot be built.
var ErrInvalidURL = errors.New("flagprobe: invalid url")

const (
	togglesPath = "api/client-sdk/toggles"
	eventsPath  = "api/events"
)

// ServiceURL holds the validated endpoints a Client talks to. It is
// immutable once built.
type ServiceURL struct {
	toggles *url.URL
	events  *url.URL
}

// TogglesURL returns a copy of the toggle fetch endpoint.
func (u *ServiceURL) TogglesURL() *url.URL {
	clone := *u.toggles
	return &clone
}

// EventsURL returns a copy of the access event endpoint.
func (u *ServiceURL) EventsURL() *url.URL {
	clone := *u.events
	return &clone
}

// URLBuilder derives the service endpoints from a remote base URL. Explicit
// toggles and events URLs take precedence over the derived ones.
type URLBuilder struct {
	remote  string
	toggles string
	events  string
}

func NewURLBuilder(remote string) *URLBuilder {
	return &URLBuilder{remote: remote}
}

func (b *URLBuilder) WithTogglesURL(togglesURL string) *URLBuilder {
	b.toggles = togglesURL
	return b
}

func (b *URLBuilder) WithEventsURL(eventsURL string) *URLBuilder {
	b.events = eventsURL
	return b
}

// Build validates the remote URL and any overrides. It fails with
// ErrInvalidURL on empty input, unparsable syntax, a scheme other than http
// or https, or a missing host.
func (b *URLBuilder) Build() (*ServiceURL, error) {
	remote, err := parseServiceURL(b.remote)
	if err != nil {
		return nil, err
	}
	if remote.Path == "" {
		remote.Path = "/"
	}

	toggles := remote.JoinPath(togglesPath)
	if b.toggles != "" {
		if toggles, err = parseServiceURL(b.toggles); err != nil {
			return nil, err
		}
	}

	events := remote.JoinPath(eventsPath)
	if b.events != "" {
		if events, err = parseServiceURL(b.events); err != nil {
			return nil, err
		}
	}

	return &ServiceURL{toggles: toggles, events: events}, nil
}

// BuildURL is shorthand for NewURLBuilder(remote).Build().
func BuildURL(remote string) (*ServiceURL, error) {
	return NewURLBuilder(remote).Build()
}

func parseServiceURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	case "":
		return nil, fmt.Errorf("%w: %q has no scheme", ErrInvalidURL, raw)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, parsed.Scheme)
	}

	if parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidURL, raw)
	}

	return parsed, nil
}
