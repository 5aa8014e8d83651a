// Package fetch retrieves toggle snapshots from the remote toggle service.
package fetch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/matt-riley/flagprobe/internal/core"
)

const maxPayloadBytes = 8 << 20

// UserAgent is sent with every request to the toggle and event services.
const UserAgent = "flagprobe-go/1.0"

var (
	// ErrTransport wraps failures to reach the service or non-2xx replies.
	ErrTransport = errors.New("toggle fetch transport failure")
	// ErrParse wraps payloads that could not be decoded.
	ErrParse = errors.New("toggle payload parse failure")
)

// Config holds configuration for the toggle fetcher.
type Config struct {
	// TogglesURL is the absolute URL of the client toggles endpoint.
	TogglesURL *url.URL
	// SDKKey is sent verbatim in the Authorization header.
	SDKKey string
	// UserParam is the encoded user sent as the "user" query parameter.
	// See EncodeUser.
	UserParam string
	// HTTPClient is optional; defaults to an otelhttp-instrumented client.
	HTTPClient *http.Client
}

// Fetcher implements syncer.Fetcher over HTTP.
type Fetcher struct {
	cfg        Config
	httpClient *http.Client
}

// New returns a fetcher for cfg. TogglesURL must be set.
func New(cfg Config) (*Fetcher, error) {
	if cfg.TogglesURL == nil {
		return nil, errors.New("toggles url is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = NewHTTPClient()
	}
	return &Fetcher{cfg: cfg, httpClient: hc}, nil
}

// NewHTTPClient returns an HTTP client whose transport emits OpenTelemetry
// spans for each request.
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// APIError is returned when the service responds with an HTTP error status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("flagprobe: HTTP %d: %s", e.StatusCode, e.Message)
}

// Permanent reports whether retrying the request cannot succeed without a
// configuration change. Client errors other than 408 and 429 are permanent.
func (e *APIError) Permanent() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsPermanent reports whether err carries a permanent APIError.
func IsPermanent(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Permanent()
}

// -- wire types --------------------------------------------------------------

type wirePayload struct {
	Version uint64                     `json:"version"`
	Toggles map[string]json.RawMessage `json:"toggles"`
}

// EncodeUser renders a user as base64-encoded JSON for the "user" query
// parameter.
func EncodeUser(user any) (string, error) {
	b, err := json.Marshal(user)
	if err != nil {
		return "", fmt.Errorf("flagprobe: marshal user: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DecodeSnapshot parses a toggle payload. Toggle keys missing from a
// definition are taken from the enclosing map key.
func DecodeSnapshot(r io.Reader) (*core.Snapshot, error) {
	var payload wirePayload
	if err := json.NewDecoder(io.LimitReader(r, maxPayloadBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	snapshot := &core.Snapshot{
		Version: payload.Version,
		Toggles: make(map[string]core.Toggle, len(payload.Toggles)),
	}
	for key, raw := range payload.Toggles {
		var toggle core.Toggle
		if err := json.Unmarshal(raw, &toggle); err != nil {
			return nil, fmt.Errorf("%w: toggle %q: %v", ErrParse, key, err)
		}
		if toggle.Key == "" {
			toggle.Key = key
		}
		if toggle.Key != key {
			return nil, fmt.Errorf("%w: toggle key %q stored under %q", ErrParse, toggle.Key, key)
		}
		snapshot.Toggles[key] = toggle
	}

	return snapshot, nil
}

// Fetch downloads and decodes the current toggle snapshot.
func (f *Fetcher) Fetch(ctx context.Context) (*core.Snapshot, error) {
	target := *f.cfg.TogglesURL
	if f.cfg.UserParam != "" {
		query := target.Query()
		query.Set("user", f.cfg.UserParam)
		target.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("flagprobe: create request: %w", err)
	}
	req.Header.Set("Authorization", f.cfg.SDKKey)
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: %w", ErrTransport, &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(msg)),
		})
	}

	return DecodeSnapshot(resp.Body)
}
