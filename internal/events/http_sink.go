package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPSink posts event batches as JSON to the event service.
type HTTPSink struct {
	url        string
	sdkKey     string
	userAgent  string
	httpClient *http.Client
}

type wireBatch struct {
	Access []AccessEvent `json:"access"`
}

// NewHTTPSink returns a sink posting to eventsURL. A nil httpClient selects
// an otelhttp-instrumented client.
func NewHTTPSink(eventsURL, sdkKey, userAgent string, httpClient *http.Client) *HTTPSink {
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &HTTPSink{
		url:        eventsURL,
		sdkKey:     sdkKey,
		userAgent:  userAgent,
		httpClient: httpClient,
	}
}

func (s *HTTPSink) Send(ctx context.Context, events []AccessEvent) error {
	body, err := json.Marshal(wireBatch{Access: events})
	if err != nil {
		return fmt.Errorf("flagprobe: marshal events: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("flagprobe: create events request: %w", err)
	}
	req.Header.Set("Authorization", s.sdkKey)
	req.Header.Set("Content-Type", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("flagprobe: send events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("flagprobe: send events: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
