package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/matt-riley/flagprobe"
	"github.com/matt-riley/flagprobe/internal/config"
	"github.com/matt-riley/flagprobe/internal/logging"
)

func newOfflineClient(t *testing.T) *flagprobe.Client {
	t.Helper()
	client, err := newClient(config.Config{TestToggles: `{"toggle_1": true, "theme": "dark"}`}, logging.New("error"))
	if err != nil {
		t.Fatalf("newClient() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewHTTPHandlerServesHealthz(t *testing.T) {
	handler := newHTTPHandler(newOfflineClient(t))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /healthz status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" || body["sync"] != "closed" {
		t.Fatalf("GET /healthz body = %v", body)
	}
}

func TestNewHTTPHandlerServesMetrics(t *testing.T) {
	client := newOfflineClient(t)
	client.BoolValue("toggle_1", false)
	handler := newHTTPHandler(client)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `flagprobe_evaluations_total{reason="static"} 1`) {
		t.Fatalf("GET /metrics missing evaluation counter:\n%s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /metrics status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestReportLogsEachToggle(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New("info", logging.WithWriter(&buf))
	client := newOfflineClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report(ctx, log, client, []string{"toggle_1", "theme", "missing"}, time.Hour)

	out := buf.String()
	for _, want := range []string{
		`"toggle":"toggle_1","value":"true","reason":"static"`,
		`"toggle":"theme","value":"\"dark\""`,
		`"toggle":"missing","value":"null","reason":"flag not found"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report output missing %s:\n%s", want, out)
		}
	}
}

func TestNewClientRejectsInvalidRemote(t *testing.T) {
	_, err := newClient(config.Config{RemoteURL: "not a url", SDKKey: "key", RefreshInterval: 10}, logging.New("error"))
	if err == nil {
		t.Fatal("newClient() error = nil, want invalid url error")
	}
}
