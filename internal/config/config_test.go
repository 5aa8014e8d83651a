package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"FLAGPROBE_REMOTE_URL",
		"FLAGPROBE_SDK_KEY",
		"FLAGPROBE_REFRESH_INTERVAL",
		"FLAGPROBE_START_WAIT",
		"FLAGPROBE_TEST_TOGGLES",
		"FLAGPROBE_USER_KEY",
		"FLAGPROBE_USER_ATTRS",
		"FLAGPROBE_TOGGLES",
		"FLAGPROBE_POLL_INTERVAL",
		"METRICS_ADDR",
		"LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_RequiresRemoteOrTestToggles(t *testing.T) {
	clearEnv(t)
	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail without FLAGPROBE_REMOTE_URL or FLAGPROBE_TEST_TOGGLES")
	}
}

func TestLoad_RemoteRequiresSDKKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("FLAGPROBE_REMOTE_URL", "https://toggles.example.com")
	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail without FLAGPROBE_SDK_KEY")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("FLAGPROBE_REMOTE_URL", "https://toggles.example.com")
	t.Setenv("FLAGPROBE_SDK_KEY", "client-sdk-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RefreshInterval != 10 {
		t.Errorf("RefreshInterval = %d, want 10", cfg.RefreshInterval)
	}
	if cfg.StartWait != 3 {
		t.Errorf("StartWait = %d, want 3", cfg.StartWait)
	}
	if cfg.PollInterval != 3*time.Second {
		t.Errorf("PollInterval = %v, want 3s", cfg.PollInterval)
	}
	if cfg.MetricsAddr != ":9100" {
		t.Errorf("MetricsAddr = %q, want :9100", cfg.MetricsAddr)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if len(cfg.Toggles) != 1 || cfg.Toggles[0] != "campaign_allow_list" {
		t.Errorf("Toggles = %v, want [campaign_allow_list]", cfg.Toggles)
	}
	if cfg.Offline() {
		t.Error("Offline() = true, want false")
	}
}

func TestLoad_OfflineMode(t *testing.T) {
	clearEnv(t)
	t.Setenv("FLAGPROBE_TEST_TOGGLES", `{"toggle_1": true}`)
	t.Setenv("FLAGPROBE_TOGGLES", "toggle_1, toggle_2,,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Offline() {
		t.Fatal("Offline() = false, want true")
	}
	if len(cfg.Toggles) != 2 || cfg.Toggles[1] != "toggle_2" {
		t.Fatalf("Toggles = %v, want [toggle_1 toggle_2]", cfg.Toggles)
	}
}

func TestLoad_InvalidTestToggles(t *testing.T) {
	clearEnv(t)
	t.Setenv("FLAGPROBE_TEST_TOGGLES", `{"toggle_1": `)
	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail for malformed FLAGPROBE_TEST_TOGGLES")
	}
}

func TestLoad_Seconds(t *testing.T) {
	tests := []struct {
		name    string
		refresh string
		wait    string
		wantErr bool
	}{
		{name: "valid", refresh: "5", wait: "0"},
		{name: "zero refresh", refresh: "0", wantErr: true},
		{name: "negative refresh", refresh: "-1", wantErr: true},
		{name: "duration syntax", refresh: "5s", wantErr: true},
		{name: "overflow wait", wait: "4294967296", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("FLAGPROBE_REMOTE_URL", "https://toggles.example.com")
			t.Setenv("FLAGPROBE_SDK_KEY", "client-sdk-key")
			t.Setenv("FLAGPROBE_REFRESH_INTERVAL", tt.refresh)
			t.Setenv("FLAGPROBE_START_WAIT", tt.wait)

			cfg, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("Load() error = nil, want non-nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.RefreshInterval != 5 || cfg.StartWait != 0 {
				t.Fatalf("RefreshInterval, StartWait = %d, %d, want 5, 0", cfg.RefreshInterval, cfg.StartWait)
			}
		})
	}
}

func TestLoad_PollInterval_Invalid(t *testing.T) {
	for _, value := range []string{"not-a-duration", "0s", "-1s"} {
		t.Run(value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("FLAGPROBE_TEST_TOGGLES", `{}`)
			t.Setenv("FLAGPROBE_POLL_INTERVAL", value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() should fail for FLAGPROBE_POLL_INTERVAL=%q", value)
			}
		})
	}
}

func TestLoad_UserAttrs(t *testing.T) {
	clearEnv(t)
	t.Setenv("FLAGPROBE_TEST_TOGGLES", `{}`)
	t.Setenv("FLAGPROBE_USER_KEY", " user-1 ")
	t.Setenv("FLAGPROBE_USER_ATTRS", "city=1, plan = pro")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.UserKey != "user-1" {
		t.Errorf("UserKey = %q, want user-1", cfg.UserKey)
	}
	if cfg.UserAttrs["city"] != "1" || cfg.UserAttrs["plan"] != "pro" {
		t.Errorf("UserAttrs = %v", cfg.UserAttrs)
	}

	t.Setenv("FLAGPROBE_USER_ATTRS", "city")
	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail for attribute without '='")
	}
}
