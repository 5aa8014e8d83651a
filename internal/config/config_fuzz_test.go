package config

import (
	"strings"
	"testing"
	"time"
)

func FuzzEnvOrDefault(f *testing.F) {
	f.Add("", ":9100")
	f.Add("  :9200  ", ":9100")

	f.Fuzz(func(t *testing.T, value, fallback string) {
		if strings.ContainsRune(value, '\x00') {
			t.Skip()
		}

		const key = "FLAGPROBE_TEST_ENV_OR_DEFAULT"
		t.Setenv(key, value)

		got := envOrDefault(key, fallback)
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			if got != fallback {
				t.Fatalf("envOrDefault() = %q, want fallback %q", got, fallback)
			}
			return
		}

		if got != trimmed {
			t.Fatalf("envOrDefault() = %q, want trimmed value %q", got, trimmed)
		}
	})
}

func FuzzLoadPollInterval(f *testing.F) {
	f.Add("")
	f.Add("1s")
	f.Add("0s")
	f.Add("-1s")
	f.Add("not-a-duration")

	f.Fuzz(func(t *testing.T, pollInterval string) {
		if strings.ContainsRune(pollInterval, '\x00') {
			t.Skip()
		}

		clearEnv(t)
		t.Setenv("FLAGPROBE_TEST_TOGGLES", `{}`)
		t.Setenv("FLAGPROBE_POLL_INTERVAL", pollInterval)

		cfg, err := Load()
		trimmed := strings.TrimSpace(pollInterval)
		if trimmed == "" {
			if err != nil {
				t.Fatalf("Load() error = %v, want nil for empty FLAGPROBE_POLL_INTERVAL", err)
			}
			if cfg.PollInterval != defaultPollInterval {
				t.Fatalf("PollInterval = %s, want %s", cfg.PollInterval, defaultPollInterval)
			}
			return
		}

		parsed, parseErr := time.ParseDuration(trimmed)
		if parseErr != nil || parsed <= 0 {
			if err == nil {
				t.Fatalf("Load() error = nil, want non-nil for FLAGPROBE_POLL_INTERVAL=%q", pollInterval)
			}
			return
		}

		if err != nil {
			t.Fatalf("Load() error = %v, want nil for FLAGPROBE_POLL_INTERVAL=%q", err, pollInterval)
		}
		if cfg.PollInterval != parsed {
			t.Fatalf("PollInterval = %s, want %s", cfg.PollInterval, parsed)
		}
	})
}

func FuzzParseAttrs(f *testing.F) {
	f.Add("city=1,plan=pro")
	f.Add("")
	f.Add("=x")
	f.Add("a=b=c")

	f.Fuzz(func(t *testing.T, raw string) {
		attrs, err := parseAttrs(raw)
		if err != nil {
			return
		}
		for name := range attrs {
			if name == "" || strings.TrimSpace(name) != name {
				t.Fatalf("parseAttrs(%q) produced attribute name %q", raw, name)
			}
		}
	})
}
