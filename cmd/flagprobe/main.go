// Package main is a demo process embedding a flagprobe client.
//
// The bootstrap sequence is:
//  1. Load configuration from environment variables.
//  2. Build a client, either synced from a remote toggle service or offline
//     from FLAGPROBE_TEST_TOGGLES.
//  3. Serve /metrics and /healthz on METRICS_ADDR.
//  4. Log the detail of every configured toggle each poll interval.
//  5. Wait for SIGINT/SIGTERM, then shut down the server and close the client.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/matt-riley/flagprobe"
	"github.com/matt-riley/flagprobe/internal/config"
	"github.com/matt-riley/flagprobe/internal/logging"
	"github.com/matt-riley/flagprobe/internal/tracing"
)

const (
	shutdownTimeout       = 10 * time.Second
	httpReadHeaderTimeout = 5 * time.Second
	httpReadTimeout       = 30 * time.Second
	httpIdleTimeout       = 2 * time.Minute
)

func main() {
	if err := run(); err != nil {
		slog.Error("flagprobe failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New(cfg.LogLevel)
	slog.SetDefault(log)

	shutdownTracer, err := tracing.Init(context.Background())
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown error", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := newClient(cfg, log)
	if err != nil {
		return fmt.Errorf("init client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Warn("client close error", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           otelhttp.NewHandler(logging.HTTPMiddleware(log)(newHTTPHandler(client)), "flagprobe-http"),
		ReadHeaderTimeout: httpReadHeaderTimeout,
		ReadTimeout:       httpReadTimeout,
		IdleTimeout:       httpIdleTimeout,
	}

	listener, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		return fmt.Errorf("listen HTTP %s: %w", cfg.MetricsAddr, err)
	}
	defer listener.Close()

	log.Info("flagprobe started",
		"metrics_addr", cfg.MetricsAddr,
		"offline", cfg.Offline(),
		"sync_state", client.SyncState().String(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve HTTP: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("flagprobe shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("shutdown HTTP: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		report(gctx, log, client, cfg.Toggles, cfg.PollInterval)
		return nil
	})

	return g.Wait()
}

func newClient(cfg config.Config, log *slog.Logger) (*flagprobe.Client, error) {
	if cfg.Offline() {
		return flagprobe.NewForTest(cfg.TestToggles)
	}

	remote, err := flagprobe.BuildURL(cfg.RemoteURL)
	if err != nil {
		return nil, err
	}
	clientCfg, err := flagprobe.NewConfig(remote, cfg.SDKKey, cfg.RefreshInterval, cfg.StartWait)
	if err != nil {
		return nil, err
	}

	user := flagprobe.NewUser(cfg.UserKey)
	for name, value := range cfg.UserAttrs {
		user.With(name, value)
	}

	return flagprobe.New(clientCfg, user,
		flagprobe.WithLogger(log),
		flagprobe.WithOnUpdate(func(version uint64) {
			log.Info("toggles updated", "version", version)
		}),
	)
}

func newHTTPHandler(client *flagprobe.Client) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", client.MetricsHandler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
			"sync":   client.SyncState().String(),
		})
		if err != nil {
			logging.FromContext(r.Context()).WarnContext(r.Context(), "write health response",
				slog.String("error", err.Error()),
			)
		}
	})
	return mux
}

// report logs every toggle's detail once per interval until ctx is done.
func report(ctx context.Context, log *slog.Logger, client *flagprobe.Client, toggles []string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for _, key := range toggles {
			logDetail(ctx, log, key, client.JSONDetail(key, json.RawMessage("null")))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func logDetail(ctx context.Context, log *slog.Logger, key string, detail flagprobe.Detail[json.RawMessage]) {
	attrs := []slog.Attr{
		slog.String("toggle", key),
		slog.String("value", string(detail.Value)),
		slog.String("reason", string(detail.Reason)),
	}
	if detail.RuleIndex != nil {
		attrs = append(attrs, slog.Int("rule_index", *detail.RuleIndex))
	}
	if detail.Version != nil {
		attrs = append(attrs, slog.Uint64("version", *detail.Version))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "toggle detail", attrs...)
}
