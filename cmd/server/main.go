// Command server is an example binary wiring together the routing
// transport, the optional health prober, and a minimal admin HTTP surface.
// It is illustrative glue around the library packages, not part of the
// specified core -- the same way the teacher's own cmd/ is glue around its
// load-balancing packages.
package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mharriscode/aoai-priority-transport/config"
	"github.com/mharriscode/aoai-priority-transport/internal/backend"
	"github.com/mharriscode/aoai-priority-transport/internal/healthprobe"
	"github.com/mharriscode/aoai-priority-transport/internal/httpserver"
	"github.com/mharriscode/aoai-priority-transport/internal/obsmetrics"
	"github.com/mharriscode/aoai-priority-transport/internal/routingtransport"
	"github.com/mharriscode/aoai-priority-transport/internal/selector"
	"github.com/mharriscode/aoai-priority-transport/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg, err := backend.NewRegistry(toDescriptors(cfg.Backends), log)
	if err != nil {
		log.Error("failed to build backend registry", slog.Any("err", err))
		os.Exit(1)
	}
	sel := selector.New(reg)

	collector := obsmetrics.NewCollector(1000, log)
	collector.Start(ctx)

	client := buildClient(cfg, reg, sel, log, collector)

	if cfg.HealthProbe.Enabled {
		prober, err := buildProber(cfg, reg, log)
		if err != nil {
			log.Error("failed to configure health prober", slog.Any("err", err))
			os.Exit(1)
		}
		go prober.Run(ctx)
	}

	srv, err := httpserver.NewAdmin(cfg.Server.Address, collector)
	if err != nil {
		log.Error("failed to create server", slog.Any("err", err))
		os.Exit(1)
	}
	srv.Handle("/proxy/", proxyHandler(client, log))

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down gracefully")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("error starting admin server", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func toDescriptors(backends []config.BackendConfig) []backend.Descriptor {
	descriptors := make([]backend.Descriptor, len(backends))
	for i, b := range backends {
		descriptors[i] = backend.Descriptor{
			Host:     b.Host,
			Priority: b.Priority,
			APIKey:   b.APIKey,
		}
	}
	return descriptors
}

func buildClient(cfg *config.Config, reg *backend.Registry, sel *selector.Selector, log *slog.Logger, collector *obsmetrics.Collector) *http.Client {
	if cfg.Transport.Mode == config.TransportModeAsync {
		tr := routingtransport.NewAsyncTransport(reg, sel, log, nil, cfg.Transport.MaxGoroutines)
		tr.SetMetrics(collector)
		return &http.Client{Transport: tr}
	}

	tr := routingtransport.NewTransport(reg, sel, log, nil)
	tr.SetMetrics(collector)
	return &http.Client{Transport: tr}
}

func buildProber(cfg *config.Config, reg *backend.Registry, log *slog.Logger) (*healthprobe.Prober, error) {
	interval, err := time.ParseDuration(cfg.HealthProbe.Interval)
	if err != nil {
		return nil, err
	}
	resetTimeout, err := time.ParseDuration(cfg.HealthProbe.ResetTimeout)
	if err != nil {
		return nil, err
	}

	return healthprobe.New(reg, healthprobe.Config{
		Interval:         interval,
		Path:             cfg.HealthProbe.Path,
		FailureThreshold: cfg.HealthProbe.FailureThreshold,
		ResetTimeout:     resetTimeout,
		BackoffSeconds:   cfg.HealthProbe.BackoffSeconds,
	}, log), nil
}

// proxyHandler forwards an inbound request through client, stripping the
// "/proxy" prefix, and demonstrates the one intended way to exercise a
// routingtransport-backed client: build a request carrying only path,
// query, method, headers and body, and let the transport fill in scheme,
// host, and auth on every attempt. Attempt/success/throttle counters are
// recorded by the transport itself (see buildClient's SetMetrics call), not
// by this handler.
func proxyHandler(client *http.Client, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}

		outbound := &http.Request{
			Method: r.Method,
			URL: &url.URL{
				Path:     r.URL.Path[len("/proxy"):],
				RawQuery: r.URL.RawQuery,
			},
			Header: r.Header.Clone(),
			Body:   io.NopCloser(bytes.NewReader(body)),
			GetBody: func() (io.ReadCloser, error) {
				return io.NopCloser(bytes.NewReader(body)), nil
			},
		}
		outbound = outbound.WithContext(r.Context())

		resp, err := client.Do(outbound)
		if err != nil {
			log.Error("proxied request failed", slog.Any("err", err))
			http.Error(w, "upstream request failed", http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		for k, values := range resp.Header {
			for _, v := range values {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(resp.StatusCode)
		io.Copy(w, resp.Body)
	}
}
