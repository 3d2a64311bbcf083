package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryptoservices/internal/config"
	"cryptoservices/internal/health"
	"cryptoservices/internal/logging"
	"cryptoservices/internal/registrar"
)

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listen := fs.String("listen", "", "metrics listen address (overrides config)")
	fs.Parse(args)

	cfg := loadConfig()
	logger := setupLogging(cfg)
	r := openRegistrar(cfg, logger)
	defer r.Close()

	addr := cfg.Metrics.Listen
	if *listen != "" {
		addr = *listen
	}

	loader := watchConfig(r, logger)
	if loader != nil {
		defer loader.Close()
	}

	checker := newHealthChecker(r)

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Metrics().Registry().HTTPHandler())
	mux.Handle("/healthz", checker.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	checker.SetReady(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case <-sigChan:
		logger.Info("shutting down")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "Error serving metrics: %v\n", err)
		r.Close()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

func newHealthChecker(r *registrar.Registrar) *health.Checker {
	c := health.NewChecker()
	c.RegisterFunc("entropy", true, health.EntropyCheck(r.DefaultEntropySourceProvider, 256))
	c.RegisterFunc("native", false, health.MonitorCheck(r.NativeServices().Monitors))
	return c
}

// watchConfig applies changes to the config file to r. It returns nil when
// there is no file to watch.
func watchConfig(r *registrar.Registrar, logger *logging.Logger) *config.Loader {
	path := *configPath
	if path == "" {
		path = config.FindConfigFile()
	}
	if path == "" {
		return nil
	}

	loader := config.NewLoader(path)
	if _, err := loader.Load(); err != nil {
		logger.Warn("config watch disabled", "path", path, "error", err)
		return nil
	}
	loader.OnChange(func(cfg *config.Config) {
		logger.Info("configuration changed", "path", path)
		r.ApplyConfig(cfg)
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("config watch disabled", "path", path, "error", err)
		loader.Close()
		return nil
	}
	go func() {
		for err := range loader.Errors() {
			logger.Warn("config reload rejected", "error", err)
		}
	}()
	return loader
}
