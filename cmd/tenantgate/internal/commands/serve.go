package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/otelconnect"
	zlog "github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantgate/internal/auth"
	"github.com/wolfeidau/tenantgate/internal/logger"
	"github.com/wolfeidau/tenantgate/internal/server"
	"github.com/wolfeidau/tenantgate/internal/telemetry"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"TENANTGATE_LISTEN"`
	Cert   string `help:"path to TLS cert file, serves plain HTTP when empty" default:"" env:"TENANTGATE_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"TENANTGATE_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"https://localhost" env:"TENANTGATE_CORS_ORIGINS"`

	// Telemetry
	Tracing     bool    `help:"enable tracing and metrics export" default:"false" env:"TENANTGATE_TRACING"`
	SampleRatio float64 `help:"fraction of root traces sampled" default:"1" env:"TENANTGATE_TRACE_SAMPLE_RATIO"`

	// Store configuration
	StoreType string        `help:"store type (memory or postgres)" default:"memory" env:"TENANTGATE_STORE_TYPE" enum:"memory,postgres"`
	Fixtures  string        `help:"YAML fixtures seeding the memory store" type:"existingfile" env:"TENANTGATE_FIXTURES"`
	Postgres  PostgresFlags `embed:"" prefix:"postgres-"`
	Cache     CacheFlags    `embed:"" prefix:"cache-"`
}

func (c *ServeCmd) Validate() error {
	if (c.Cert == "") != (c.Key == "") {
		return errors.New("TLS needs both --cert and --key")
	}
	return c.Cache.Validate()
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	zlog.Logger = log

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting tenantgate")

	// Setup telemetry if enabled
	var interceptors []connect.Interceptor
	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "tenantgate",
			Version:     globals.Version,
			SampleRatio: c.SampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
		otelInterceptor, err := otelconnect.NewInterceptor()
		if err != nil {
			return fmt.Errorf("failed to create OTEL interceptor: %w", err)
		}
		interceptors = append(interceptors, otelInterceptor)
	}

	st, err := openStores(ctx, c.StoreType, c.Fixtures, &c.Postgres)
	if err != nil {
		return err
	}
	defer st.close()

	cache, closeCache, err := c.Cache.newCache(ctx)
	if err != nil {
		return err
	}
	defer closeCache()

	resolver := auth.NewTokenResolver(st.keys, st.orgs, auth.WithCache(cache))

	if cache != nil {
		sweeper := auth.NewRevocationSweeper(st.keys, cache, c.Cache.SweepInterval)
		sweeper.Start(ctx)
		defer sweeper.Stop()

		log.Info().
			Dur("revocation_bound", c.Cache.RevocationBound()).
			Dur("deletion_bound", c.Cache.DeletionBound()).
			Msg("Revocation sweeper started")
	}

	srv := server.NewServer(resolver, st.pinger, server.Config{CORSOrigins: c.CORSOrigins})
	httpServer := configureHTTPServer(c.Listen, srv.Handler(log, interceptors...))

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Msg("Starting HTTP server")
		if c.Cert != "" {
			errCh <- httpServer.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}

	return nil
}
