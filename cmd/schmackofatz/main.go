package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/schmackofatz/recipes/core/logx"
	"github.com/schmackofatz/recipes/core/secret"
	"github.com/schmackofatz/recipes/internal/config"
	"github.com/schmackofatz/recipes/internal/inflight"
	"github.com/schmackofatz/recipes/internal/metrics"
	"github.com/schmackofatz/recipes/internal/relay"
	"github.com/schmackofatz/recipes/internal/server"
	"github.com/schmackofatz/recipes/internal/serverstate"
	"github.com/schmackofatz/recipes/internal/upstream"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

// configFlag returns the --config value from args, if any, so the file can
// be loaded before the remaining flags are bound.
func configFlag(args []string) (string, bool) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if (a == "--config" || a == "-config") && i+1 < len(args) {
			return args[i+1], true
		}
		for _, p := range []string{"--config=", "-config="} {
			if strings.HasPrefix(a, p) {
				return strings.TrimPrefix(a, p), true
			}
		}
	}
	return "", false
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.ServerConfig
	// defaults < file < env < args
	cfg.SetDefaults()
	cfg.ApplyEnv()
	if p, ok := configFlag(os.Args[1:]); ok {
		cfg.ConfigFile = p
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	cfg.ApplyEnv()
	cfg.BindFlagsFromCurrent(nil)
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "schmackofatz version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Printf("schmackofatz version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}

	cfg.Resolve()
	logx.Configure(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logx.Log.Fatal().Err(err).Msg("invalid configuration")
	}
	metrics.SetServerBuildInfo(version, buildSHA, buildDate)

	if cfg.RedisAddr != "" {
		rs, err := serverstate.NewRedisStore(cfg.RedisAddr)
		if err != nil {
			logx.Log.Fatal().Err(err).Msg("connect redis")
		}
		defer rs.Close()
		serverstate.UseStore(rs)
		logx.Log.Info().Str("addr", cfg.RedisAddr).Msg("using redis state store")
	}

	client := upstream.New(upstream.Config{
		APIKey:        cfg.UpstreamAPIKey,
		BaseURL:       cfg.UpstreamBaseURL,
		HeaderTimeout: cfg.HeaderTimeout,
	})
	streams := inflight.Streams()
	handler, err := server.New(cfg, server.Deps{
		Relay:   relay.New(client, relay.Options{Model: cfg.Model, IdleTimeout: cfg.IdleTimeout}),
		Streams: streams,
		Version: version,
	})
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("build router")
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	var metricsSrv *http.Server
	if !cfg.MetricsOnMainPort() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if serverstate.IsDraining() || cfg.DrainTimeout == 0 {
				logx.Log.Warn().Msg("termination requested")
				cancel()
				return
			}
			serverstate.StartDrain()
			logx.Log.Info().Int64("active_streams", streams.Load()).Msg("drain requested")
			go drain(ctx, cancel, streams, cfg.DrainTimeout)
		}
	}()
	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			logx.Log.Error().Err(err).Msg("server shutdown")
		}
	}()
	if metricsSrv != nil {
		go func() {
			<-ctx.Done()
			if err := metricsSrv.Shutdown(context.Background()); err != nil {
				logx.Log.Error().Err(err).Msg("metrics server shutdown")
			}
		}()
	}

	logx.Log.Info().
		Int("port", cfg.Port).
		Str("upstream", cfg.UpstreamBaseURL).
		Str("model", cfg.Model).
		Str("api_key", secret.Mask(cfg.UpstreamAPIKey)).
		Dur("idle_timeout", cfg.IdleTimeout).
		Msg("server starting")
	serverstate.SetState(serverstate.StatusReady)
	if metricsSrv != nil {
		go func() {
			logx.Log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server starting")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logx.Log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logx.Log.Fatal().Err(err).Msg("server error")
	}
}

// drain waits for running streams to finish, then cancels ctx. A negative
// timeout waits indefinitely.
func drain(ctx context.Context, cancel context.CancelFunc, streams *inflight.Counter, timeout time.Duration) {
	waitCtx := ctx
	if timeout > 0 {
		var stop context.CancelFunc
		waitCtx, stop = context.WithTimeout(ctx, timeout)
		defer stop()
		logx.Log.Info().Dur("timeout", timeout).Msg("draining; send SIGTERM again to terminate immediately")
	} else {
		logx.Log.Info().Msg("draining; send SIGTERM again to terminate immediately")
	}
	if streams.WaitForZero(waitCtx) {
		logx.Log.Info().Msg("drain complete; terminating")
		cancel()
		return
	}
	if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		logx.Log.Warn().Int64("active_streams", streams.Load()).Msg("drain timeout exceeded; terminating")
		cancel()
	}
}
