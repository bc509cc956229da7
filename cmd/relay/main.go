// Command relay runs the WebSocket room relay.
//
// Usage:
//
//	relay <ip> <port> [<host>]
//
// ip and port set the listening address; the optional host argument
// is an Origin-header hostname suffix whitelist (absent/blank accepts
// any Origin). Exit code 0 on clean shutdown, non-zero on bind
// failure or bad arguments.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/collapsinghierarchy/relay/internal/config"
	"github.com/collapsinghierarchy/relay/internal/health"
	"github.com/collapsinghierarchy/relay/internal/idgen"
	"github.com/collapsinghierarchy/relay/internal/logs"
	"github.com/collapsinghierarchy/relay/internal/metrics"
	"github.com/collapsinghierarchy/relay/internal/middleware"
	"github.com/collapsinghierarchy/relay/internal/registry"
	"github.com/collapsinghierarchy/relay/internal/roomcode"
	"github.com/collapsinghierarchy/relay/internal/router"
	"github.com/collapsinghierarchy/relay/internal/ws"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.FromArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	logger := logs.New(cfg.LogLevel)
	defer logger.Sync()

	m := metrics.New()

	reg := registry.New(idgen.Gen)
	rt := router.New(reg, logger, m)
	codes := roomcode.NewStore(10 * time.Minute)

	var limiter *middleware.Limiter
	if cfg.WSRatePerMin > 0 {
		limiter = middleware.New(cfg.WSRatePerMin)
	}
	var httpLimiter *middleware.Limiter
	if cfg.HTTPRatePerMin > 0 {
		httpLimiter = middleware.New(cfg.HTTPRatePerMin)
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", health.Healthz())
	mux.Handle("/readyz", health.Readyz())
	mux.Handle(cfg.MetricsRoute, m.Handler())
	mux.Handle("/roomcode/", http.StripPrefix("/roomcode", codes.Routes()))
	mux.Handle("/ws", ws.NewHandler(cfg, logger, rt, m, limiter))

	var topHandler http.Handler = mux
	if httpLimiter != nil {
		topHandler = httpLimiter.Middleware()(mux)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	codes.StartJanitor(ctx)
	go reportGauges(ctx, reg, m)

	srv := &http.Server{
		Addr:              cfg.BindAddr(),
		Handler:           logs.RequestLogger(logger, topHandler),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", logs.F("addr", cfg.BindAddr()), logs.F("origin_suffix", cfg.OriginSuffix))
		var err error
		if cfg.TLSCertFile != "" {
			err = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("listen failed", zap.Error(err))
			return 1
		}
	case <-sigCtx.Done():
		stop()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
		<-serveErr
	}

	logger.Info("bye")
	return 0
}

// reportGauges periodically samples the registry into the rooms/
// members gauges. The registry itself doesn't push metrics on every
// mutation to keep its hot path free of the metrics package; a
// cheap poll is enough for an operational dashboard.
func reportGauges(ctx context.Context, reg *registry.Registry, m *metrics.Metrics) {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.SetRooms(reg.RoomCount())
			m.SetMembers(reg.MemberCount())
		}
	}
}
