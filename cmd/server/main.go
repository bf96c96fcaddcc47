// Command server runs a small HTTP application on top of the session
// manager. It is configured through sessionx.yml and SESSIONX_ variables,
// see internal/config.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bluescreen10/sessionx/internal/config"
	"github.com/bluescreen10/sessionx/logger"
	"github.com/bluescreen10/sessionx/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, err := config.Load(".", "/etc/sessionx")
	if err != nil {
		l := logger.New().Zerolog()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	lgr := logger.New(
		logger.WithLevel(cfg.Log.Level),
		logger.WithFormat(cfg.Log.Format),
		logger.WithOutput(os.Stdout),
	)
	log := lgr.Zerolog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open session store")
	}
	defer closeStore()
	log.Info().Str("driver", cfg.Store.Driver).Msg("session store ready")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mngr := session.NewManager(store,
		session.WithConfig(cfg.Session),
		session.WithLogger(log),
		session.WithRegisterer(reg),
	)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           NewRouter(mngr, lgr, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("starting http server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("could not start http server")
		}
	}()

	<-ctx.Done()
	log.Warn().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exiting")
}
