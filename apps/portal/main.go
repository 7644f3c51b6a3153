package main

import (
	"context"
	"expvar"
	"fmt"
	"io"
	"log"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/apps/portal/echo"
	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/services/logger"
	"github.com/trezcool/masomo-portal/storage/database"
	"github.com/trezcool/masomo-portal/storage/inmem"
	"github.com/trezcool/masomo-portal/storage/redis"
)

const purgeInterval = time.Hour

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "PORTAL : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Flush()

	provider, closer, err := setUpSessionStorage(conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up %s session storage: %v", conf.Session.Backend, err), err)
	}
	if closer != nil {
		defer func() {
			if err = closer.Close(); err != nil {
				logger.Error("closing session storage", err)
			}
		}()
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("sessionBackend").Set(conf.Session.Backend)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Portal Service

	server := echoportal.NewServer(
		echoportal.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			Sessions:   echoportal.NewSessionManager(conf.Session, !conf.Debug, provider),
			Validate:   validate,
			Translator: translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// setUpSessionStorage returns the server-side storage of browser sessions; nil keeps them in the session cookie.
func setUpSessionStorage(conf *core.Config, logger core.Logger) (core.StorageProvider, io.Closer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch conf.Session.Backend {
	case core.SessionBackendCookie:
		return nil, nil, nil

	case core.SessionBackendMemory:
		return inmemstore.Open(), nil, nil

	case core.SessionBackendRedis:
		store, err := redisstore.Open(ctx, conf)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil

	case core.SessionBackendPostgres:
		db, err := database.Open(ctx, conf)
		if err != nil {
			return nil, nil, err
		}
		if err = database.Migrate(ctx, db, conf.Database.Table); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		store := database.NewStore(db, conf.Database.Table)
		go purgeSessions(store, time.Duration(conf.Session.MaxAge)*time.Second, logger)
		return store, db, nil

	default:
		return nil, nil, errors.Errorf("unknown session backend %q", conf.Session.Backend)
	}
}

// purgeSessions periodically drops the items of sessions idle for longer than maxAge.
func purgeSessions(store *database.Store, maxAge time.Duration, logger core.Logger) {
	if maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for range ticker.C {
		n, err := store.Purge(context.Background(), time.Now().Add(-maxAge))
		if err != nil {
			logger.Error("purging sessions", err)
			continue
		}
		if n > 0 {
			logger.Info(fmt.Sprintf("purged %d session items", n))
		}
	}
}
