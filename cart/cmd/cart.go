package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/Alturino/storefront/cart/internal/broadcast"
	"github.com/Alturino/storefront/cart/internal/catalog"
	"github.com/Alturino/storefront/cart/internal/controller"
	cartOtel "github.com/Alturino/storefront/cart/internal/otel"
	"github.com/Alturino/storefront/cart/internal/persistence"
	"github.com/Alturino/storefront/cart/internal/session"
	"github.com/Alturino/storefront/cart/internal/store"
	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/constants"
	"github.com/Alturino/storefront/internal/infra"
	"github.com/Alturino/storefront/internal/middleware"
	"github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/internal/repository"
)

func newCatalog(c context.Context, cfg config.Cart, queries *repository.Queries) (catalog.Catalog, error) {
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "main newCatalog").
		Str("source", cfg.CatalogSource).
		Logger()

	switch cfg.CatalogSource {
	case "postgres":
		logger.Info().Msg("using postgres catalog")
		return catalog.NewPostgres(queries), nil
	case "http":
		if cfg.CatalogURL == "" {
			return nil, errors.New("cart.catalog_url is required for the http catalog")
		}
		logger.Info().Str("url", cfg.CatalogURL).Msg("using http catalog")
		return catalog.NewHTTP(cfg.CatalogURL, nil), nil
	default:
		return nil, fmt.Errorf("unknown cart.catalog_source=%s", cfg.CatalogSource)
	}
}

func RunCartService(c context.Context, cfg *config.Config) {
	c, span := cartOtel.Tracer.Start(c, "RunCartService")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_APP_NAME, constants.APP_CART_SERVICE).
		Str(constants.KEY_TAG, "main RunCartService").
		Logger()

	logger = logger.With().Str(constants.KEY_PROCESS, "initializing otel sdk").Logger()
	logger.Info().Msg("initializing otel sdk")
	c = logger.WithContext(c)
	otelShutdowns, err := otel.InitOtelSdk(c, constants.APP_CART_SERVICE, cfg.Otel)
	if err != nil {
		err = fmt.Errorf("failed initializing otel sdk with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	defer func() {
		logger.Info().Msg("shutting down otel")
		if err := otel.ShutdownOtel(context.WithoutCancel(c), otelShutdowns); err != nil {
			err = fmt.Errorf("failed shutting down otel with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
			return
		}
		logger.Info().Msg("shutdown otel")
	}()
	logger.Info().Msg("initialized otel sdk")

	logger = logger.With().Str(constants.KEY_PROCESS, "initializing database").Logger()
	logger.Info().Msg("initializing database")
	c = logger.WithContext(c)
	db := infra.NewDatabaseClient(c, cfg.Database)
	defer func() {
		logger.Info().Msg("shutting down database")
		db.Close()
		logger.Info().Msg("shutdown database")
	}()
	logger.Info().Msg("initialized database")

	logger = logger.With().Str(constants.KEY_PROCESS, "migrating database").Logger()
	logger.Info().Msg("migrating database")
	if err := infra.Migrate(logger.WithContext(c), db, cfg.Database); err != nil {
		err = fmt.Errorf("failed migrating database with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	logger.Info().Msg("migrated database")

	logger = logger.With().Str(constants.KEY_PROCESS, "initializing cache").Logger()
	logger.Info().Msg("initializing cache")
	c = logger.WithContext(c)
	cache := infra.NewCacheClient(c, constants.APP_CART_SERVICE, cfg.Cache)
	defer func() {
		logger.Info().Msg("shutting down cache")
		if err := cache.Close(); err != nil {
			err = fmt.Errorf("failed shutting down cache with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
			return
		}
		logger.Info().Msg("shutdown cache")
	}()
	logger.Info().Msg("initialized cache")

	logger = logger.With().Str(constants.KEY_PROCESS, "initializing catalog").Logger()
	logger.Info().Msg("initializing catalog")
	queries := repository.New(db)
	source, err := newCatalog(logger.WithContext(c), cfg.Cart, queries)
	if err != nil {
		err = fmt.Errorf("failed initializing catalog with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	cat := catalog.NewCached(source, cache, cfg.Cart.CatalogCacheTTL)
	logger.Info().Msg("initialized catalog")

	logger = logger.With().Str(constants.KEY_PROCESS, "initializing persistence").Logger()
	logger.Info().Msg("initializing persistence")
	router := persistence.NewRouter(
		persistence.NewEphemeral(persistence.NewRedisStorage(cache, cfg.Cart.EphemeralTTL)),
		persistence.NewCached(persistence.NewDurable(db, queries), cache, cfg.Cart.DurableCacheTTL),
	)
	logger.Info().Msg("initialized persistence")

	logger = logger.With().Str(constants.KEY_PROCESS, "initializing sessions").Logger()
	logger.Info().Msg("initializing sessions")
	deps := session.Deps{
		Persistence:  router,
		Catalog:      cat,
		StoreOptions: []store.Option{store.WithPersistTimeout(cfg.Cart.PersistTimeout)},
	}
	if cfg.Cart.BroadcastEnabled {
		deps.Publisher = broadcast.NewRedis(cache)
	}
	registry := session.NewRegistry(deps, cfg.Cart.SessionIdleTimeout)
	logger.Info().Msg("initialized sessions")

	workers := &sync.WaitGroup{}
	workerCtx, stopWorkers := context.WithCancel(c)
	defer func() {
		stopWorkers()
		workers.Wait()
	}()

	logger = logger.With().Str(constants.KEY_PROCESS, "starting workers").Logger()
	logger.Info().Msg("starting workers")
	workers.Add(1)
	go registry.StartEvictor(workerCtx, workers)
	if cfg.Cart.BroadcastEnabled {
		workers.Add(1)
		go broadcast.NewRelay(cache, registry).Start(workerCtx, workers)
	}
	logger.Info().Msg("started workers")

	logger = logger.With().Str(constants.KEY_PROCESS, "initializing router").Logger()
	logger.Info().Msg("initializing router")
	mux := mux.NewRouter()
	mux.Use(otelmux.Middleware(constants.APP_CART_SERVICE), middleware.Logging, middleware.RecoverPanic)
	mux.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	controller.AttachCartController(mux, registry, cat, cfg.Application.SecretKey)
	logger.Info().Msg("initialized router")

	logger = logger.With().Str(constants.KEY_PROCESS, "initializing server").Logger()
	logger.Info().Msg("initializing server")
	httpServer := http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Application.Host, cfg.Application.Port),
		BaseContext:  func(net.Listener) context.Context { return c },
		Handler:      mux,
		ReadTimeout:  45 * time.Second,
		WriteTimeout: 45 * time.Second,
	}
	logger.Info().Msg("initialized server")

	go func() {
		logger := logger.With().Str(constants.KEY_PROCESS, "start server").Logger()
		logger.Info().Msgf("start listening request at %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			err = fmt.Errorf("error=%w occured while server is running", err)
			logger.Error().Err(err).Msg(err.Error())
			return
		}
		logger.Info().Msg("shutdown server")
	}()

	<-c.Done()
	logger = logger.With().Str(constants.KEY_PROCESS, "shutdown server").Logger()
	logger.Info().Msg("received interuption signal shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(c), 30*time.Second)
	defer cancel()

	logger.Info().Msg("shutting down http server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		err = fmt.Errorf("failed shutting down http server with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
	}
	logger.Info().Msg("shutdown http server")

	logger.Info().Msg("closing sessions")
	if err := registry.Close(logger.WithContext(shutdownCtx)); err != nil {
		err = fmt.Errorf("failed closing sessions with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	logger.Info().Msg("closed sessions")
}

// RunMigration applies pending migrations and exits.
func RunMigration(c context.Context, cfg *config.Config) {
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_APP_NAME, constants.APP_CART_MIGRATION).
		Str(constants.KEY_TAG, "main RunMigration").
		Str(constants.KEY_PROCESS, "migrating database").
		Logger()

	c = logger.WithContext(c)
	db := infra.NewDatabaseClient(c, cfg.Database)
	defer db.Close()

	logger.Info().Msg("migrating database")
	if err := infra.Migrate(c, db, cfg.Database); err != nil {
		err = fmt.Errorf("failed migrating database with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	logger.Info().Msg("migrated database")
}
