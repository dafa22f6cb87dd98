// Package app wires the analytics store, its HTTP and gRPC surfaces and the
// scheduled jobs into one process.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	grpcapi "github.com/arkilian/analytica/internal/api/grpc"
	httpapi "github.com/arkilian/analytica/internal/api/http"
	"github.com/arkilian/analytica/internal/analytics"
	"github.com/arkilian/analytica/internal/config"
	"github.com/arkilian/analytica/internal/observability"
	"github.com/arkilian/analytica/internal/query"
	"github.com/arkilian/analytica/internal/report"
	"github.com/arkilian/analytica/internal/retention"
	"github.com/arkilian/analytica/internal/server"
	"github.com/arkilian/analytica/internal/storage"
	"github.com/arkilian/analytica/internal/store"
	"github.com/arkilian/analytica/internal/transfer"
	"github.com/arkilian/analytica/pkg/types"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const (
	healthInterval     = 5 * time.Second
	queryStatsWindow   = 24 * time.Hour
	queryStatsSchedule = "@hourly"
)

// App owns every long-lived component of the daemon.
type App struct {
	cfg    *config.Config
	logger logrus.FieldLogger

	registry   *prometheus.Registry
	metrics    *observability.Metrics
	queryStats *observability.QueryStats

	opener  *store.Opener
	sink    storage.ObjectStorage
	service *analytics.Service

	health   *grpcapi.HealthServer
	router   *mux.Router
	shutdown *server.ShutdownManager
	cron     *cron.Cron
}

// New validates cfg and builds the component graph. Nothing listens and the
// database is not opened until Run.
func New(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	a := &App{
		cfg:        cfg,
		logger:     logger.WithField("component", "app"),
		registry:   prometheus.NewRegistry(),
		queryStats: observability.NewQueryStats(queryStatsWindow),
	}
	a.metrics = observability.NewMetrics(a.registry)

	sink, err := storage.Open(ctx, storage.Config{
		Type:   cfg.Storage.Type,
		Path:   cfg.Storage.Path,
		Bucket: cfg.Storage.S3.Bucket,
		S3: storage.S3Config{
			Region:       cfg.Storage.S3.Region,
			Endpoint:     cfg.Storage.S3.Endpoint,
			UsePathStyle: cfg.Storage.S3.UsePathStyle,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open export storage: %w", err)
	}
	a.sink = sink

	a.opener = store.NewOpener(cfg.Store.Path, store.Options{
		BusyTimeout:  cfg.Store.BusyTimeout,
		ReadPoolSize: cfg.Store.ReadPoolSize,
		Logger:       logger,
	})

	ids := types.NewULIDGenerator()
	engine := query.NewEngine(query.NewPlanner(a.queryStats), query.EngineConfig{
		DefaultLimit: cfg.Query.DefaultLimit,
		Metrics:      a.metrics,
		Logger:       logger,
	})
	evictor := retention.NewEvictor(cfg.Retention.MaxRecords, a.metrics, logger)

	a.service = analytics.New(analytics.Deps{
		Opener: a.opener,
		Engine: engine,
		Materializer: report.NewMaterializer(engine, report.Config{
			CacheSize: cfg.Reports.CacheSize,
			CacheTTL:  cfg.Reports.CacheTTL,
			IDs:       ids,
			Metrics:   a.metrics,
			Logger:    logger,
		}),
		Evictor: evictor,
		Transfer: transfer.New(engine, evictor, transfer.Config{
			Sink:    sink,
			Prefix:  cfg.Export.Prefix,
			Metrics: a.metrics,
			Logger:  logger,
		}),
		IDs:          ids,
		StatsCeiling: cfg.Query.StatsCeiling,
		Metrics:      a.metrics,
		Logger:       logger,
	})

	a.health = grpcapi.NewHealthServer(a.service, logger)
	a.shutdown = server.NewShutdownManager(server.ShutdownConfig{Logger: logger})
	a.router = a.buildRouter(logger)
	return a, nil
}

func (a *App) buildRouter(logger logrus.FieldLogger) *mux.Router {
	router := mux.NewRouter()
	router.Use(
		a.shutdown.Middleware,
		observability.HTTPMetricsMiddleware(a.metrics, httpapi.RouteName),
		httpapi.DefaultMiddleware(logger),
	)
	httpapi.NewHandlers(a.service).RegisterRoutes(router)
	router.Handle("/metrics", observability.Handler(a.registry)).Methods("GET")
	router.HandleFunc("/v1/query-stats", a.queryStatsHandler).Methods("GET")
	return router
}

// Service returns the analytics facade.
func (a *App) Service() *analytics.Service { return a.service }

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler { return a.router }

// Run opens the store, starts the servers and scheduled jobs, and blocks
// until ctx is cancelled or a server fails. It then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	if err := a.service.Ready(ctx); err != nil {
		a.logger.WithError(err).Warn("app: store unavailable at startup")
	}
	a.shutdown.RegisterCloser("store", server.CloserFunc(a.service.Close))

	httpSrv := &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      a.router,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	if err := a.startCron(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.WithField("addr", httpSrv.Addr).Info("app: http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	a.shutdown.RegisterCloser("http", server.HTTPCloser(httpSrv, 10*time.Second))

	if a.cfg.GRPC.Enabled {
		lis, err := net.Listen("tcp", a.cfg.GRPC.Addr)
		if err != nil {
			a.shutdown.Shutdown(context.Background(), "grpc listen failed")
			return fmt.Errorf("failed to listen on %s: %w", a.cfg.GRPC.Addr, err)
		}
		grpcSrv := grpc.NewServer()
		a.health.Register(grpcSrv)

		g.Go(func() error {
			a.logger.WithField("addr", a.cfg.GRPC.Addr).Info("app: grpc server listening")
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
		a.shutdown.RegisterCloser("grpc", server.CloserFunc(func() error {
			a.health.Shutdown()
			grpcSrv.GracefulStop()
			return nil
		}))
		g.Go(func() error {
			a.health.Watch(gctx, healthInterval)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown.Shutdown(context.Background(), "context done")
	})

	return g.Wait()
}

func (a *App) startCron() error {
	a.cron = cron.New()
	if _, err := a.cron.AddFunc(queryStatsSchedule, a.queryStats.Prune); err != nil {
		return fmt.Errorf("failed to schedule query stats pruning: %w", err)
	}
	if a.cfg.Export.Schedule != "" {
		if _, err := a.cron.AddFunc(a.cfg.Export.Schedule, func() {
			if err := a.RunExport(context.Background()); err != nil {
				a.logger.WithError(err).Warn("app: scheduled export failed")
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule export: %w", err)
		}
		a.logger.WithField("schedule", a.cfg.Export.Schedule).Info("app: scheduled exports enabled")
	}
	a.cron.Start()
	a.shutdown.RegisterCloser("cron", server.CloserFunc(func() error {
		<-a.cron.Stop().Done()
		return nil
	}))
	return nil
}

// RunExport writes one snapshot of every retained event, then prunes old
// snapshots down to the configured keep count.
func (a *App) RunExport(ctx context.Context) error {
	q := types.Query{}.WithLimit(a.cfg.Retention.MaxRecords, 0)
	object, err := a.service.ExportTo(ctx, q, "")
	if err != nil {
		return err
	}
	pruned, err := a.service.PruneSnapshots(ctx, a.cfg.Export.Keep)
	if err != nil {
		return fmt.Errorf("snapshot %s written but pruning failed: %w", object, err)
	}
	a.logger.WithFields(logrus.Fields{"object": object, "pruned": pruned}).Info("app: export snapshot complete")
	return nil
}

// queryStatsHandler handles GET /v1/query-stats
func (a *App) queryStatsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"indexes": a.queryStats.TopIndexes(10),
		"filters": a.queryStats.TopFilterPaths(10),
	})
}
