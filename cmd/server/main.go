// Command server runs the risk graph API: graph CRUD, risk scoring,
// the score ledger, and cascade simulation behind one HTTP surface.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	graphhandler "riskgraph/internal/graph/handler"
	graphmetrics "riskgraph/internal/graph/metrics"
	graphports "riskgraph/internal/graph/ports"
	"riskgraph/internal/graph/registry"
	graphservice "riskgraph/internal/graph/service"
	graphmemory "riskgraph/internal/graph/store/memory"
	graphpostgres "riskgraph/internal/graph/store/postgres"
	ledgerports "riskgraph/internal/ledger/ports"
	ledgerservice "riskgraph/internal/ledger/service"
	ledgermemory "riskgraph/internal/ledger/store/memory"
	ledgerpostgres "riskgraph/internal/ledger/store/postgres"
	"riskgraph/internal/platform/config"
	"riskgraph/internal/platform/httpserver"
	"riskgraph/internal/platform/logger"
	platformmetrics "riskgraph/internal/platform/metrics"
	"riskgraph/internal/platform/middleware"
	platformredis "riskgraph/internal/platform/redis"
	"riskgraph/internal/recalc"
	"riskgraph/internal/scoring"
	"riskgraph/internal/scoring/cache"
	scoringhandler "riskgraph/internal/scoring/handler"
	scoringmetrics "riskgraph/internal/scoring/metrics"
	"riskgraph/internal/simulation"
	simhandler "riskgraph/internal/simulation/handler"
	simmetrics "riskgraph/internal/simulation/metrics"
	simservice "riskgraph/internal/simulation/service"
	simmemory "riskgraph/internal/simulation/store/memory"
	httptransport "riskgraph/internal/transport/http"
	"riskgraph/pkg/platform/audit/kafka"
	"riskgraph/pkg/platform/audit/publisher"
	auditmemory "riskgraph/pkg/platform/audit/store/memory"
	"riskgraph/pkg/platform/audit/worker"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := platformmetrics.New()
	graphMetrics := graphmetrics.New()
	scoreMetrics := scoringmetrics.New()
	recalcMetrics := recalc.NewMetrics()
	simMetrics := simmetrics.New()

	// Audit pipeline: buffered publisher drained into Kafka when brokers are
	// configured, an in-memory sink otherwise.
	var sink publisher.Sink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := kafka.New(ctx, cfg.KafkaBrokers, cfg.AuditTopic, int32(cfg.AuditPartitions))
		if err != nil {
			log.Error("kafka audit sink init failed", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
		log.Info("audit sink: kafka", "topic", cfg.AuditTopic)
	} else {
		sink = auditmemory.New()
		log.Info("audit sink: memory")
	}
	auditPub := publisher.NewBuffered(cfg.AuditQueueDepth, log, nil)
	go func() {
		if err := worker.New(sink, auditPub.Inbox(), log).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit worker stopped", "error", err)
		}
	}()

	// Stores: postgres when configured, in-memory otherwise.
	var graphStore graphports.Store
	var ledgerStore ledgerports.Store
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Error("postgres pool init failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		gs := graphpostgres.New(pool)
		if err := gs.Migrate(ctx); err != nil {
			log.Error("graph migration failed", "error", err)
			os.Exit(1)
		}
		graphStore = gs

		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			log.Error("postgres open failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		ls := ledgerpostgres.New(db)
		if err := ls.Migrate(ctx); err != nil {
			log.Error("ledger migration failed", "error", err)
			os.Exit(1)
		}
		ledgerStore = ls
		log.Info("stores: postgres")
	} else {
		graphStore = graphmemory.New()
		ledgerStore = ledgermemory.New()
		log.Info("stores: memory")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	var scoreCache cache.Cache
	if redisClient != nil {
		defer redisClient.Close()
		scoreCache = cache.NewRedis(redisClient.Client)
		log.Info("score cache: redis")
	} else {
		scoreCache = cache.NewMemory()
		log.Info("score cache: memory")
	}

	reg, err := registry.New()
	if err != nil {
		log.Error("constraint registry init failed", "error", err)
		os.Exit(1)
	}

	jurisdictions := scoring.NewJurisdictionTable(nil)
	if cfg.JurisdictionTablePath != "" {
		f, err := os.Open(cfg.JurisdictionTablePath)
		if err != nil {
			log.Error("jurisdiction table open failed", "path", cfg.JurisdictionTablePath, "error", err)
			os.Exit(1)
		}
		jurisdictions, err = scoring.LoadJurisdictionTable(f)
		f.Close()
		if err != nil {
			log.Error("jurisdiction table load failed", "path", cfg.JurisdictionTablePath, "error", err)
			os.Exit(1)
		}
	}

	engine := scoring.NewEngine(jurisdictions, reg)
	configs := scoring.NewConfigStore()

	graphSvc := graphservice.New(graphStore, reg, scoreCache, auditPub, log, graphMetrics)
	ledgerSvc := ledgerservice.New(ledgerStore, auditPub, log, scoreMetrics)
	coordinator := recalc.New(graphStore, engine, configs, scoreCache, ledgerSvc, auditPub, log,
		recalcMetrics, cfg.RecalcWorkers, cfg.RecalcTimeout)
	simSvc := simservice.New(simmemory.New(), graphStore, simulation.NewEngine(engine), configs,
		auditPub, log, simMetrics)

	var rateLimit func(http.Handler) http.Handler
	if cfg.RateLimitPerWindow > 0 {
		var limitStore middleware.LimitStore
		if redisClient != nil {
			limitStore = middleware.NewRedisLimitStore(redisClient.Client)
		} else {
			limitStore = middleware.NewMemoryLimitStore()
		}
		rateLimit = middleware.RateLimit(limitStore, log, cfg.RateLimitPerWindow, cfg.RateLimitWindow)
	}

	router := httptransport.NewRouter(httptransport.Handlers{
		Graph:      graphhandler.New(graphSvc, log),
		Risks:      scoringhandler.New(ledgerSvc, coordinator, scoreCache, log, scoreMetrics),
		Simulation: simhandler.New(simSvc, log),
	}, log, httpMetrics, rateLimit)

	srv := httpserver.New(cfg.Addr, router)
	go func() {
		log.Info("riskgraph listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
