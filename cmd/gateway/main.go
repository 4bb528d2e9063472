package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/krantiutils/ring-ai-sub000/internal/aisession"
	"github.com/krantiutils/ring-ai-sub000/internal/auth"
	"github.com/krantiutils/ring-ai-sub000/internal/calls"
	"github.com/krantiutils/ring-ai-sub000/internal/config"
	"github.com/krantiutils/ring-ai-sub000/internal/contacts"
	"github.com/krantiutils/ring-ai-sub000/internal/credits"
	"github.com/krantiutils/ring-ai-sub000/internal/interactions"
	"github.com/krantiutils/ring-ai-sub000/internal/knowledge"
	"github.com/krantiutils/ring-ai-sub000/internal/routing"
	"github.com/krantiutils/ring-ai-sub000/internal/tools"
	"github.com/krantiutils/ring-ai-sub000/pkg/logger"
	"github.com/krantiutils/ring-ai-sub000/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Persistence collaborators.
	contactRepo := contacts.NewPostgresRepo(db)
	interactionSvc := interactions.NewService(interactions.NewPostgresRepo(db))
	creditSvc := credits.NewPostgresService(db)
	retriever := knowledge.NewRetriever(db, rdb, log)

	router := routing.NewRouter(
		routing.NewPostgresPhoneRepo(db),
		routing.NewPostgresRuleRepo(db),
		contactRepo,
		log,
	).WithInteractions(interactionSvc)

	executor := tools.NewExecutor(contactRepo, creditSvc, log)

	pool := aisession.NewPool(aisession.PoolConfig{
		MaxSessions:              cfg.Bridge.MaxSessions,
		AcquireTimeout:           cfg.Bridge.AcquireTimeout,
		DefaultSystemInstruction: cfg.Bridge.DefaultSystemInstruction,
		APIKey:                   cfg.Gemini.APIKey,
		Model:                    cfg.Gemini.Model,
		Voice:                    cfg.Gemini.Voice,
	}, aisession.NewSession, log)

	manager := calls.NewManager(pool, retriever, rdb, calls.ManagerConfig{
		OrgCallCap: cfg.Bridge.OrgCallCap,
	}, log)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, deps{
		auth:     authManager,
		router:   router,
		manager:  manager,
		pool:     pool,
		executor: executor,
		db:       db,
		log:      log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		// No ReadTimeout: gateway sockets are long-lived.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("gateway bridge listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	// Close every live AI session after the sockets are gone.
	pool.TeardownAll()

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
