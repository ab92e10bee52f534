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

	"callbridge/internal/account"
	"callbridge/internal/auth"
	"callbridge/internal/call"
	"callbridge/internal/config"
	"callbridge/internal/coordinator"
	"callbridge/internal/httpapi"
	"callbridge/internal/notify"
	"callbridge/internal/presence"
	"callbridge/internal/reconcile"
	"callbridge/internal/record"
	"callbridge/internal/relay"
	"callbridge/internal/sched"
	"callbridge/internal/settle"
	"callbridge/internal/ws"
	"callbridge/pkg/logger"
	"callbridge/pkg/utils"

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

	if cfg.IsProduction() {
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

	// Domain wiring, innermost first: stores, then services, then the façade.
	registry := presence.NewRegistry()
	sessions := call.NewStore(time.Now)
	accounts := account.NewService(db, rdb, cfg.Call.AvailabilityTTL)
	records := record.NewPostgres(db)
	failures := reconcile.NewService(reconcile.NewPostgresRepo(db))

	rates := settle.Rates{
		VoiceCostPerMin:      cfg.Rates.VoiceCostPerMin,
		VideoCostPerMin:      cfg.Rates.VideoCostPerMin,
		VoiceEarnPerMinCenti: cfg.Rates.VoiceEarnPerMinCenti,
		VideoEarnPerMinCenti: cfg.Rates.VideoEarnPerMinCenti,
	}
	engine := settle.NewEngine(sessions, accounts, failures, rates, log)

	coord := coordinator.New(coordinator.Config{
		Sessions:      sessions,
		Registry:      registry,
		Accounts:      accounts,
		Records:       records,
		Settler:       engine,
		Notifier:      notify.NewPresence(registry, log),
		Rates:         rates,
		StaleAfter:    cfg.Call.StaleAfter,
		TerminalGrace: cfg.Call.TerminalGrace,
		Log:           log,
	})

	scheduler := sched.New(cfg.Call.RingTimeout, cfg.Call.SweepInterval, coord.OnRingTimeout, coord.Sweep, log)
	coord.SetTimers(scheduler)
	go scheduler.Run(rootCtx)

	signals := relay.New(sessions, registry, log)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	handlers := httpapi.Handlers{
		Auth:        authManager,
		Coordinator: coord,
		Accounts:    accounts,
		Records:     records,
		Reconcile:   failures,
	}
	socket := &ws.Controller{
		Registry:    registry,
		Relay:       signals,
		Coordinator: coord,
		SendBuffer:  cfg.Call.WSSendBuffer,
		Log:         log,
	}
	registerRoutes(r, db, handlers, socket, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
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
}
