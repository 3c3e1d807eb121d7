package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kiospos/kiosk/internal/config"
	"kiospos/kiosk/internal/connectivity"
	"kiospos/kiosk/internal/gateway"
	"kiospos/kiosk/internal/httpapi"
	"kiospos/kiosk/internal/queue"
	"kiospos/kiosk/internal/service"
	"kiospos/kiosk/internal/storage"
	filekv "kiospos/kiosk/internal/storage/file"
	pgkv "kiospos/kiosk/internal/storage/postgres"
	rediskv "kiospos/kiosk/internal/storage/redis"
	"kiospos/kiosk/internal/store"
	"kiospos/kiosk/internal/syncer"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var kv storage.KV
	closers := make([]func() error, 0, 1)

	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgkv.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start", err)
		}
		kv = pg
		closers = append(closers, pg.Close)
		log.Println("storage: postgres")
	case cfg.RedisAddr != "":
		rd := rediskv.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.StoreName+":")
		if err := rd.Ping(ctx); err != nil {
			log.Fatalf("redis unavailable (%v) and REDIS_ADDR is set; refusing to start", err)
		}
		kv = rd
		closers = append(closers, rd.Close)
		log.Println("storage: redis")
	default:
		fl, err := filekv.New(cfg.DataDir)
		if err != nil {
			log.Fatalf("failed to open data dir: %v", err)
		}
		kv = fl
		log.Printf("storage: files under %s", cfg.DataDir)
	}

	timeout := time.Duration(cfg.RequestTimeoutSecs) * time.Second
	tokens := gateway.NewTokenSource(cfg.BackendURL, cfg.BackendUsername, cfg.BackendPassword, timeout)
	gw := gateway.New(cfg.BackendURL, timeout, tokens)

	optimistic := store.New(cfg.StoreName, kv)
	if err := optimistic.Hydrate(ctx); err != nil {
		log.Printf("WARN: failed to hydrate optimistic store, starting empty: %v", err)
	}
	pending := queue.New(cfg.StoreName, kv)
	if err := pending.Hydrate(ctx); err != nil {
		log.Printf("WARN: failed to hydrate pending queue, starting empty: %v", err)
	}

	interval := time.Duration(cfg.SyncIntervalSeconds) * time.Second
	monitor := connectivity.New(gw.Ping, interval, time.Duration(cfg.SettleDelaySeconds)*time.Second)
	engine := syncer.New(optimistic, pending, gw, monitor,
		interval, time.Duration(cfg.RetentionHours)*time.Hour)
	svc := service.New(optimistic, pending, gw, monitor, engine)
	api := httpapi.New(svc, cfg.ManagerPIN)

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go monitor.Run(runCtx)
	go engine.Run(runCtx)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("kiosk listening on %s (backend %s, pending %d)", cfg.Address(), cfg.BackendURL, pending.UnsyncedCount(runCtx))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("kiosk stopped")
}
