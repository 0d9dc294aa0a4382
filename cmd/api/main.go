package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backoffice.id/internal/auth"
	"backoffice.id/internal/config"
	"backoffice.id/internal/httpapi"
	"backoffice.id/internal/obs"
	"backoffice.id/internal/rbac"
	"backoffice.id/internal/session"
	"backoffice.id/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store, err := pg.Open(cfg.DatabaseURL, pg.Options{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	sessions, err := session.NewRedisStore(cfg.RedisURL, session.RedisOptions{
		PoolSize:    cfg.RedisPoolSize,
		PoolTimeout: cfg.RedisPoolTimeout(),
	})
	if err != nil {
		log.Fatalf("open session store: %v", err)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL(), cfg.RefreshTokenTTL())
	if err != nil {
		log.Fatalf("token service: %v", err)
	}
	authSvc, err := auth.NewService(tokens, sessions, store)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	rbacSvc, err := rbac.NewService(store)
	if err != nil {
		log.Fatalf("rbac service: %v", err)
	}

	api := httpapi.New(authSvc, rbacSvc, httpapi.ReadyProbe{
		DB:    store.DB(),
		Cache: sessions,
	}, cfg.PathPrefix, version)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting backoffice-id %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = sessions.Close()
	_ = store.Close()
	log.Println("Stopped")
}
