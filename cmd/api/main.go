package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"userhub.org/internal/auth"
	"userhub.org/internal/httpapi"
	"userhub.org/internal/notify"
	"userhub.org/internal/obs"
	"userhub.org/internal/store/memory"
	"userhub.org/internal/store/pg"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("USERHUB_COMMIT"))

	secret := os.Getenv("USERHUB_AUTH_SECRET")
	if secret == "" {
		log.Fatal("USERHUB_AUTH_SECRET is required")
	}

	// Without a DSN the service runs on the in-memory store. Development
	// only: state is gone on restart.
	var (
		store   auth.Store
		pgStore *pg.Store
	)
	if dsn := os.Getenv("USERHUB_PG_DSN"); dsn != "" {
		var err error
		pgStore, err = pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pgStore
	} else {
		log.Print("USERHUB_PG_DSN not set, using in-memory store")
		store = memory.New()
	}

	opts := []auth.ServiceOption{
		auth.WithSigningSecret([]byte(secret)),
		auth.WithIssuer(os.Getenv("USERHUB_ISSUER")),
		auth.WithMailer(notify.LogMailer{}),
	}
	if ttl := envDuration("USERHUB_ACCESS_TTL"); ttl > 0 {
		opts = append(opts, auth.WithAccessTTL(ttl))
	}
	if ttl := envDuration("USERHUB_REFRESH_TTL"); ttl > 0 {
		opts = append(opts, auth.WithRefreshTTL(ttl))
	}
	if addr := os.Getenv("USERHUB_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		opts = append(opts, auth.WithRevocationStore(
			auth.NewRedisRevocations(client, "userhub:revoked", time.Now)))
	}

	svc, err := auth.NewService(store, opts...)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()
	if err := svc.LoadHierarchies(startCtx); err != nil {
		log.Fatalf("load hierarchies: %v", err)
	}
	if err := svc.EnsureBuiltins(startCtx); err != nil {
		log.Fatalf("ensure builtin permissions: %v", err)
	}

	probe := httpapi.ReadyProbe{}
	if pgStore != nil {
		probe.DB = pgStore.DB()
	}
	api := httpapi.New(svc, probe, version)

	addr := os.Getenv("USERHUB_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting userhub-api %s on %s", version, srv.Addr)

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
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}

func envDuration(name string) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("%s: %v", name, err)
	}
	return d
}
