package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ngoyal88/auditrelay/pkg/api"
	"github.com/ngoyal88/auditrelay/pkg/cache"
	"github.com/ngoyal88/auditrelay/pkg/config"
	"github.com/ngoyal88/auditrelay/pkg/middleware"
	"github.com/ngoyal88/auditrelay/pkg/proxy"
	"github.com/ngoyal88/auditrelay/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// 1. Environment from .env, then config with hot reload
	if err := config.LoadEnvFile(config.EnvFile); err != nil {
		log.Fatalf("Failed to read %s: %v", config.EnvFile, err)
	}
	cfgStore, err := config.LoadAndWatch()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := cfgStore.Get()
	if cfg.Auth.Token == "" {
		log.Println("⚠️  PROXY_TOKEN is empty: every authenticated route will answer 401")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Log store backend
	kv, rdb, err := cache.Open(cfg)
	if err != nil {
		log.Fatalf("Could not open %s store: %v", cfg.Storage.Backend, err)
	}
	defer kv.Close()
	store := storage.NewLogStore(kv, cfg.Listing.MaxLimit)
	fmt.Printf("✅ Log store ready (backend: %s)\n", cfg.Storage.Backend)

	// 3. Retention pruning
	retention := time.Duration(cfg.Storage.RetentionDays) * 24 * time.Hour
	scheduler := storage.NewScheduler(store, cfg.Storage.PruneSchedule, retention)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start retention scheduler: %v", err)
	}
	if next := scheduler.NextRun(); next != nil {
		fmt.Printf("✅ Retention: %d days (schedule %q, next prune %s)\n",
			cfg.Storage.RetentionDays, cfg.Storage.PruneSchedule, next.Format(time.RFC3339))
	}

	// 4. Live tail
	hub := api.NewHub()
	go hub.Run(ctx)
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "auditrelay_live_tail_clients",
		Help: "Websocket clients subscribed to the live tail",
	}, func() float64 { return float64(hub.Clients()) })

	// 5. Gateway
	var transport http.RoundTripper = http.DefaultTransport
	if cfg.Breaker.Enabled {
		transport = proxy.NewBreakerTransport(transport, cfg.Breaker)
		fmt.Printf("✅ Circuit breaker: open after %d failures for %ds\n",
			cfg.Breaker.ConsecutiveFailures, cfg.Breaker.OpenSeconds)
	}
	gateway := proxy.New(cfgStore, store, proxy.Options{
		Transport: transport,
		OnRecord:  hub.Publish,
	})
	fmt.Printf("✅ Proxy started targeting: %s\n", cfg.Proxy.Target)

	// 6. Proxied traffic: auth, then rate limiting, then the gateway
	var handler http.Handler = gateway
	handler = middleware.NewRateLimiter(rdb, cfgStore)(handler)
	if cfg.RateLimit.Enabled {
		fmt.Printf("✅ Rate limiting: %.1f req/s (burst: %d)\n", cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	handler = middleware.RequireToken(cfgStore)(handler)

	// 7. Routes
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	api.New(cfgStore, store, hub).RegisterRoutes(mux)
	mux.Handle("/", api.Root(handler))

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           middleware.RequestLogger(middleware.Preflight(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Println("\n🚀 Relay Features Active:")
	fmt.Println("   - Metrics:         http://localhost" + cfg.Server.Port + "/metrics")
	fmt.Println("   - Health Check:    http://localhost" + cfg.Server.Port + "/health")
	fmt.Println("   - Logs:            http://localhost" + cfg.Server.Port + "/api/logs")
	fmt.Println("   - Live Tail:       ws://localhost" + cfg.Server.Port + "/api/logs/stream")
	fmt.Println("\n📊 Configuration can be hot-reloaded by editing configs/config.yaml")
	fmt.Printf("\n🎯 Server listening on %s\n", cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed:", err)
		}
	case <-ctx.Done():
	}

	fmt.Println("\n🛑 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown: %v", err)
	}
	// Let records of finished requests reach the store before it closes.
	gateway.Wait()
	scheduler.Stop()
}
