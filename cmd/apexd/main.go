// Command apexd wires the orchestration engine together: a swarm of
// agents behind a message broker, a DAG scheduler enforcing
// hierarchical resource contracts, a multi-tier cache, and a
// websocket push fabric for live observers. Grounded on FluxForge
// main.go's dependency wiring order and promhttp metrics exposure.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/apexorch/apex/auth"
	"github.com/apexorch/apex/broker"
	"github.com/apexorch/apex/cache"
	"github.com/apexorch/apex/config"
	"github.com/apexorch/apex/contracts"
	"github.com/apexorch/apex/orchestrator"
	"github.com/apexorch/apex/push"
	"github.com/apexorch/apex/scheduler"
	"github.com/apexorch/apex/store"
)

func main() {
	cfg := config.LoadFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Broker.RedisAddr, Password: cfg.Broker.RedisPassword, DB: cfg.Broker.RedisDB})
	redisUp := redisClient.Ping(ctx).Err() == nil
	if !redisUp {
		log.Printf("WARN: redis unavailable at %s, falling back to in-memory components", cfg.Broker.RedisAddr)
	}

	var mb broker.MessageBroker
	if redisUp {
		mb = broker.NewRedisBroker(redisClient)
		log.Printf("using redis broker at %s", cfg.Broker.RedisAddr)
	} else {
		mb = broker.NewChannelBroker()
		log.Println("using in-memory channel broker")
	}

	registry := orchestrator.NewRegistry()
	router := orchestrator.NewRoundRobinRouter(registry)
	breakers := scheduler.NewAgentCircuitBreakerRegistry(
		uint32(cfg.Scheduler.CircuitBreakerThreshold),
		uint32(cfg.Scheduler.CircuitBreakerThreshold),
		cfg.Scheduler.CircuitRecoveryTimeout,
		16,
	)
	swarm := orchestrator.NewSwarmOrchestrator(registry, router, mb, breakers, cfg.Broker.ReplyTimeout)

	pool := scheduler.NewWorkerPool(cfg.Scheduler.MaxConcurrency)
	enforcer := contracts.NewContractEnforcer(contracts.DefaultEnforcementConfig())

	rootLimits := contracts.ResourceLimits{
		MaxTokens:   10_000_000,
		MaxCostUSD:  1000.0,
		MaxAPICalls: 1_000_000,
		MaxDuration: 24 * time.Hour,
	}
	rootContract := contracts.NewAgentContract("apex-root", rootLimits, nil)

	l1 := cache.NewMemoryBackend(cfg.Cache.JanitorInterval)
	var cacheBackend cache.Backend = l1
	if redisUp {
		l2 := cache.NewRedisBackend(redisClient, "apex")
		cacheBackend = cache.NewMultiTier(l1, l2)
	}
	cacheFacade := cache.NewFacadeWithDedup(cacheBackend, cfg.Cache.MaxEntrySize)

	var archival store.Store
	if cfg.Store.PostgresDSN != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			log.Printf("WARN: postgres archival unavailable: %v", err)
		} else {
			archival = pgStore
		}
	}
	if archival == nil {
		redisStore, err := store.NewRedisStore(ctx, cfg.Store.RedisAddr, "", 0)
		if err != nil {
			log.Fatalf("no archival backend available (postgres and redis both failed): %v", err)
		}
		archival = redisStore
	}

	conns := push.NewConnectionRegistry()
	rooms := push.NewRoomManager()
	var sessions *push.SessionManager
	if redisUp {
		sessions = push.NewSessionManager(redisClient)
	}
	bc := push.NewBroadcaster(conns, rooms, sessions)
	authenticator := push.NewBearerAuthenticator(func(token string) (string, error) {
		claims, err := auth.ValidateToken(token)
		if err != nil {
			return "", err
		}
		return claims.AgentID, nil
	})
	hub := push.NewHub(authenticator, conns, rooms, sessions, bc)

	runtime := &dagRuntime{
		swarm:    swarm,
		pool:     pool,
		enforcer: enforcer,
		breakers: breakers,
		root:     rootContract,
		cache:    cacheFacade,
		archival: archival,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/ws", hub)
	mux.HandleFunc("/dags", runtime.handleSubmitDag)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		log.Printf("apexd listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	log.Printf("apexd ready: worker pool capacity=%d, root contract=%s", pool.Stats().Capacity, rootContract.ID)

	<-ctx.Done()
	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("WARN: graceful shutdown failed: %v", err)
	}
}
