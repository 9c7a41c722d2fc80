package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veil/chat-app/internal/admin"
	"github.com/veil/chat-app/internal/delivery"
	"github.com/veil/chat-app/internal/engine"
	"github.com/veil/chat-app/internal/ledger"
	"github.com/veil/chat-app/internal/messaging"
	"github.com/veil/chat-app/internal/ratelimit"
	"github.com/veil/chat-app/internal/referral"
	"github.com/veil/chat-app/internal/report"
	"github.com/veil/chat-app/internal/user"
	"github.com/veil/chat-app/internal/ws"

	_ "github.com/lib/pq"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}
	if v := os.Getenv("IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.IdleTimeout = d
		}
	}

	var searchTimeout time.Duration
	if v := os.Getenv("SEARCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			searchTimeout = d
		}
	}

	// --- Redis ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		log.Fatalf("failed to connect to Redis at %s: %v", redisAddr, err)
	}
	pingCancel()

	store := ledger.NewStore(rdb)
	referrals := referral.NewLedger(rdb)
	limiter := ratelimit.New(rdb)

	// --- NATS (optional; single-instance deployments deliver directly) ---
	var bus *messaging.Bus
	natsURL := os.Getenv("NATS_URL")
	if natsURL != "" {
		natsConfig := messaging.DefaultConfig()
		natsConfig.URL = natsURL
		var err error
		bus, err = messaging.Connect(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
	}

	// --- Postgres report store (optional) ---
	var reports engine.ReportSink
	postgresDSN := os.Getenv("POSTGRES_DSN")
	if postgresDSN != "" {
		if err := report.Migrate(postgresDSN); err != nil {
			log.Fatalf("report store migration failed: %v", err)
		}
		db, err := sql.Open("postgres", postgresDSN)
		if err != nil {
			log.Fatalf("failed to open Postgres: %v", err)
		}
		if err := db.PingContext(context.Background()); err != nil {
			log.Fatalf("failed to reach Postgres: %v", err)
		}
		reports = report.NewStore(db)
	}

	admins := admin.NewRegistry(os.Getenv("ADMIN_PASSWORD"))

	log.Printf("veil chat server starting")
	log.Printf("  listen_addr:     %s", config.ListenAddr)
	log.Printf("  max_connections: %d", config.MaxConnections)
	log.Printf("  redis_addr:      %s", redisAddr)
	log.Printf("  nats:            %v", natsURL != "")
	log.Printf("  report_store:    %v", postgresDSN != "")

	// The engine and server reference each other when payloads are
	// written straight to local sockets, so the server variable is
	// declared first and captured by the deliverer closure.
	var server *ws.Server

	var deliverer delivery.Deliverer
	if bus != nil {
		deliverer = messaging.NewInboxDeliverer(bus)
	} else {
		deliverer = delivery.DelivererFunc(func(ctx context.Context, to user.ID, p delivery.Payload) error {
			return server.DirectDeliverer().Deliver(ctx, to, p)
		})
	}

	eng := engine.New(engine.Config{
		Deliverer:     deliverer,
		Directory:     store,
		Admins:        admins,
		Counters:      store,
		Reports:       reports,
		Referrals:     referrals,
		Flags:         store,
		SearchTimeout: searchTimeout,
	})

	dispatcher := ws.NewDispatcher(eng, admins, limiter, store)
	server = ws.NewServer(config, bus, dispatcher.Dispatch)
	server.SetOnDisconnect(dispatcher.OnDisconnect)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if bus != nil {
			bus.Close()
		}
		if err := rdb.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
