/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the dispatch cash-ledger server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize the store (SQLite file or in-memory)
  3. Pick the lock backend (in-process mutex, or Redis if configured)
  4. Build the engine and API handler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080, env PORT)
  -db      SQLite database path (default: ledger.db, env DATABASE_PATH)
           Use "memory" for the non-persistent in-memory store
  -redis   Redis address for cross-process worker locks (env REDIS_ADDR)
           Empty means in-process locking only

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/ledger.db"

  # Run with in-memory store
  ./server -db=memory

  # Run two replicas behind Redis locks
  ./server -port=3000 -redis=localhost:6379

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/warp/dispatch-ledger/api"
	"github.com/warp/dispatch-ledger/ledger"
	"github.com/warp/dispatch-ledger/ledger/lock"
	memstore "github.com/warp/dispatch-ledger/ledger/store"
	"github.com/warp/dispatch-ledger/store/sqlite"
)

func main() {
	// .env is optional; flags and real env vars win.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DATABASE_PATH", "ledger.db"), `SQLite database path ("memory" for in-memory store)`)
	redisAddr := flag.String("redis", envStr("REDIS_ADDR", ""), "Redis address for cross-process locks (empty = in-process)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(envStr("LOG_LEVEL", "info")); err == nil {
		log.SetLevel(lvl)
	}

	// Store
	var (
		store  ledger.TxStore
		closer func() error
	)
	if *dbPath == "memory" {
		store = memstore.NewMemory()
		log.Info("using in-memory store (data is not persisted)")
	} else {
		sqlStore, err := sqlite.New(*dbPath)
		if err != nil {
			log.WithError(err).Fatal("failed to initialize database")
		}
		store = sqlStore
		closer = sqlStore.Close
		log.WithField("path", *dbPath).Info("using sqlite store")
	}
	if closer != nil {
		defer closer()
	}

	// Lock backend
	opts := []ledger.Option{ledger.WithLogger(log)}
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.WithError(err).Fatal("failed to connect to redis")
		}
		opts = append(opts, ledger.WithLocker(lock.NewRedisLock(rdb, 30*time.Second)))
		log.WithField("addr", *redisAddr).Info("using redis worker locks")
	}

	engine := ledger.NewEngine(store, opts...)
	handler := api.NewHandler(engine)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("server starting on http://localhost:%d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	log.Info("server stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}
