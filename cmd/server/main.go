/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the savings transaction server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Open the store (SQLite by default, PostgreSQL via -pg)
  3. Wire the orchestrator, journal writer, and HTTP handler
  4. Start the interest-posting scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port           HTTP server port (default: 8080)
  -db             SQLite database path (default: savings.db,
                  ":memory:" for in-memory)
  -pg             PostgreSQL DSN; overrides -db when set
  -backdating     Allow backdated transactions (pivot-window mode)
  -auth-user      Basic auth username (auth disabled when empty)
  -auth-pass      Basic auth password

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the store

SEE ALSO:
  - api/server.go: Router configuration
  - savings/orchestrator.go: Operation sequencing
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/savings-core/api"
	"github.com/warp/savings-core/ledger"
	"github.com/warp/savings-core/savings"
	"github.com/warp/savings-core/store/postgres"
	"github.com/warp/savings-core/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "savings.db", "SQLite database path")
	pgDSN := flag.String("pg", "", "PostgreSQL DSN (overrides -db)")
	backdating := flag.Bool("backdating", true, "allow backdated transactions")
	authUser := flag.String("auth-user", "", "basic auth username (disabled when empty)")
	authPass := flag.String("auth-pass", "", "basic auth password")
	flag.Parse()

	// Open the store. Both stores implement the repository and the
	// journal store on the same database.
	var (
		repo    savings.Repository
		journal ledger.JournalStore
		closer  interface{ Close() error }
	)
	if *pgDSN != "" {
		store, err := postgres.New(*pgDSN)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		repo, journal, closer = store, store, store
	} else {
		store, err := sqlite.New(*dbPath)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		repo, journal, closer = store, store, store
	}
	defer closer.Close()

	// Wire the orchestrator
	svc := savings.NewService(repo, savings.DefaultConfig(), ledger.NewWriter(journal))
	if *authUser != "" {
		svc.Auth = savings.ContextAuth{}
	}

	handler := api.NewHandler(svc, repo, journal, *backdating)
	router := api.NewRouter(handler, api.BasicAuthConfig{Username: *authUser, Password: *authPass})

	// Interest-posting scheduler
	scheduler := api.NewPostingScheduler(svc, repo)
	scheduler.AllowBackdating = *backdating
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
