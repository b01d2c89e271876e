/*
scheduler.go - Automated interest-posting scheduler

PURPOSE:
  Periodically sweeps all accounts and posts interest for any posting
  periods that have ended. Posting is idempotent: an account whose
  boundary is already current produces no new transactions and no
  journal entries, so re-running the sweep is safe.

DESIGN:
  - Background goroutine with a configurable check interval
  - Fan-out across accounts with a bounded errgroup; per-account
    failures are logged and do not stop the sweep
  - The orchestrator's per-account locking serializes the sweep with
    concurrent API traffic

USAGE:
  scheduler := NewPostingScheduler(svc, repo)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: PostInterest endpoint (manual posting)
  - savings/orchestrator.go: PostAccountInterest
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warp/savings-core/savings"
)

// PostingScheduler handles automated interest posting.
type PostingScheduler struct {
	Service         *savings.Service
	Repo            savings.Repository
	CheckInterval   time.Duration
	Concurrency     int
	AllowBackdating bool
	Enabled         bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPostingScheduler creates a new scheduler.
func NewPostingScheduler(svc *savings.Service, repo savings.Repository) *PostingScheduler {
	return &PostingScheduler{
		Service:       svc,
		Repo:          repo,
		CheckInterval: 1 * time.Hour,
		Concurrency:   4,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ps *PostingScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ps.ticker = time.NewTicker(ps.CheckInterval)
	ps.wg.Add(1)

	go ps.run()

	log.Printf("[Scheduler] Started with check interval: %v", ps.CheckInterval)
}

// Stop stops the scheduler.
func (ps *PostingScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.ticker != nil {
		ps.ticker.Stop()
		close(ps.stop)
		ps.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ps *PostingScheduler) run() {
	defer ps.wg.Done()

	// Run immediately on start
	ps.sweep()

	for {
		select {
		case <-ps.ticker.C:
			ps.sweep()
		case <-ps.stop:
			return
		}
	}
}

func (ps *PostingScheduler) sweep() {
	// The sweep acts as a system user so it passes the auth gate even
	// when the API requires per-request credentials.
	ctx := savings.WithUser(context.Background(), "scheduler")

	ids, err := ps.Repo.ListAccounts(ctx)
	if err != nil {
		log.Printf("[Scheduler] Error listing accounts: %v", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	log.Printf("[Scheduler] Posting interest for %d accounts", len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ps.Concurrency)

	var mu sync.Mutex
	failed := 0
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := ps.Service.PostAccountInterest(gctx, id, ps.AllowBackdating); err != nil {
				log.Printf("[Scheduler] Error posting interest for %s: %v", id, err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
			// Per-account failures never abort the sweep.
			return nil
		})
	}
	g.Wait()

	if failed > 0 {
		log.Printf("[Scheduler] Completed with %d failures", failed)
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (ps *PostingScheduler) RunNow() {
	ps.sweep()
}
