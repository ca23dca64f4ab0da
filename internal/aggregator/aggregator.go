package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ObiAU/hfentityengine/internal/cache"
	"github.com/ObiAU/hfentityengine/internal/config"
	"github.com/ObiAU/hfentityengine/internal/enrichment"
	"github.com/ObiAU/hfentityengine/internal/logger"
	"github.com/ObiAU/hfentityengine/internal/models"
	"github.com/ObiAU/hfentityengine/internal/queue"
	"github.com/ObiAU/hfentityengine/internal/store"
)

type Enricher interface {
	Enrich(ctx context.Context, post *models.Post) enrichment.Outcome
}

type PostSource interface {
	Pop(ctx context.Context, timeout time.Duration) (*models.Post, error)
	DeadLetter(ctx context.Context, post *models.Post, reason string) error
	Len(ctx context.Context) (int64, error)
}

type Bot interface {
	Start(ctx context.Context) error
	HandleWebhook(w http.ResponseWriter, r *http.Request)
}

type Deps struct {
	Enricher Enricher
	Queue    PostSource
	Ledger   *cache.Ledger
	Store    store.Store
	Bot      Bot
	Metrics  *Metrics
	Log      logger.Logger
}

// Aggregator pulls posts off the queue one at a time and enriches them.
// There is a single worker; concurrent enrichment would race on topic
// creation and on popularity updates.
type Aggregator struct {
	config   *config.Config
	enricher Enricher
	queue    PostSource
	ledger   *cache.Ledger
	store    store.Store
	bot      Bot
	metrics  *Metrics
	log      logger.Logger
	server   *http.Server
	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
}

func New(cfg *config.Config, deps Deps) *Aggregator {
	return &Aggregator{
		config:   cfg,
		enricher: deps.Enricher,
		queue:    deps.Queue,
		ledger:   deps.Ledger,
		store:    deps.Store,
		bot:      deps.Bot,
		metrics:  deps.Metrics,
		log:      deps.Log.With(logger.String("component", "aggregator")),
		stopChan: make(chan struct{}),
	}
}

func (a *Aggregator) Run(ctx context.Context) error {
	if a.queue == nil {
		return errors.New("no post queue configured")
	}

	a.mu.Lock()
	a.running = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	if a.bot != nil {
		if err := a.bot.Start(ctx); err != nil {
			return fmt.Errorf("failed to start telegram bot: %w", err)
		}
	}

	a.startHTTPServer()
	go a.processLoop(ctx)

	<-ctx.Done()
	return a.shutdown()
}

func (a *Aggregator) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopChan:
			return
		default:
		}

		post, err := a.queue.Pop(ctx, a.config.QueuePopTimeout)
		switch {
		case errors.Is(err, queue.ErrEmpty):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			a.metrics.QueueErrors.Inc()
			a.log.Error("queue read failed", logger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		a.Process(ctx, post)
	}
}

// Process enriches one post. Settled posts go into the ledger; unresolved
// ones are dead-lettered and left out so a re-submission is enriched again.
func (a *Aggregator) Process(ctx context.Context, post *models.Post) enrichment.Outcome {
	if post.ID != "" && a.ledger.Seen(post.ID) {
		a.metrics.PostsSkipped.Inc()
		entry, _ := a.ledger.Get(post.ID)
		a.log.Debug("post already handled", logger.String("post_id", post.ID), logger.String("state", entry.State))
		return enrichment.Outcome{PostID: post.ID, State: enrichment.State(entry.State)}
	}

	start := time.Now()
	out := a.enricher.Enrich(ctx, post)
	a.metrics.EnrichDuration.Observe(time.Since(start).Seconds())
	a.metrics.PostsProcessed.WithLabelValues(string(out.State)).Inc()

	if out.State == enrichment.StateUnresolved {
		// Re-submission is the only retry path, so failures stay out of the ledger.
		a.ledger.Forget(post.ID)
	} else {
		entityID := ""
		if out.Ref != nil {
			entityID = out.Ref.ID
		}
		a.ledger.Record(post.ID, entityID, string(out.State))
	}

	if out.State == enrichment.StateUnresolved && a.queue != nil {
		if err := a.queue.DeadLetter(ctx, post, out.Reason); err != nil {
			a.log.Error("dead letter write failed", logger.String("post_id", post.ID), logger.Error(err))
		} else {
			a.metrics.DeadLetters.Inc()
		}
	}
	return out
}

func (a *Aggregator) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	mux.HandleFunc("/stats", a.statsHandler)
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/webhook", a.telegramWebhookHandler)
	return mux
}

func (a *Aggregator) startHTTPServer() {
	a.server = &http.Server{
		Addr:              ":" + a.config.ServerPort,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("HTTP server error", logger.Error(err))
		}
	}()
}

func (a *Aggregator) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (a *Aggregator) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"ledger":  a.ledger.Stats(),
		"running": a.isRunning(),
	}

	if a.store != nil {
		if entities, err := a.store.Stats(r.Context()); err != nil {
			a.log.Warn("store stats failed", logger.Error(err))
		} else {
			stats["entities"] = entities
		}
	}
	if a.queue != nil {
		if depth, err := a.queue.Len(r.Context()); err != nil {
			a.log.Warn("queue length failed", logger.Error(err))
		} else {
			stats["queue_depth"] = depth
		}
	}

	writeJSON(w, http.StatusOK, stats)
}

func (a *Aggregator) telegramWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if a.bot != nil {
		a.bot.HandleWebhook(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (a *Aggregator) isRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

func (a *Aggregator) shutdown() error {
	a.log.Info("Shutting down aggregator...")

	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := a.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}

	close(a.stopChan)
	return nil
}
