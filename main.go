package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ObiAU/hfentityengine/internal/aggregator"
	"github.com/ObiAU/hfentityengine/internal/cache"
	"github.com/ObiAU/hfentityengine/internal/config"
	"github.com/ObiAU/hfentityengine/internal/enrichment"
	"github.com/ObiAU/hfentityengine/internal/logger"
	"github.com/ObiAU/hfentityengine/internal/models"
	"github.com/ObiAU/hfentityengine/internal/queue"
	"github.com/ObiAU/hfentityengine/internal/telegram"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hfentityengine",
		Short:         "Resolve social posts to crypto projects and topics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newResolveCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume queued posts and serve health, stats and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.RedisURL == "" {
				return fmt.Errorf("REDIS_URL is required to serve")
			}

			log, err := logger.New(cfg.LogLevel, cfg.LogDevelopment)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	entities, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer entities.Close()

	metrics := aggregator.NewMetrics()

	var bot *telegram.Bot
	var broadcaster aggregator.Broadcaster
	if cfg.TelegramToken != "" {
		bot, err = telegram.NewBot(cfg.TelegramToken, cfg.TelegramWebhookURL, cfg.TelegramChannelID, entities, log)
		if err != nil {
			return err
		}
		broadcaster = bot
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN not set, announcements disabled")
	}

	announcer := aggregator.NewAnnouncer(entities, broadcaster, metrics, log)
	enricher, err := buildEnricher(cfg, entities, log, enrichment.WithNotifier(announcer))
	if err != nil {
		return err
	}

	client, err := queue.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer client.Close()

	ledger := cache.New(cfg.LedgerRetention)
	defer ledger.Close()

	deps := aggregator.Deps{
		Enricher: enricher,
		Queue:    queue.New(client, cfg.PostQueueKey, cfg.DeadLetterKey),
		Ledger:   ledger,
		Store:    entities,
		Metrics:  metrics,
		Log:      log,
	}
	if bot != nil {
		deps.Bot = bot
	}

	log.Info("Starting HF Entity Engine...",
		logger.String("oracle", cfg.OracleProvider),
		logger.String("port", cfg.ServerPort),
		logger.Bool("postgres", cfg.DatabaseURL != ""))

	if err := aggregator.New(cfg, deps).Run(ctx); err != nil {
		return err
	}
	log.Info("HF Entity Engine stopped gracefully")
	return nil
}

func newResolveCmd() *cobra.Command {
	var (
		post    models.Post
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Enrich a single post and print the outcome as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if post.Text == "" {
				return fmt.Errorf("--text is required")
			}
			if post.ID == "" {
				post.ID = "cli_" + uuid.NewString()
			}

			cfg := config.Load()
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := logger.New(cfg.LogLevel, cfg.LogDevelopment)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			entities, err := openStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer entities.Close()

			enricher, err := buildEnricher(cfg, entities, log)
			if err != nil {
				return err
			}

			outcome := enricher.Enrich(ctx, &post)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Post    models.Post        `json:"post"`
				Outcome enrichment.Outcome `json:"outcome"`
			}{post, outcome})
		},
	}

	f := cmd.Flags()
	f.StringVar(&post.Text, "text", "", "post text")
	f.StringVar(&post.ID, "id", "", "post id (generated when empty)")
	f.StringVar(&post.AuthorID, "author", "", "author id")
	f.BoolVar(&post.AuthorIsKOL, "kol", false, "author is a tracked KOL")
	f.IntVar(&post.Engagement.Favorites, "favorites", 0, "favorite count")
	f.IntVar(&post.Engagement.Retweets, "retweets", 0, "retweet count")
	f.IntVar(&post.Engagement.Replies, "replies", 0, "reply count")
	f.IntVar(&post.Engagement.Views, "views", 0, "view count")
	f.IntVar(&post.Engagement.Bookmarks, "bookmarks", 0, "bookmark count")
	f.DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline")

	return cmd
}
