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

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"daily-digest/internal/article"
	"daily-digest/internal/config"
	"daily-digest/internal/curate"
	"daily-digest/internal/curated"
	"daily-digest/internal/db"
	"daily-digest/internal/deliver"
	"daily-digest/internal/digest"
	"daily-digest/internal/engagement"
	"daily-digest/internal/summarize"
	"daily-digest/internal/track"

	"go.mongodb.org/mongo-driver/mongo"
)

var targetDate string

func main() {
	rootCmd := &cobra.Command{
		Use:   "digest",
		Short: "Daily bilingual news digest with engagement tracking",
		Long: `Digest curates one day of news articles, enriches each with an
English and a validated Chinese summary, emails the result to the
recipient list, and tracks per-recipient opens, reading time, and
link clicks.`,
	}

	curateCmd := &cobra.Command{
		Use:   "curate",
		Short: "Run one curation cycle (wipe, select, summarize, persist)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCurate(targetDate)
		},
	}
	curateCmd.Flags().StringVar(&targetDate, "date", "", "target date override (YYYY-MM-DD, default today in the business timezone)")

	deliverCmd := &cobra.Command{
		Use:   "deliver",
		Short: "Send the curated digest to the recipient list",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeliver()
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engagement-tracking HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	rootCmd.AddCommand(curateCmd, deliverCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func connect(ctx context.Context, logger *log.Logger) (config.Config, *mongo.Client, *mongo.Database, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	client, err := db.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	logger.Println("connected to document store")

	return cfg, client, client.Database(cfg.MongoDBName), nil
}

func runCurate(dateOverride string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.New(os.Stdout, "[digest] ", log.LstdFlags|log.Lshortfile)

	cfg, client, database, err := connect(ctx, logger)
	if err != nil {
		return err
	}
	defer disconnect(client, logger)

	articles := article.NewMongoArticleRepository(database, logger)
	store := curated.NewMongoCuratedRepository(database, logger)
	generator := summarize.NewGenerator(
		summarize.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.OpenAIKey, &http.Client{Timeout: cfg.Timeout}),
		logger,
	)

	svc := curate.NewService(articles, store, generator, cfg.Location(), logger)

	result, err := svc.Run(ctx, dateOverride)
	if err != nil {
		return fmt.Errorf("curation run failed: %w", err)
	}

	logger.Printf("run complete: date=%s processed=%d matched=%d saved=%d",
		result.TargetDate, result.Processed, result.Matched, result.Saved)
	return nil
}

func runDeliver() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.New(os.Stdout, "[digest] ", log.LstdFlags|log.Lshortfile)

	cfg, client, database, err := connect(ctx, logger)
	if err != nil {
		return err
	}
	defer disconnect(client, logger)

	events, err := engagement.NewMongoEngagementRepository(database, logger)
	if err != nil {
		return fmt.Errorf("failed to init engagement repository: %w", err)
	}
	svc := deliveryService(cfg, database, events, logger)

	count, sent := svc.SendToday(ctx)
	if !sent {
		return fmt.Errorf("digest not delivered (%d items)", count)
	}
	logger.Printf("digest delivered: %d items", count)
	return nil
}

func runServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.New(os.Stdout, "[digest] ", log.LstdFlags|log.Lshortfile)

	cfg, client, database, err := connect(ctx, logger)
	if err != nil {
		return err
	}
	defer disconnect(client, logger)

	events, err := engagement.NewMongoEngagementRepository(database, logger)
	if err != nil {
		return fmt.Errorf("failed to init engagement repository: %w", err)
	}

	var publisher track.Publisher
	if cfg.RabbitURI != "" {
		rabbit, err := track.NewRabbitPublisher(cfg.RabbitURI, cfg.RabbitExchange, logger)
		if err != nil {
			return fmt.Errorf("failed to init rabbit publisher: %w", err)
		}
		defer rabbit.Close()
		publisher = rabbit
	}

	sender := deliveryService(cfg, database, events, logger)

	handler := track.NewHandler(events, sender, publisher, logger)

	r := mux.NewRouter()
	handler.Register(r)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		logger.Printf("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Println("shutdown signal received, shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("HTTP server shutdown error: %v", err)
	}

	logger.Println("shutdown complete")
	return nil
}

func deliveryService(cfg config.Config, database *mongo.Database, events engagement.Repository, logger *log.Logger) *deliver.Service {
	return deliver.NewService(
		curated.NewMongoCuratedRepository(database, logger),
		digest.NewRenderer(cfg.TrackingBaseURL),
		deliver.NewSMTPMailer(cfg.SMTPServer, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		events,
		cfg.EmailFrom,
		cfg.Recipients,
		logger,
	)
}

func disconnect(client *mongo.Client, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		logger.Printf("mongo disconnect error: %v", err)
	}
}
