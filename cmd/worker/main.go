package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"newsbrief/archive"
	"newsbrief/config"
	"newsbrief/llm"
	"newsbrief/queue"
	"newsbrief/research"
	"newsbrief/search"
	"newsbrief/store"
)

// The worker consumes pending-record notices from Kafka and runs the
// research loop for each one. It shares the database with the API
// server but never touches the deduplication stores.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.CohereAPIKey == "" {
		log.Fatal("COHERE_API_KEY is required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		log.Fatal("KAFKA_BROKERS is required for the worker")
	}

	sources, err := config.LoadSources(cfg.SourcesPath)
	if err != nil {
		log.Fatalf("Failed to load sources file %s: %v", cfg.SourcesPath, err)
	}

	records, err := store.OpenRecords(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("Failed to open records database: %v", err)
	}
	defer records.Close()

	loop, err := buildLoop(context.Background(), cfg, sources, records)
	if err != nil {
		log.Fatalf("Failed to build research loop: %v", err)
	}

	handler := &queue.TypedMessageHandler[queue.Notice]{
		Validate: func(n *queue.Notice) bool { return n.ExternalID != "" },
		Process: func(ctx context.Context, n *queue.Notice) error {
			log.Printf("Processing pending record %s (%s)", n.ExternalID, n.Title)
			rec, err := records.Get(ctx, n.ExternalID)
			if err != nil {
				return err
			}
			_, err = loop.ProcessRecord(ctx, rec)
			return err
		},
		AlwaysMark: true,
	}

	consumer, err := queue.NewConsumer(queue.ConsumerConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
		GroupID: cfg.KafkaGroupID,
		Handler: handler,
	})
	if err != nil {
		log.Fatalf("Failed to create consumer: %v", err)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := consumer.Start(ctx); err != nil {
		log.Fatalf("Failed to start consumer: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("Shutting down worker...")
	cancel()
}

func buildLoop(ctx context.Context, cfg *config.Config, sources *config.Sources, records *store.Records) (*research.Loop, error) {
	model, err := llm.NewCohere(cfg.CohereAPIKey, cfg.CohereModel, cfg.LLMTimeout)
	if err != nil {
		return nil, err
	}

	searcher, err := search.NewClient(search.ClientConfig{
		BaseURL: cfg.SearchURL,
		APIKey:  cfg.SearchAPIKey,
		Timeout: cfg.SearchTimeout,
	})
	if err != nil {
		return nil, err
	}

	var archiver research.Archiver
	s3Archive, err := archive.NewS3Archive(ctx, archive.Config{
		Bucket: cfg.S3Bucket,
		Region: cfg.S3Region,
		Prefix: cfg.S3Prefix,
	})
	if err != nil {
		log.Printf("Warning: failed to init archive: %v (uploads disabled)", err)
	} else if s3Archive != nil {
		archiver = s3Archive
	}

	extractor := research.ReadabilityExtractor{Timeout: cfg.ExtractTimeout}
	return research.NewLoop(model, searcher, extractor, records, records, archiver, sources.TrustRanks())
}
