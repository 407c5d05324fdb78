package main

import (
	"context"
	"log"
	"net/http"

	"newsbrief/api"
	"newsbrief/archive"
	"newsbrief/config"
	"newsbrief/llm"
	"newsbrief/orchestrator"
	"newsbrief/pipeline"
	"newsbrief/queue"
	"newsbrief/research"
	"newsbrief/search"
	"newsbrief/store"
	"newsbrief/vector"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.CohereAPIKey == "" {
		log.Fatal("COHERE_API_KEY is required")
	}

	sources, err := config.LoadSources(cfg.SourcesPath)
	if err != nil {
		log.Fatalf("Failed to load sources file %s: %v", cfg.SourcesPath, err)
	}
	log.Printf("Loaded %d feeds and %d trusted domains", len(sources.Feeds), len(sources.Domains))

	app, cleanup, err := buildApp(cfg, sources)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer cleanup()

	addr := ":" + cfg.Port
	r := api.NewRouter(app)
	log.Printf("Starting API server on %s", addr)
	log.Println("API endpoints available:")
	log.Println("  GET    /api/health")
	log.Println("  POST   /api/pipeline/run")
	log.Println("  GET    /api/pipeline/report")
	log.Println("  GET    /api/queue/pending")
	log.Println("  POST   /api/queue/process")
	log.Println("  GET    /api/drafts/:recordId")
	log.Println("  DELETE /api/admin/reset")

	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// buildApp wires every collaborator behind the orchestrator.
func buildApp(cfg *config.Config, sources *config.Sources) (*orchestrator.App, func(), error) {
	ctx := context.Background()
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	fingerprints, err := store.NewFingerprints(store.FingerprintsConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, cleanup, err
	}
	closers = append(closers, func() { fingerprints.Close() })

	records, err := store.OpenRecords(cfg.SQLitePath)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	closers = append(closers, func() { records.Close() })

	index, err := vector.NewIndex(vector.IndexConfig{
		Host:       cfg.ChromaHost,
		Port:       cfg.ChromaPort,
		Collection: cfg.Collection,
	})
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}

	embedder, err := vector.NewCohereEmbeddings(cfg.CohereAPIKey, cfg.EmbeddingModel)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}

	pipe, err := pipeline.New(fingerprints, index, embedder, records, nil, pipeline.Config{
		RecencyWindow:    cfg.RecencyWindow,
		TrustRanks:       sources.TrustRanks(),
		ClusterThreshold: cfg.ClusterThreshold,
		FuzzyThreshold:   cfg.FuzzyThreshold,
		SemanticLimit:    cfg.SemanticLimit,
		SemanticTopK:     cfg.SemanticTopK,
		RecentTitleLimit: cfg.RecentTitleLimit,
		BatchSize:        cfg.BatchSize,
	})
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}

	loop, err := buildLoop(ctx, cfg, sources, records)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}

	var producer *queue.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err = queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		closers = append(closers, func() { producer.Close() })
	} else {
		log.Println("Kafka not configured; pending records are drained via the API only")
	}

	return orchestrator.New(cfg, sources, pipe, records, fingerprints, index, loop, producer), cleanup, nil
}

// buildLoop assembles the research loop and its collaborators.
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
