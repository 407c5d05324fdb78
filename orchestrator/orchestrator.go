package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"

	"newsbrief/config"
	"newsbrief/feeds"
	"newsbrief/pipeline"
	"newsbrief/queue"
	"newsbrief/research"
	"newsbrief/store"
	"newsbrief/types"
	"newsbrief/vector"
)

// maxPerFeed caps how many entries one feed contributes to a run.
const maxPerFeed = 50

// ErrBusy is returned when a pipeline run is requested while one is
// already in flight. Runs never overlap.
var ErrBusy = fmt.Errorf("pipeline run already in progress")

// App wires the full cycle: feed pull, deduplication pipeline, queue
// hand-off, and the research loop over pending records.
type App struct {
	cfg          *config.Config
	sources      *config.Sources
	pipe         *pipeline.Pipeline
	records      *store.Records
	fingerprints *store.Fingerprints
	index        *vector.Index
	loop         *research.Loop
	producer     *queue.Producer // nil when Kafka is not configured

	mu         sync.Mutex
	reportMu   sync.Mutex
	lastReport *pipeline.Report
}

// New assembles the app. loop and producer may be nil for roles that do
// not use them (the API server can run without Kafka, the worker without
// feed pulling).
func New(cfg *config.Config, sources *config.Sources, pipe *pipeline.Pipeline, records *store.Records, fingerprints *store.Fingerprints, index *vector.Index, loop *research.Loop, producer *queue.Producer) *App {
	return &App{
		cfg:          cfg,
		sources:      sources,
		pipe:         pipe,
		records:      records,
		fingerprints: fingerprints,
		index:        index,
		loop:         loop,
		producer:     producer,
	}
}

// RunPipeline executes one fetch + deduplication cycle and publishes the
// selected records to the pending queue.
func (a *App) RunPipeline(ctx context.Context) (*pipeline.Report, error) {
	if !a.mu.TryLock() {
		return nil, ErrBusy
	}
	defer a.mu.Unlock()

	log.Println("=== Pipeline run ===")
	items, errs := feeds.FetchAll(ctx, a.sources.Feeds, maxPerFeed)
	for _, err := range errs {
		log.Printf("Warning: feed fetch failed: %v", err)
	}
	log.Printf("Fetched %d candidate items from %d feeds", len(items), len(a.sources.Feeds))

	report, err := a.pipe.Run(ctx, items)
	if report != nil {
		a.setLastReport(report)
	}
	if err != nil {
		return report, err
	}

	if a.producer != nil && len(report.Selected) > 0 {
		if err := a.producer.PublishPending(report.Selected); err != nil {
			log.Printf("Warning: queue publish failed: %v", err)
		}
	}

	log.Println("=== Pipeline run complete ===")
	return report, nil
}

func (a *App) setLastReport(report *pipeline.Report) {
	a.reportMu.Lock()
	defer a.reportMu.Unlock()
	a.lastReport = report
}

// LastReport returns the report of the most recent pipeline run, or nil
// when no run has happened yet.
func (a *App) LastReport() *pipeline.Report {
	a.reportMu.Lock()
	defer a.reportMu.Unlock()
	return a.lastReport
}

// PendingRecords lists up to limit Pending records, newest first.
func (a *App) PendingRecords(ctx context.Context, limit int) ([]*types.StoredRecord, error) {
	return a.records.GetPending(ctx, limit)
}

// ProcessQueue drains up to limit Pending records through the research
// loop, sequentially.
func (a *App) ProcessQueue(ctx context.Context, limit int) ([]*research.Outcome, error) {
	if a.loop == nil {
		return nil, fmt.Errorf("research loop is not configured")
	}
	records, err := a.records.GetPending(ctx, limit)
	if err != nil {
		return nil, err
	}
	log.Printf("Processing %d pending record(s)", len(records))
	return a.loop.ProcessPending(ctx, records), nil
}

// ProcessRecordByID runs the research loop for one record. Used by the
// queue consumer.
func (a *App) ProcessRecordByID(ctx context.Context, externalID string) error {
	if a.loop == nil {
		return fmt.Errorf("research loop is not configured")
	}
	rec, err := a.records.Get(ctx, externalID)
	if err != nil {
		return err
	}
	if rec.Status != types.StatusPending {
		log.Printf("Record %s is %s, skipping", externalID, rec.Status)
		return nil
	}
	_, err = a.loop.ProcessRecord(ctx, rec)
	return err
}

// Drafts returns the drafts created for one record.
func (a *App) Drafts(ctx context.Context, externalID string) ([]*types.DraftPost, error) {
	return a.records.ListDrafts(ctx, externalID)
}

// Reset clears every store: records, drafts, fingerprints, and the
// similarity index. Administrative use only.
func (a *App) Reset(ctx context.Context) error {
	if err := a.records.Reset(ctx); err != nil {
		return fmt.Errorf("reset records: %w", err)
	}
	if err := a.fingerprints.Reset(ctx); err != nil {
		return fmt.Errorf("reset fingerprints: %w", err)
	}
	if a.index != nil {
		if err := a.index.Reset(ctx); err != nil {
			return fmt.Errorf("reset similarity index: %w", err)
		}
	}
	log.Println("All stores reset")
	return nil
}

// BatchSize exposes the configured output batch size for queue drains.
func (a *App) BatchSize() int {
	return a.cfg.BatchSize
}
