package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"sold-crawler/internal"
	"sold-crawler/internal/config"
	"sold-crawler/internal/crawler"
	"sold-crawler/internal/crawler/engine"
	"sold-crawler/internal/metrics"
	"sold-crawler/internal/storage"
	"sold-crawler/internal/telemetry"
	"sold-crawler/pkg/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// run returns instead of exiting so its deferred closes always flush the sinks.
	if err := run(ctx, cfg); err != nil {
		stop()
		log.Fatalf("Run stopped: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	runID := uuid.New()
	log.Printf("Run %s: regions [%d, %d], sold within %d days -> %s",
		runID, cfg.RegionMin, cfg.RegionMax, cfg.LookbackDays, cfg.OutFile)

	shutdownTracing, err := telemetry.Setup(cfg.TraceExporter, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("Failed to flush traces: %v", err)
		}
	}()

	recorder := metrics.New()
	if cfg.MetricsAddr != "" {
		recorder.ServeAsync(ctx, cfg.MetricsAddr)
	}

	// Fetching
	client := crawler.NewHTTPClient(cfg.HTTPTimeout)
	domains := crawler.NewDomainManager(cfg.UserAgent, cfg.RateLimit, cfg.RespectRobots, client)
	httpFetcher := crawler.NewFetcher(cfg, client, domains)

	var fetcher crawler.RegionFetcher = httpFetcher
	if cfg.FetchMode == config.FetchModeBrowser {
		browser, err := crawler.NewBrowserFetcher(ctx, httpFetcher, cfg.Headless)
		if err != nil {
			return fmt.Errorf("start browser: %w", err)
		}
		defer browser.Close()
		fetcher = browser
	}

	// Storage
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		if db, err = waitForDB(ctx, cfg.DatabaseURL); err != nil {
			return err
		}
		defer db.Close()
	}

	csvSink, err := storage.OpenCSV(cfg.OutFile)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	sink := storage.NewMultiSink(csvSink)
	sink.OnMirrorError = recorder.SinkError
	// Closes the mirrors (flushing the Postgres batch tail, draining NATS),
	// then the CSV file. Runs before db.Close.
	defer func() {
		if err := sink.Close(); err != nil {
			log.Printf("Failed to close sinks: %v", err)
		}
	}()

	if db != nil {
		store := storage.NewStorage(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("prepare database: %w", err)
		}
		sink.Mirror("postgres", storage.NewBatchWriter("postgres", storage.NewPostgresSink(store, runID),
			cfg.DBBatchSize, cfg.DBBatchTimeout, recorder.SinkError))
	}

	if cfg.NATSURL != "" {
		natsSink, err := storage.NewNATSSink(ctx, cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		sink.Mirror("nats", natsSink)
		log.Printf("Publishing rows to NATS subject %s", cfg.NATSSubject)
	}

	eng := engine.NewEngine[*models.Payload, models.Row](
		engine.Config{Workers: cfg.Workers, ProgressEvery: cfg.ProgressEvery},
		&crawler.RegionProcessor{Fetcher: fetcher, LookbackDays: cfg.LookbackDays},
		crawler.NewRegionNormalizer(internal.NewIDGenerator()),
		sink,
		recorder,
	)

	summary := eng.Run(ctx, cfg.RegionMin, cfg.RegionMax)

	log.Printf("Processed %d of %d regions in %v: %d ok, %d empty, %d upstream errors, %d fetch failures",
		summary.Regions, cfg.Regions(), summary.Elapsed.Truncate(time.Second),
		summary.ByStatus[models.StatusOK], summary.ByStatus[models.StatusEmpty],
		summary.ByStatus[models.StatusUpstreamError], summary.ByStatus[models.StatusFetchFailed])
	log.Printf("Wrote %d rows to %s (%d records dropped without an address)",
		csvSink.Rows(), cfg.OutFile, summary.Dropped)

	if summary.Err != nil {
		return summary.Err
	}
	if ctx.Err() != nil {
		log.Println("Interrupted; partial output kept")
		return nil
	}
	fmt.Println("Completed!")
	return nil
}

func waitForDB(ctx context.Context, url string) (*sql.DB, error) {
	var err error
	for i := 0; i < 10; i++ {
		var db *sql.DB
		db, err = sql.Open("pgx", url)
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				log.Println("Connected to database")
				return db, nil
			}
			db.Close()
		}
		log.Printf("Waiting for DB... (%v)", err)
		select {
		case <-ctx.Done():
			return nil, errors.New("interrupted while waiting for DB")
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("could not connect to DB after retries: %w", err)
}
