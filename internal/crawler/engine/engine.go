package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"sold-crawler/pkg/models"
)

// Processor defines how to fetch a single region. It must be safe for
// concurrent use when more than one worker runs.
type Processor[P any] interface {
	Process(ctx context.Context, region int) (P, error)
}

// Normalizer turns one region's fetch result into output items. It is only
// ever called from the storage goroutine.
type Normalizer[P, T any] interface {
	Normalize(region int, payload P, err error) ([]T, models.RegionReport)
}

// Sink defines how to persist the data. Save is called once per region,
// possibly with an empty batch, and should flush before returning.
type Sink[T any] interface {
	Save(batch []T) error
}

// Reporter receives every region's report. Optional.
type Reporter interface {
	Report(models.RegionReport)
}

// Config holds worker settings.
type Config struct {
	Workers       int
	ProgressEvery int
}

// Summary is what a run produced.
type Summary struct {
	Regions  int
	ByStatus map[models.RegionStatus]int
	Records  int
	Rows     int
	Dropped  int
	Elapsed  time.Duration

	// Err is the sink error that stopped the run, if any.
	Err error
}

type fetchResult[P any] struct {
	region   int
	payload  P
	err      error
	duration time.Duration
}

// Engine orchestrates the run over a region range.
type Engine[P, T any] struct {
	config     Config
	processor  Processor[P]
	normalizer Normalizer[P, T]
	sink       Sink[T]
	reporter   Reporter

	waitGroup sync.WaitGroup
}

func NewEngine[P, T any](cfg Config, proc Processor[P], norm Normalizer[P, T], sink Sink[T], reporter Reporter) *Engine[P, T] {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Engine[P, T]{
		config:     cfg,
		processor:  proc,
		normalizer: norm,
		sink:       sink,
		reporter:   reporter,
	}
}

// Run processes every region in [first, last] and blocks until done, the
// context is cancelled, or the sink fails. Results already handed to the
// writer when the context is cancelled are still written.
func (engine *Engine[P, T]) Run(ctx context.Context, first, last int) Summary {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	regions := make(chan int)
	results := make(chan fetchResult[P])

	// 1. Seed the region queue
	go func() {
		defer close(regions)
		for region := first; region <= last; region++ {
			select {
			case <-ctx.Done():
				return
			case regions <- region:
			}
		}
	}()

	// 2. Start fetch workers
	for i := 0; i < engine.config.Workers; i++ {
		engine.waitGroup.Add(1)
		go engine.startFetchWorker(ctx, regions, results)
	}
	go func() {
		engine.waitGroup.Wait()
		close(results)
	}()

	fmt.Printf("Engine started with %d workers over regions [%d, %d]\n", engine.config.Workers, first, last)

	// 3. Normalize and store on this goroutine only
	return engine.store(results, cancel, last-first+1)
}

func (engine *Engine[P, T]) startFetchWorker(ctx context.Context, regions <-chan int, results chan<- fetchResult[P]) {
	defer engine.waitGroup.Done()

	for region := range regions {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		payload, err := engine.processor.Process(ctx, region)
		if err != nil && ctx.Err() != nil {
			// Interrupted, not failed.
			return
		}

		select {
		case <-ctx.Done():
			return
		case results <- fetchResult[P]{region: region, payload: payload, err: err, duration: time.Since(start)}:
		}
	}
}

func (engine *Engine[P, T]) store(results <-chan fetchResult[P], cancel context.CancelFunc, total int) Summary {
	start := time.Now()
	summary := Summary{ByStatus: make(map[models.RegionStatus]int)}

	for res := range results {
		if summary.Err != nil {
			continue // drain so workers can exit
		}

		batch, report := engine.normalizer.Normalize(res.region, res.payload, res.err)
		report.Duration = res.duration

		if err := engine.sink.Save(batch); err != nil {
			log.Printf("Failed to save region %d: %v", res.region, err)
			summary.Err = fmt.Errorf("save region %d: %w", res.region, err)
			cancel()
			continue
		}

		summary.Regions++
		summary.ByStatus[report.Status]++
		summary.Records += report.Records
		summary.Rows += report.Rows
		summary.Dropped += report.Dropped

		switch report.Status {
		case models.StatusFetchFailed, models.StatusUpstreamError:
			log.Printf("[Region %d] %s: %v", report.Region, report.Status, report.Err)
		}
		if engine.reporter != nil {
			engine.reporter.Report(report)
		}
		if every := engine.config.ProgressEvery; every > 0 && summary.Regions%every == 0 {
			log.Printf("Processed %d out of %d regions (%d rows)", summary.Regions, total, summary.Rows)
		}
	}

	summary.Elapsed = time.Since(start)
	return summary
}
