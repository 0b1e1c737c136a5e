package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sold-crawler/pkg/models"
)

type fakePayload struct {
	region int
	items  int
}

type fakeProcessor struct {
	mu    sync.Mutex
	seen  map[int]int
	fail  map[int]bool
	block func(ctx context.Context, region int) error
}

func (p *fakeProcessor) Process(ctx context.Context, region int) (fakePayload, error) {
	p.mu.Lock()
	if p.seen == nil {
		p.seen = make(map[int]int)
	}
	p.seen[region]++
	p.mu.Unlock()

	if p.block != nil {
		if err := p.block(ctx, region); err != nil {
			return fakePayload{}, err
		}
	}
	if p.fail[region] {
		return fakePayload{}, errors.New("fetch failed")
	}
	// Vary timing so concurrent workers finish out of order.
	time.Sleep(time.Duration(region%3) * time.Millisecond)
	return fakePayload{region: region, items: region % 3}, nil
}

type item struct {
	id     int64
	region int
}

// fakeNormalizer hands out IDs without locking; the engine must only call it
// from one goroutine.
type fakeNormalizer struct {
	next int64
}

func (n *fakeNormalizer) Normalize(region int, payload fakePayload, err error) ([]item, models.RegionReport) {
	report := models.RegionReport{Region: region}
	if err != nil {
		report.Status = models.StatusFetchFailed
		report.Err = err
		return nil, report
	}
	var out []item
	for i := 0; i < payload.items; i++ {
		n.next++
		out = append(out, item{id: n.next, region: region})
	}
	report.Records = payload.items
	report.Rows = len(out)
	report.Status = models.StatusOK
	if payload.items == 0 {
		report.Status = models.StatusEmpty
	}
	return out, report
}

type fakeSink struct {
	mu      sync.Mutex
	saves   int
	items   []item
	failOn  int
	onSaved func(saves int)
}

func (s *fakeSink) Save(batch []item) error {
	s.mu.Lock()
	s.saves++
	saves := s.saves
	if s.failOn > 0 && saves == s.failOn {
		s.mu.Unlock()
		return errors.New("disk full")
	}
	s.items = append(s.items, batch...)
	s.mu.Unlock()

	if s.onSaved != nil {
		s.onSaved(saves)
	}
	return nil
}

type fakeReporter struct {
	reports []models.RegionReport
}

func (r *fakeReporter) Report(rep models.RegionReport) {
	r.reports = append(r.reports, rep)
}

func TestEngine_Sequential(t *testing.T) {
	proc := &fakeProcessor{fail: map[int]bool{4: true}}
	sink := &fakeSink{}
	reporter := &fakeReporter{}

	e := NewEngine[fakePayload, item](Config{Workers: 1}, proc, &fakeNormalizer{}, sink, reporter)
	summary := e.Run(context.Background(), 1, 6)

	if summary.Err != nil {
		t.Fatalf("Unexpected error %v", summary.Err)
	}
	if summary.Regions != 6 {
		t.Errorf("Region count mismatch. Expected: 6 Got: %d", summary.Regions)
	}
	if summary.ByStatus[models.StatusFetchFailed] != 1 {
		t.Errorf("Expected 1 failed region, got %d", summary.ByStatus[models.StatusFetchFailed])
	}
	// items per region = region%3: 1,2,0,(failed),2,0
	if summary.Rows != 5 || len(sink.items) != 5 {
		t.Errorf("Row count mismatch. Expected: 5 Got: %d (sink %d)", summary.Rows, len(sink.items))
	}
	if sink.saves != 6 {
		t.Errorf("Save should be called once per region, got %d", sink.saves)
	}
	if len(reporter.reports) != 6 {
		t.Errorf("Reporter should see every region, got %d", len(reporter.reports))
	}
	for i, rep := range reporter.reports {
		if rep.Region != i+1 {
			t.Errorf("Sequential run out of order at %d: region %d", i, rep.Region)
		}
	}
}

func TestEngine_ConcurrentIDsIncreaseInWriteOrder(t *testing.T) {
	proc := &fakeProcessor{}
	sink := &fakeSink{}

	e := NewEngine[fakePayload, item](Config{Workers: 8}, proc, &fakeNormalizer{}, sink, nil)
	summary := e.Run(context.Background(), 1, 200)

	if summary.Err != nil {
		t.Fatalf("Unexpected error %v", summary.Err)
	}
	if summary.Regions != 200 {
		t.Errorf("Region count mismatch. Expected: 200 Got: %d", summary.Regions)
	}
	for region := 1; region <= 200; region++ {
		if proc.seen[region] != 1 {
			t.Errorf("Region %d fetched %d times", region, proc.seen[region])
		}
	}
	for i := 1; i < len(sink.items); i++ {
		if sink.items[i].id <= sink.items[i-1].id {
			t.Fatalf("IDs not strictly increasing at %d: %d after %d", i, sink.items[i].id, sink.items[i-1].id)
		}
	}
}

func TestEngine_SinkErrorStopsRun(t *testing.T) {
	proc := &fakeProcessor{}
	sink := &fakeSink{failOn: 3}

	e := NewEngine[fakePayload, item](Config{Workers: 1}, proc, &fakeNormalizer{}, sink, nil)
	summary := e.Run(context.Background(), 1, 1000)

	if summary.Err == nil {
		t.Fatal("Expected sink error in summary")
	}
	if summary.Regions != 2 {
		t.Errorf("Expected 2 regions stored before failure, got %d", summary.Regions)
	}
	if sink.saves != 3 {
		t.Errorf("No saves expected after failure, got %d", sink.saves)
	}
}

func TestEngine_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proc := &fakeProcessor{
		block: func(ctx context.Context, region int) error {
			if region < 5 {
				return nil
			}
			<-ctx.Done()
			return ctx.Err()
		},
	}
	sink := &fakeSink{onSaved: func(saves int) {
		if saves == 4 {
			cancel()
		}
	}}

	e := NewEngine[fakePayload, item](Config{Workers: 1}, proc, &fakeNormalizer{}, sink, nil)

	done := make(chan Summary)
	go func() { done <- e.Run(ctx, 1, 1000) }()

	select {
	case summary := <-done:
		if summary.Err != nil {
			t.Errorf("Cancellation is not a sink error: %v", summary.Err)
		}
		if summary.Regions != 4 {
			t.Errorf("Expected 4 regions stored, got %d", summary.Regions)
		}
		if summary.ByStatus[models.StatusFetchFailed] != 0 {
			t.Error("Interrupted fetches must not be reported as failures")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestEngine_SingleRegion(t *testing.T) {
	sink := &fakeSink{}
	e := NewEngine[fakePayload, item](Config{}, &fakeProcessor{}, &fakeNormalizer{}, sink, nil)

	summary := e.Run(context.Background(), 7, 7)
	if summary.Regions != 1 || sink.saves != 1 {
		t.Errorf("Expected exactly one region, got regions=%d saves=%d", summary.Regions, sink.saves)
	}
}
