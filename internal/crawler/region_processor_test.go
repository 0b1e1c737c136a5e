package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"sold-crawler/internal"
	"sold-crawler/pkg/models"
)

type stubFetcher struct {
	payloads map[int]*models.Payload
	errs     map[int]error
	calls    []int
}

func (s *stubFetcher) Fetch(_ context.Context, region, lookbackDays int) (*models.Payload, error) {
	s.calls = append(s.calls, region)
	if err := s.errs[region]; err != nil {
		return nil, err
	}
	return s.payloads[region], nil
}

func TestRegionProcessor_Process(t *testing.T) {
	want := &models.Payload{Status: models.SuccessStatus}
	f := &stubFetcher{payloads: map[int]*models.Payload{7: want}}
	p := &RegionProcessor{Fetcher: f, LookbackDays: 90}

	got, err := p.Process(context.Background(), 7)
	if err != nil || got != want {
		t.Errorf("Process returned (%v, %v)", got, err)
	}
	if len(f.calls) != 1 || f.calls[0] != 7 {
		t.Errorf("Unexpected fetch calls %v", f.calls)
	}
}

func TestRegionNormalizer_Statuses(t *testing.T) {
	ok := decode(t, `{"errorMessage":"Success","payload":{"search_result":[
		{"address_data":{"zip":"1"}},
		{"beds":2}
	]}}`)
	empty := decode(t, `{"errorMessage":"Success","payload":{"search_result":[]}}`)
	upstream := decode(t, `{"errorMessage":"Region not found"}`)

	tests := []struct {
		name    string
		payload *models.Payload
		err     error
		status  models.RegionStatus
		cause   string
		rows    int
		dropped int
	}{
		{"ok", ok, nil, models.StatusOK, "", 1, 1},
		{"empty", empty, nil, models.StatusEmpty, "", 0, 0},
		{"upstream error", upstream, nil, models.StatusUpstreamError, "", 0, 0},
		{"fetch error", nil, fmt.Errorf("region 3: %w", ErrDecode), models.StatusFetchFailed, "decode", 0, 0},
		{"robots", nil, fmt.Errorf("region 3: %w", ErrDisallowed), models.StatusFetchFailed, "robots", 0, 0},
		{"nil payload", nil, nil, models.StatusFetchFailed, "transport", 0, 0},
	}

	for _, tt := range tests {
		n := NewRegionNormalizer(internal.NewIDGenerator())
		rows, report := n.Normalize(3, tt.payload, tt.err)

		if report.Region != 3 {
			t.Errorf("%s: region mismatch %d", tt.name, report.Region)
		}
		if report.Status != tt.status {
			t.Errorf("%s: status mismatch. Expected: %s Got: %s", tt.name, tt.status, report.Status)
		}
		if report.Cause != tt.cause {
			t.Errorf("%s: cause mismatch. Expected: %q Got: %q", tt.name, tt.cause, report.Cause)
		}
		if len(rows) != tt.rows || report.Rows != tt.rows || report.Dropped != tt.dropped {
			t.Errorf("%s: rows=%d report.Rows=%d dropped=%d", tt.name, len(rows), report.Rows, report.Dropped)
		}
		if tt.status != models.StatusOK && tt.status != models.StatusEmpty && report.Err == nil {
			t.Errorf("%s: expected report error", tt.name)
		}
		for _, r := range rows {
			if r.RegionID != 3 {
				t.Errorf("%s: row region mismatch %d", tt.name, r.RegionID)
			}
		}
	}
}

func TestRegionNormalizer_IDsContinueAcrossRegions(t *testing.T) {
	p := decode(t, `{"errorMessage":"Success","payload":{"search_result":[
		{"address_data":{}},
		{"address_data":{}}
	]}}`)

	n := NewRegionNormalizer(internal.NewIDGenerator())
	first, _ := n.Normalize(1, p, nil)
	_, _ = n.Normalize(2, nil, errors.New("boom"))
	second, _ := n.Normalize(3, p, nil)

	got := []int64{first[0].PropertyID, first[1].PropertyID, second[0].PropertyID, second[1].PropertyID}
	for i, id := range got {
		if id != int64(i+1) {
			t.Errorf("ID %d mismatch. Expected: %d Got: %d", i, i+1, id)
		}
	}
}

func TestFailureKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("x: %w", ErrDisallowed), "robots"},
		{ErrShortBody, "decode"},
		{fmt.Errorf("x: %w", context.Canceled), "canceled"},
		{context.DeadlineExceeded, "canceled"},
		{errors.New("connection refused"), "transport"},
	}
	for _, tt := range tests {
		if got := FailureKind(tt.err); got != tt.want {
			t.Errorf("FailureKind(%v) = %q, expected %q", tt.err, got, tt.want)
		}
	}
}

func useRecordingTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return recorder
}

func TestRegionProcessor_TracesFetchOverHTTP(t *testing.T) {
	recorder := useRecordingTracer(t)

	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("traceparent")
		fmt.Fprint(w, successBody)
	}))
	defer srv.Close()

	p := &RegionProcessor{
		Fetcher:      NewFetcher(testConfig(srv.URL), NewHTTPClient(0), nil),
		LookbackDays: 90,
	}
	payload, err := p.Process(context.Background(), 243)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	var regionSpan sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		if s.Name() == "region.fetch" {
			regionSpan = s
		}
	}
	if regionSpan == nil {
		t.Fatal("Expected a region.fetch span")
	}
	traceID := regionSpan.SpanContext().TraceID().String()

	if !strings.Contains(gotHeader, traceID) {
		t.Errorf("HTTP request should carry the region trace, header %q trace %s", gotHeader, traceID)
	}
	if !strings.Contains(payload.TraceParent, traceID) {
		t.Errorf("Payload trace mismatch: %q", payload.TraceParent)
	}

	var sawRegion bool
	for _, kv := range regionSpan.Attributes() {
		if kv.Key == "region.id" && kv.Value.AsInt64() == 243 {
			sawRegion = true
		}
	}
	if !sawRegion {
		t.Error("Expected region.id attribute")
	}

	n := NewRegionNormalizer(internal.NewIDGenerator())
	rows, _ := n.Normalize(243, payload, nil)
	for _, r := range rows {
		if r.TraceParent != payload.TraceParent {
			t.Errorf("Row trace mismatch: %q", r.TraceParent)
		}
	}
}

func TestRegionProcessor_RecordsFailure(t *testing.T) {
	recorder := useRecordingTracer(t)

	f := &stubFetcher{errs: map[int]error{5: fmt.Errorf("region 5: %w", ErrDecode)}}
	p := &RegionProcessor{Fetcher: f, LookbackDays: 90}

	if _, err := p.Process(context.Background(), 5); err == nil {
		t.Fatal("Expected error")
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("Expected one span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error || spans[0].Status().Description != "decode" {
		t.Errorf("Unexpected span status %+v", spans[0].Status())
	}
}
