package crawler

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"sold-crawler/internal"
	"sold-crawler/pkg/models"
)

const tracerName = "sold-crawler/internal/crawler"

// RegionProcessor implements engine.Processor by fetching one region's
// sold-property payload.
type RegionProcessor struct {
	Fetcher      RegionFetcher
	LookbackDays int
}

// Process fetches a single region inside a "region.fetch" span. Errors mean
// "no data for this region" and never stop the run.
func (p *RegionProcessor) Process(ctx context.Context, region int) (*models.Payload, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "region.fetch", trace.WithAttributes(
		attribute.Int("region.id", region),
		attribute.Int("region.lookback_days", p.LookbackDays),
	))
	defer span.End()

	payload, err := p.Fetcher.Fetch(ctx, region, p.LookbackDays)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, FailureKind(err))
		return nil, err
	}
	if payload != nil {
		span.SetAttributes(
			attribute.String("upstream.status", payload.Status),
			attribute.Int("upstream.records", len(payload.Records)),
		)
		payload.TraceParent = traceParent(ctx)
	}
	return payload, nil
}

func traceParent(ctx context.Context) string {
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	return carrier.Get("traceparent")
}

// RegionNormalizer implements engine.Normalizer. It owns the run's ID
// generator and must only be called from one goroutine at a time so IDs
// come out in write order.
type RegionNormalizer struct {
	ids *internal.IDGenerator
}

func NewRegionNormalizer(ids *internal.IDGenerator) *RegionNormalizer {
	return &RegionNormalizer{ids: ids}
}

// Normalize turns a fetch result into rows plus a diagnostic report.
func (n *RegionNormalizer) Normalize(region int, payload *models.Payload, fetchErr error) ([]models.Row, models.RegionReport) {
	report := models.RegionReport{Region: region}

	switch {
	case fetchErr != nil:
		report.Status = models.StatusFetchFailed
		report.Err = fetchErr
		report.Cause = FailureKind(fetchErr)
		return nil, report
	case payload == nil:
		report.Status = models.StatusFetchFailed
		report.Err = errors.New("no payload")
		report.Cause = "transport"
		return nil, report
	case !payload.OK():
		report.Status = models.StatusUpstreamError
		report.Err = fmt.Errorf("upstream status %q", payload.Status)
		return nil, report
	}

	ext := Extract(payload, n.ids)
	for i := range ext.Rows {
		ext.Rows[i].RegionID = region
		ext.Rows[i].TraceParent = payload.TraceParent
	}

	report.Records = ext.Records
	report.Rows = len(ext.Rows)
	report.Dropped = ext.Dropped
	if ext.Records == 0 {
		report.Status = models.StatusEmpty
	} else {
		report.Status = models.StatusOK
	}
	return ext.Rows, report
}
