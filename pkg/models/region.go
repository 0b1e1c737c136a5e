package models

import "time"

// RegionStatus classifies what happened to one region identifier.
type RegionStatus int

const (
	StatusOK RegionStatus = iota
	StatusEmpty
	StatusUpstreamError
	StatusFetchFailed
)

func (s RegionStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	case StatusUpstreamError:
		return "upstream_error"
	case StatusFetchFailed:
		return "fetch_failed"
	default:
		return "unknown"
	}
}

// RegionReport is the per-region diagnostic. It keeps "no sales" apart from
// "fetch failed", which the output file alone cannot.
type RegionReport struct {
	Region   int
	Status   RegionStatus
	Records  int
	Rows     int
	Dropped  int
	Err      error
	Cause    string // failure class for fetch_failed, e.g. "decode"
	Duration time.Duration
}
