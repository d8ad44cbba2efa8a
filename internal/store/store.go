// internal/store/store.go

// Package store persists component-branch realizations and aggregate
// curves. Realization queries are partition-pruned: one batch read per
// (vs30, coarse location) feeds every job in that partition.
package store

import (
	"context"
	"errors"
	"fmt"

	"hazpost-core/location"
)

// ErrWrongRecordCount is a per-job data error: the store returned a
// different number of rows than the logic tree expects for a site/imt.
var ErrWrongRecordCount = errors.New("store: wrong realization record count")

// Realization is one stored component-branch hazard vector. Values are
// exceedance probabilities over the investigation time.
type Realization struct {
	SourceDigest string
	GMCMDigest   string
	Values       []float64
}

// BatchQuery selects one realization batch.
type BatchQuery struct {
	CompatKey     string
	VS30          int
	Partition     string // coarse location code
	IMTs          []string
	SourceDigests map[string]struct{}
	GMCMDigests   map[string]struct{}
}

// JobKey addresses one job's slice of a batch.
type JobKey struct {
	LocCode string
	IMT     string
}

// Batch holds one partition's realizations grouped per job.
type Batch map[JobKey][]Realization

// Job returns the rows for one (site, imt), checking the record count
// against the expected component branch count. Zero rows or a mismatch is
// fatal to that job: it signals a store / logic-tree mismatch.
func (b Batch) Job(loc location.CodedLocation, imt string, nExpected int) ([]Realization, error) {
	rows := b[JobKey{LocCode: loc.FineCode(), IMT: imt}]
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no records for %s %s", ErrWrongRecordCount, loc.FineCode(), imt)
	}
	if len(rows) != nExpected {
		return nil, fmt.Errorf("%w: %s %s: want %d, got %d", ErrWrongRecordCount, loc.FineCode(), imt, nExpected, len(rows))
	}
	return rows, nil
}

// RealizationStore is the query side consumed by the dispatcher.
type RealizationStore interface {
	Batch(ctx context.Context, q BatchQuery) (Batch, error)
}

// RealizationWriter is the ingest side.
type RealizationWriter interface {
	PutRealizations(ctx context.Context, compat string, vs30 int, loc location.CodedLocation, imt string, rlzs []Realization) error
}

// AggregateStore accepts one write per (location, vs30, imt, agg type).
type AggregateStore interface {
	SaveAggregate(ctx context.Context, model string, loc location.CodedLocation, vs30 int, imt, aggType string, values []float64) error
}
