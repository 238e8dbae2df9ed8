package storage

import (
	"context"
	"perfsampler/collector"
	"time"
)

// SampleRecord is a single persisted sample row.
type SampleRecord struct {
	ID    int64  // auto-increment primary key (mostly for internal use)
	RunID string // sampler invocation that produced the row
	Sample
}

// Store abstracts a persistence back-end for samples.
type Store interface {
	// Append persists one sample. Rows are kept in the order they are
	// appended.
	Append(ctx context.Context, s Sample) error

	// Close flushes and releases any resources (files, DB connections).
	// It is safe to call more than once.
	Close() error
}

// Querier is implemented by stores that can read samples back.
type Querier interface {
	// Query returns the samples of runID taken between from and to
	// (inclusive). If runID is empty the call returns samples of *all* runs.
	// The returned slice is sorted by Timestamp ascending.
	Query(ctx context.Context, runID string, from, to time.Time) ([]SampleRecord, error)
}

// Sample is re-exported here so callers do not need to import
// the collector package just to call Store.Append().
type Sample = collector.Sample
