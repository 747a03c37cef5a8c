package domain

import "context"

// RecordStore is the contract between the analysis pipeline and a durable
// backend holding sample records and their derived frequency table.
type RecordStore interface {
	// Rebuild atomically drops and recreates the sample and frequency
	// tables. Readers never observe a partially applied rebuild.
	Rebuild(ctx context.Context, samples []SampleRecord, frequencies []FrequencyRow) error
	// QuerySamples returns the records matching a normalized spec, ordered by sample id.
	QuerySamples(ctx context.Context, spec FilterSpec) ([]SampleRecord, error)
	// ListFrequencies returns the stored derived table.
	ListFrequencies(ctx context.Context) ([]FrequencyRow, error)
	// DistinctValues returns the non-null values of an attribute.
	DistinctValues(ctx context.Context, attr Attribute) ([]string, error)
	// Version changes on every successful Rebuild.
	Version(ctx context.Context) (uint64, error)
	Close() error
}
