// Package memory provides an in-memory record store for tests and ephemeral
// environments.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"immunocore/pkg/domain"
)

var _ domain.RecordStore = (*Store)(nil)

var errClosed = errors.New("memory store closed")

// Store keeps sample records and their derived frequencies behind a RWMutex.
// Rebuild swaps the whole state under the write lock.
type Store struct {
	mu      sync.RWMutex
	samples []domain.SampleRecord
	freqs   []domain.FrequencyRow
	version uint64
	closed  bool
}

// NewStore returns an empty store at version zero.
func NewStore() *Store {
	return &Store{}
}

// Rebuild implements domain.RecordStore.
func (s *Store) Rebuild(ctx context.Context, samples []domain.SampleRecord, frequencies []domain.FrequencyRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := domain.ValidateRecords(samples); err != nil {
		return err
	}
	next := append([]domain.SampleRecord(nil), samples...)
	sort.SliceStable(next, func(i, j int) bool { return next[i].Sample < next[j].Sample })
	freqs := append([]domain.FrequencyRow(nil), frequencies...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	s.samples = next
	s.freqs = freqs
	s.version++
	return nil
}

// QuerySamples implements domain.RecordStore. A malformed spec yields a
// *domain.FilterError.
func (s *Store) QuerySamples(ctx context.Context, spec domain.FilterSpec) ([]domain.SampleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	spec, err := spec.Normalize()
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	out := make([]domain.SampleRecord, 0, len(s.samples))
	if spec.MatchesNothing() {
		return out, nil
	}
	for _, rec := range s.samples {
		if spec.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ListFrequencies implements domain.RecordStore.
func (s *Store) ListFrequencies(ctx context.Context) ([]domain.FrequencyRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	return append([]domain.FrequencyRow(nil), s.freqs...), nil
}

// DistinctValues implements domain.RecordStore.
func (s *Store) DistinctValues(ctx context.Context, attr domain.Attribute) ([]string, error) {
	if !attr.Known() {
		return nil, &domain.FilterError{Attribute: attr, Reason: "unknown attribute"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	seen := make(map[string]struct{})
	out := []string{}
	for _, rec := range s.samples {
		v, ok := rec.Value(attr)
		if !ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// Version implements domain.RecordStore.
func (s *Store) Version(context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errClosed
	}
	return s.version, nil
}

// Close implements domain.RecordStore. Later calls fail.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
