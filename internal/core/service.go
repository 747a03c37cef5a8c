package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"immunocore/pkg/domain"
)

// Service runs the load and analysis pipeline against a record store.
type Service struct {
	store    domain.RecordStore
	distinct *DistinctCache
	clock    Clock
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source used for GeneratedAt and latencies.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer sets the span factory.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithDistinctCache replaces the default distinct-value memo.
func WithDistinctCache(c *DistinctCache) Option {
	return func(s *Service) {
		if c != nil {
			s.distinct = c
		}
	}
}

// NewService constructs a service over store.
func NewService(store domain.RecordStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		clock:   utcClock(),
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.distinct == nil {
		s.distinct = NewDistinctCache(defaultDistinctCacheSize)
	}
	return s
}

// Store returns the underlying record store.
func (s *Service) Store() domain.RecordStore { return s.store }

// LoadResult reports what a Load wrote.
type LoadResult struct {
	Samples       int    `json:"samples"`
	FrequencyRows int    `json:"frequency_rows"`
	Version       uint64 `json:"version"`
}

// AnalysisRequest selects the samples and populations to analyse. A nil
// Populations means all five; an empty non-nil slice selects none.
type AnalysisRequest struct {
	Filter      domain.FilterSpec
	Populations []domain.Population
}

// Analysis is the result of filtering, deriving and comparing.
type Analysis struct {
	Filter      string                 `json:"filter"`
	Populations []domain.Population    `json:"populations"`
	SampleCount int                    `json:"sample_count"`
	Rows        []domain.AnnotatedRow  `json:"rows"`
	QuickStats  []domain.MetricSummary `json:"quick_stats"`
	Summary     []domain.GroupSummary  `json:"summary"`
	GeneratedAt time.Time              `json:"generated_at"`
}

// Load validates records, derives their frequencies and replaces the store
// contents in one rebuild.
func (s *Service) Load(ctx context.Context, records []domain.SampleRecord) (LoadResult, error) {
	var res LoadResult
	err := s.run(ctx, "load", func(ctx context.Context) error {
		if err := domain.ValidateRecords(records); err != nil {
			return err
		}
		freqs, err := DeriveFrequencies(records)
		if err != nil {
			return err
		}
		if err := s.store.Rebuild(ctx, records, freqs); err != nil {
			return fmt.Errorf("rebuild: %w", err)
		}
		s.distinct.Purge()
		version, err := s.store.Version(ctx)
		if err != nil {
			return fmt.Errorf("store version: %w", err)
		}
		res = LoadResult{Samples: len(records), FrequencyRows: len(freqs), Version: version}
		return nil
	})
	return res, err
}

// Overview returns the stored derived table in reporting order.
func (s *Service) Overview(ctx context.Context) ([]domain.OverviewRow, error) {
	var out []domain.OverviewRow
	err := s.run(ctx, "overview", func(ctx context.Context) error {
		rows, err := s.store.ListFrequencies(ctx)
		if err != nil {
			return fmt.Errorf("list frequencies: %w", err)
		}
		out = Overview(rows)
		return nil
	})
	return out, err
}

// DistinctValues returns the memoized distinct values of one attribute.
func (s *Service) DistinctValues(ctx context.Context, attr domain.Attribute) ([]string, error) {
	var out []string
	err := s.run(ctx, "distinct_values", func(ctx context.Context) error {
		var err error
		out, err = s.distinct.Values(ctx, s.store, attr)
		return err
	})
	return out, err
}

// FilterOptions returns the distinct values of every filterable attribute.
func (s *Service) FilterOptions(ctx context.Context) (map[domain.Attribute][]string, error) {
	out := make(map[domain.Attribute][]string, len(domain.Attributes()))
	err := s.run(ctx, "filter_options", func(ctx context.Context) error {
		for _, attr := range domain.Attributes() {
			values, err := s.distinct.Values(ctx, s.store, attr)
			if err != nil {
				return err
			}
			out[attr] = values
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Analyze filters the stored samples, derives per-population frequencies for
// the selected populations and compares responders with non-responders. A
// filter matching no samples yields an empty analysis, not an error.
func (s *Service) Analyze(ctx context.Context, req AnalysisRequest) (Analysis, error) {
	var out Analysis
	err := s.run(ctx, "analyze", func(ctx context.Context) error {
		spec, order, err := req.normalize()
		if err != nil {
			return err
		}
		var samples []domain.SampleRecord
		if !spec.MatchesNothing() {
			samples, err = s.store.QuerySamples(ctx, spec)
			if err != nil {
				return fmt.Errorf("query samples: %w", err)
			}
		}
		out, err = buildAnalysis(spec, order, samples, s.clock.Now())
		if err != nil {
			return err
		}
		for _, g := range out.Summary {
			if !g.PValue.Valid {
				s.logger.Debug("rank-sum test skipped", "population", g.Population, "n_yes", g.NYes, "n_no", g.NNo)
			}
		}
		return nil
	})
	return out, err
}

// AnalyzeRecords runs the same pipeline as Analyze over records held in
// memory instead of a store.
func AnalyzeRecords(records []domain.SampleRecord, req AnalysisRequest, now time.Time) (Analysis, error) {
	spec, order, err := req.normalize()
	if err != nil {
		return Analysis{}, err
	}
	samples, err := ApplyFilter(spec, records)
	if err != nil {
		return Analysis{}, err
	}
	return buildAnalysis(spec, order, samples, now)
}

func (r AnalysisRequest) normalize() (domain.FilterSpec, []domain.Population, error) {
	spec, err := r.Filter.Normalize()
	if err != nil {
		return nil, nil, err
	}
	if r.Populations == nil {
		return spec, domain.Populations(), nil
	}
	order := make([]domain.Population, 0, len(r.Populations))
	seen := make(map[domain.Population]struct{}, len(r.Populations))
	for _, p := range r.Populations {
		if p.Index() < 0 {
			return nil, nil, &domain.FilterError{Attribute: "population", Reason: fmt.Sprintf("unknown population %q", p)}
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		order = append(order, p)
	}
	return spec, order, nil
}

func buildAnalysis(spec domain.FilterSpec, order []domain.Population, samples []domain.SampleRecord, now time.Time) (Analysis, error) {
	rows, err := Annotate(samples, order)
	if err != nil {
		return Analysis{}, err
	}
	return Analysis{
		Filter:      spec.String(),
		Populations: order,
		SampleCount: len(samples),
		Rows:        rows,
		QuickStats:  Describe(rows),
		Summary:     CompareGroups(rows, order),
		GeneratedAt: now,
	}, nil
}

func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	elapsed := s.clock.Now().Sub(start)
	s.metrics.Observe(ctx, op, err == nil, elapsed)

	var filterErr *domain.FilterError
	switch {
	case err == nil:
		s.logger.Debug("operation completed", "operation", op, "duration", elapsed)
	case errors.As(err, &filterErr):
		s.logger.Warn("operation rejected", "operation", op, "error", err)
	default:
		s.logger.Error("operation failed", "operation", op, "error", err)
	}
	return err
}
