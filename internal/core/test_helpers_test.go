package core

import (
	"context"
	"math"
	"sync"
	"time"

	"gopkg.in/guregu/null.v3"

	"immunocore/pkg/domain"
)

func record(id, response string, b, cd8, cd4, nk, mono int64) domain.SampleRecord {
	r := domain.SampleRecord{
		Project:    "prj1",
		Subject:    "sbj-" + id,
		Condition:  "melanoma",
		Age:        60,
		Sex:        "F",
		Treatment:  null.StringFrom("miraclib"),
		Sample:     id,
		SampleType: "PBMC",
		Counts:     domain.PopulationCounts{BCell: b, CD8TCell: cd8, CD4TCell: cd4, NKCell: nk, Monocyte: mono},
	}
	if response != "" {
		r.Response = null.StringFrom(response)
	}
	return r
}

func approx(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

type stubClock struct{ t time.Time }

func (s stubClock) Now() time.Time { return s.t }

type captureLogger struct {
	mu    sync.Mutex
	calls []string
}

func (c *captureLogger) add(s string) {
	c.mu.Lock()
	c.calls = append(c.calls, s)
	c.mu.Unlock()
}

func (c *captureLogger) Debug(msg string, _ ...any) { c.add("d:" + msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.add("i:" + msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.add("w:" + msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.add("e:" + msg) }

func (c *captureLogger) has(entry string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call == entry {
			return true
		}
	}
	return false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct{ calls []metricsCall }

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct{ ended []spanRecord }

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

// countingStore counts DistinctValues calls reaching the backend.
type countingStore struct {
	domain.RecordStore
	distinctCalls int
}

func (c *countingStore) DistinctValues(ctx context.Context, attr domain.Attribute) ([]string, error) {
	c.distinctCalls++
	return c.RecordStore.DistinctValues(ctx, attr)
}
