package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"immunocore/internal/blob"
	"immunocore/internal/core"
)

// ExportStatus describes the lifecycle stage of an export request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// ErrQueueFull is returned when the export queue cannot take more work.
var ErrQueueFull = errors.New("export queue full")

// ExportInput represents an enqueue request for the worker.
type ExportInput struct {
	Request     core.AnalysisRequest
	Formats     []Format
	RequestedBy string
}

// ExportRecord tracks an export request and its artifacts.
type ExportRecord struct {
	ID          string           `json:"id"`
	Filter      string           `json:"filter"`
	Formats     []Format         `json:"formats"`
	Status      ExportStatus     `json:"status"`
	Error       string           `json:"error,omitempty"`
	SampleCount int              `json:"sample_count"`
	Artifacts   []StoredArtifact `json:"artifacts,omitempty"`
	RequestedBy string           `json:"requested_by,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

func (r ExportRecord) copy() ExportRecord {
	dup := r
	dup.Formats = append([]Format(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]StoredArtifact(nil), r.Artifacts...)
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		dup.CompletedAt = &t
	}
	return dup
}

// ExportScheduler queues export requests and exposes their status.
type ExportScheduler interface {
	EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error)
	GetExport(id string) (ExportRecord, bool)
}

// Analyzer runs the analysis pipeline behind an export.
type Analyzer interface {
	Analyze(ctx context.Context, req core.AnalysisRequest) (core.Analysis, error)
}

// AuditEntry is one export lifecycle event.
type AuditEntry struct {
	ExportID   string
	Actor      string
	Status     ExportStatus
	Filter     string
	Detail     string
	OccurredAt time.Time
}

// AuditLogger records export audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// LogrusAuditLogger writes audit entries as structured log lines.
type LogrusAuditLogger struct {
	Log logrus.FieldLogger
}

// Record implements AuditLogger.
func (l LogrusAuditLogger) Record(_ context.Context, entry AuditEntry) {
	log := l.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	fields := logrus.Fields{
		"export_id": entry.ExportID,
		"status":    entry.Status,
		"filter":    entry.Filter,
	}
	if entry.Actor != "" {
		fields["actor"] = entry.Actor
	}
	if entry.Detail != "" {
		fields["detail"] = entry.Detail
	}
	e := log.WithFields(fields)
	if entry.Status == ExportStatusFailed {
		e.Warn("export")
		return
	}
	e.Info("export")
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithAuditLogger sets the audit sink.
func WithAuditLogger(a AuditLogger) WorkerOption {
	return func(w *Worker) { w.audit = a }
}

// WithQueueSize bounds the number of pending exports.
func WithQueueSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.queue = make(chan exportTask, n)
		}
	}
}

// WithWorkerClock overrides the time source.
func WithWorkerClock(c core.Clock) WorkerOption {
	return func(w *Worker) {
		if c != nil {
			w.clock = c
		}
	}
}

// Worker runs exports asynchronously and writes artifacts to a blob store.
type Worker struct {
	analyzer Analyzer
	store    blob.Store
	audit    AuditLogger
	clock    core.Clock

	queue chan exportTask
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id    string
	input ExportInput
}

// NewWorker constructs an export worker.
func NewWorker(analyzer Analyzer, store blob.Store, opts ...WorkerOption) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		analyzer: analyzer,
		store:    store,
		clock:    core.ClockFunc(func() time.Time { return time.Now().UTC() }),
		queue:    make(chan exportTask, 32),
		jobs:     make(map[string]*ExportRecord),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for the running export.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueExport validates the request, records it as queued and hands it to
// the worker loop. Filter errors are returned synchronously.
func (w *Worker) EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error) {
	if w.analyzer == nil || w.store == nil {
		return ExportRecord{}, errors.New("export worker not configured")
	}
	spec, err := input.Request.Filter.Normalize()
	if err != nil {
		return ExportRecord{}, err
	}
	formats := input.Formats
	if len(formats) == 0 {
		formats = DefaultFormats
	}

	now := w.clock.Now()
	record := ExportRecord{
		ID:          uuid.NewString(),
		Filter:      spec.String(),
		Formats:     append([]Format(nil), formats...),
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	input.Formats = record.Formats

	w.mu.Lock()
	w.jobs[record.ID] = &record
	snapshot := record.copy()
	w.mu.Unlock()
	w.record(ctx, record.ID, ExportStatusQueued, "")

	select {
	case w.queue <- exportTask{id: record.ID, input: input}:
	default:
		w.fail(record.ID, ErrQueueFull.Error())
		return ExportRecord{}, ErrQueueFull
	}
	return snapshot, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(task exportTask) {
	w.update(task.id, func(r *ExportRecord) { r.Status = ExportStatusRunning })
	w.record(w.ctx, task.id, ExportStatusRunning, "")

	analysis, err := w.analyzer.Analyze(w.ctx, task.input.Request)
	if err != nil {
		w.fail(task.id, fmt.Sprintf("analysis failed: %v", err))
		return
	}
	artifacts, err := WriteArtifacts(w.ctx, w.store, task.id, analysis, task.input.Formats)
	if err != nil {
		w.fail(task.id, err.Error())
		return
	}
	w.update(task.id, func(r *ExportRecord) {
		now := r.UpdatedAt
		r.Status = ExportStatusSucceeded
		r.SampleCount = analysis.SampleCount
		r.Artifacts = artifacts
		r.CompletedAt = &now
	})
	w.record(w.ctx, task.id, ExportStatusSucceeded, fmt.Sprintf("%d artifacts", len(artifacts)))
}

func (w *Worker) fail(id, reason string) {
	w.update(id, func(r *ExportRecord) {
		now := r.UpdatedAt
		r.Status = ExportStatusFailed
		r.Error = reason
		r.CompletedAt = &now
	})
	w.record(w.ctx, id, ExportStatusFailed, reason)
}

func (w *Worker) update(id string, fn func(*ExportRecord)) {
	now := w.clock.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	if record, ok := w.jobs[id]; ok {
		record.UpdatedAt = now
		fn(record)
	}
}

func (w *Worker) record(ctx context.Context, id string, status ExportStatus, detail string) {
	if w.audit == nil {
		return
	}
	w.mu.RLock()
	record, ok := w.jobs[id]
	var actor, filter string
	if ok {
		actor, filter = record.RequestedBy, record.Filter
	}
	w.mu.RUnlock()
	w.audit.Record(ctx, AuditEntry{
		ExportID:   id,
		Actor:      actor,
		Status:     status,
		Filter:     filter,
		Detail:     detail,
		OccurredAt: w.clock.Now(),
	})
}
