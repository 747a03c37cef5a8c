// Package report serves the overview, filter options and responder analysis
// over HTTP and runs report exports into the artifact store.
package report

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"immunocore/internal/core"
	"immunocore/pkg/domain"
)

// Service is the read side of core.Service used by the handler.
type Service interface {
	Analyzer
	Overview(ctx context.Context) ([]domain.OverviewRow, error)
	FilterOptions(ctx context.Context) (map[domain.Attribute][]string, error)
}

// Handler provides HTTP access to the analysis pipeline.
type Handler struct {
	Service Service
	Exports ExportScheduler
}

// NewHandler constructs a report HTTP handler.
func NewHandler(svc Service) *Handler {
	return &Handler{Service: svc}
}

const (
	pathOverview = "/api/v1/overview"
	pathFilters  = "/api/v1/filters"
	pathAnalysis = "/api/v1/analysis"
	pathExports  = "/api/v1/exports"
)

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "report service not configured")
		return
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == pathOverview:
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.handleOverview(w, r)
	case path == pathFilters:
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.handleFilters(w, r)
	case path == pathAnalysis:
		if !allow(w, r, http.MethodPost) {
			return
		}
		h.handleAnalysis(w, r)
	case path == pathExports || strings.HasPrefix(path, pathExports+"/"):
		if h.Exports == nil {
			http.NotFound(w, r)
			return
		}
		h.handleExports(w, r, path)
	default:
		http.NotFound(w, r)
	}
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.Overview(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) handleFilters(w http.ResponseWriter, r *http.Request) {
	options, err := h.Service.FilterOptions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"filters": options})
}

func (h *Handler) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	var payload AnalysisPayload
	if !decode(w, r, &payload) {
		return
	}
	req, err := payload.Request()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	analysis, err := h.Service.Analyze(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

type exportPayload struct {
	AnalysisPayload
	Formats     []string `json:"formats"`
	RequestedBy string   `json:"requested_by"`
}

func (h *Handler) handleExports(w http.ResponseWriter, r *http.Request, path string) {
	if path == pathExports {
		if !allow(w, r, http.MethodPost) {
			return
		}
		h.handleExportCreate(w, r)
		return
	}
	if !allow(w, r, http.MethodGet) {
		return
	}
	id := strings.TrimPrefix(path, pathExports+"/")
	record, ok := h.Exports.GetExport(id)
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"export": record})
}

func (h *Handler) handleExportCreate(w http.ResponseWriter, r *http.Request) {
	var payload exportPayload
	if !decode(w, r, &payload) {
		return
	}
	req, err := payload.Request()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	formats, err := ParseFormats(payload.Formats)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	record, err := h.Exports.EnqueueExport(r.Context(), ExportInput{
		Request:     req,
		Formats:     formats,
		RequestedBy: payload.RequestedBy,
	})
	if err != nil {
		if errors.Is(err, ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
}

// decode reads a JSON body; an empty body leaves dst untouched.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, "invalid request payload")
	return false
}

// StatusFor maps pipeline errors to HTTP status codes.
func StatusFor(err error) int {
	var (
		filterErr    *domain.FilterError
		integrityErr *domain.DataIntegrityError
	)
	switch {
	case errors.As(err, &filterErr):
		return http.StatusBadRequest
	case errors.As(err, &integrityErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, StatusFor(err), err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

var _ Service = (*core.Service)(nil)
