package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joseph-ayodele/resume-scanner/internal/common"
	"github.com/joseph-ayodele/resume-scanner/internal/entity"
	"github.com/joseph-ayodele/resume-scanner/internal/export"
	"github.com/joseph-ayodele/resume-scanner/internal/ingest"
)

// Coordinator is the batch submission and polling surface.
type Coordinator interface {
	SubmitBatch(ctx context.Context, entries []entity.DocumentEntry, keywords []string) ([]entity.TaskHandle, error)
	GetStatus(ctx context.Context, handle entity.TaskHandle) (*entity.TaskStatus, error)
}

// HealthFunc reports whether a dependency is usable.
type HealthFunc func(ctx context.Context) error

type submitScansRequest struct {
	Entries  []entity.DocumentEntry `json:"entries"`
	Keywords []string               `json:"keywords"`
}

type submitScansResponse struct {
	TaskHandles []entity.TaskHandle `json:"task_handles"`
}

type saveResultsRequest struct {
	Results []entity.SavedResult `json:"results"`
}

type saveResultsResponse struct {
	Status   string `json:"status"`
	Rows     int    `json:"rows"`
	FirstRow int    `json:"first_row"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the JSON API.
type Handler struct {
	coord          Coordinator
	entries        ingest.EntryReader
	sink           export.Sink
	health         HealthFunc
	logger         *slog.Logger
	maxUploadBytes int64
	schemas        *schemas
}

type Option func(*Handler)

// WithHealthCheck adds a dependency probe to /healthz.
func WithHealthCheck(fn HealthFunc) Option {
	return func(h *Handler) { h.health = fn }
}

// WithMaxUploadBytes caps request bodies.
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

func NewHandler(coord Coordinator, entries ingest.EntryReader, sink export.Sink, logger *slog.Logger, opts ...Option) (*Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sc, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	h := &Handler{
		coord:          coord,
		entries:        entries,
		sink:           sink,
		logger:         logger,
		maxUploadBytes: 10 << 20,
		schemas:        sc,
	}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

// Routes returns the mux with logging middleware applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/scans", h.submitScans)
	mux.HandleFunc("GET /v1/scans/{handle}", h.getScan)
	mux.HandleFunc("POST /v1/entries/csv", h.uploadEntries)
	mux.HandleFunc("POST /v1/results", h.saveResults)
	mux.HandleFunc("GET /healthz", h.healthz)
	return withRequestLogging(mux, h.logger)
}

func (h *Handler) submitScans(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	var req submitScansRequest
	if err := decodeValidated(h.schemas.submit, body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "entries and keywords are required: "+err.Error())
		return
	}

	handles, err := h.coord.SubmitBatch(r.Context(), req.Entries, req.Keywords)
	if err != nil {
		h.fail(w, r, "submit scans", err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitScansResponse{TaskHandles: handles})
}

func (h *Handler) getScan(w http.ResponseWriter, r *http.Request) {
	handle := strings.TrimSpace(r.PathValue("handle"))
	if handle == "" {
		writeError(w, http.StatusBadRequest, "task handle is required")
		return
	}
	st, err := h.coord.GetStatus(r.Context(), entity.TaskHandle(handle))
	if err != nil {
		h.fail(w, r, "get scan status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) uploadEntries(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file part")
		return
	}
	defer file.Close()
	if strings.TrimSpace(hdr.Filename) == "" {
		writeError(w, http.StatusBadRequest, "no selected file")
		return
	}
	if !ingest.AllowedUpload(hdr.Filename) {
		writeError(w, http.StatusBadRequest, "file type not allowed")
		return
	}

	entries, _, err := h.entries.ReadEntries(r.Context(), file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if entries == nil {
		entries = []entity.DocumentEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) saveResults(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	var req saveResultsRequest
	if err := decodeValidated(h.schemas.save, body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "no results to save: "+err.Error())
		return
	}

	sum, err := h.sink.Append(r.Context(), req.Results)
	if err != nil {
		h.fail(w, r, "save results", err)
		return
	}
	writeJSON(w, http.StatusOK, saveResultsResponse{Status: "success", Rows: sum.Rows, FirstRow: sum.FirstRow})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			common.LoggerFromContext(r.Context(), h.logger).Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUploadBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "cannot read request body")
		return nil, false
	}
	return body, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if common.IsValidation(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	common.LoggerFromContext(r.Context(), h.logger).Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
