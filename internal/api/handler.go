package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/harrier/internal/dataset"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/service"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	svc     *service.Service
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	version string

	maxUploadBytes int64
}

// NewHandler creates a new API handler.
func NewHandler(svc *service.Service, deps service.Dependencies, version string, maxUploadMB int64) *Handler {
	return &Handler{
		svc:            svc,
		repo:           deps.Repository,
		cache:          deps.Cache,
		bus:            deps.Bus,
		version:        version,
		maxUploadBytes: maxUploadMB << 20,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// Root describes the service.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":       "harrier",
		"version":       h.version,
		"status":        "running",
		"model_trained": h.svc.Ready(),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := map[string]string{}

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			status = "degraded"
			checks[name] = err.Error()
			return
		}
		checks[name] = "ok"
	}
	if h.repo != nil {
		check("repository", func() error { return h.repo.Ping(r.Context()) })
	}
	if h.cache != nil {
		check("cache", func() error { return h.cache.Ping(r.Context()) })
	}
	if h.bus != nil {
		check("bus", func() error { return h.bus.Ping(r.Context()) })
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        status,
		"version":       h.version,
		"model_trained": h.svc.Ready(),
		"checks":        checks,
	})
}

// Ready reports 200 once a model has been trained.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.svc.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

// Train fits a new scorer on the uploaded transactions.
func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	txs, err := readTransactions(w, r, h.maxUploadBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.svc.Train(r.Context(), txs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	modelVersion.Set(float64(res.Version))

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "success",
		"message":          "Model trained successfully",
		"training_samples": res.TrainingSamples,
		"features_used":    res.FeaturesUsed,
		"version":          res.Version,
		"training_run_id":  res.TrainingRunID,
		"scorer":           res.Scorer,
	})
}

// Detect scores uploaded transactions. With ?async=true the batch is queued
// on the event bus and 202 is returned with its id.
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	txs, err := readTransactions(w, r, h.maxUploadBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		batchID, err := h.svc.SubmitBatch(r.Context(), txs)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":       "accepted",
			"batch_id":     batchID,
			"transactions": len(txs),
			"status_url":   "/api/batches/" + batchID,
		})
		return
	}

	res, err := h.svc.Detect(r.Context(), "", txs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	observeRun(res.Run)

	suspicious := make([]domain.ScoredTransaction, 0, res.Run.Summary.SuspiciousCount)
	for _, row := range res.Rows {
		if row.IsSuspicious {
			suspicious = append(suspicious, row)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":                  "success",
		"detection_run_id":        res.Run.ID,
		"model_version":           res.Run.ModelVersion,
		"summary":                 res.Run.Summary,
		"suspicious_transactions": suspicious,
		"download_url":            exportURL(res.Run.ID),
	})
}

// Analyze scores uploaded transactions and returns chart-ready distributions.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	txs, err := readTransactions(w, r, h.maxUploadBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.svc.Analyze(r.Context(), txs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	observeRun(res.Run)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "success",
		"detection_run_id": res.Run.ID,
		"summary":          res.Run.Summary,
		"transactions":     res.Rows,
		"distributions":    res.Distributions,
		"truncated":        res.Truncated,
	})
}

// Stats reports the active model and dataset.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetDetection returns a detection run with its suspicious rows.
func (h *Handler) GetDetection(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetDetection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// GetBatch returns the detection run of an async batch. It is 404 until the
// worker has scored the batch.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetBatchDetection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// ExportDetection streams every scored row of a run as CSV.
func (h *Handler) ExportDetection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rows, err := h.svc.DetectionRows(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "detection_"+id+".csv"))
	w.WriteHeader(http.StatusOK)
	if err := dataset.WriteScoredCSV(w, rows); err != nil {
		slog.Error("failed to write export", "detection_run_id", id, "error", err)
	}
}

// ListTrainingRuns returns recent training runs, newest first.
func (h *Handler) ListTrainingRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, domain.NewValidationError("limit must be a positive integer"))
			return
		}
		limit = n
	}

	runs, err := h.svc.TrainingRuns(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"training_runs": runs,
		"count":         len(runs),
	})
}

// ListRules returns the loaded rules in evaluation order.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules := h.svc.Rules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// EgoTree builds the ego graph around a client.
// Omitted fields take the default depth and limit.
func (h *Handler) EgoTree(w http.ResponseWriter, r *http.Request) {
	req := domain.NewGraphRequest("")
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.NewValidationError("invalid JSON request body"))
		return
	}

	result, err := h.svc.Graph(r.Context(), req)
	if err != nil {
		graphBuilds.WithLabelValues("error").Inc()
		writeError(w, r, err)
		return
	}
	graphBuilds.WithLabelValues("success").Inc()

	writeJSON(w, http.StatusOK, result)
}

func observeRun(run *domain.DetectionRun) {
	transactionsScored.Add(float64(run.Summary.TotalTransactions))
	suspiciousTransactions.Add(float64(run.Summary.SuspiciousCount))
}

func exportURL(runID string) string {
	return "/api/detections/" + runID + "/export"
}

// writeError maps domain errors to status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *domain.ValidationError
		notFound   *domain.NotFoundError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      validation.Error(),
			"violations": validation.Violations,
		})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: notFound.Error()})
	case errors.Is(err, domain.ErrScorerUnavailable):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"trace_id", GetTraceID(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
