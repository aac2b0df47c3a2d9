package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	clarityerrors "github.com/clarity-digital-twin/clarity-backend/internal/errors"
	"github.com/clarity-digital-twin/clarity-backend/pkg/model"
	"github.com/clarity-digital-twin/clarity-backend/pkg/pipeline"
	"github.com/clarity-digital-twin/clarity-backend/pkg/store/structured"
	"github.com/clarity-digital-twin/clarity-backend/pkg/upload"
)

type handlers struct {
	upload   *upload.Service
	store    *structured.Store
	pipeline *pipeline.Service
}

func (h *handlers) handleUpload(w http.ResponseWriter, r *http.Request) {
	var u model.Upload
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeProblem(w, r, clarityerrors.NewValidation("upload", "malformed JSON body"))
		return
	}

	processingID, err := h.upload.Accept(r.Context(), u)
	if err != nil {
		writeTypedError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"processing_id": processingID})
}

func (h *handlers) handleQuery(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var opts structured.QueryOptions
	if mt := r.URL.Query().Get("metric_type"); mt != "" {
		typed := model.MetricType(mt)
		opts.MetricType = &typed
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			opts.Limit = n
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if n, err := strconv.Atoi(offsetStr); err == nil {
			opts.Offset = n
		}
	}

	metrics, err := h.store.QueryHealthMetrics(r.Context(), userID, opts)
	if err != nil {
		writeTypedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"metrics": metrics})
}

func (h *handlers) handleGetResult(w http.ResponseWriter, r *http.Request) {
	processingID := chi.URLParam(r, "processingID")

	result, err := h.store.GetLatestAnalysisResult(r.Context(), processingID)
	if err != nil {
		writeTypedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) handleEraseUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	deleted, err := h.upload.EraseUser(r.Context(), userID)
	if err != nil {
		writeTypedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted_count": deleted})
}

func (h *handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	result := h.pipeline.HealthCheck()
	status := http.StatusOK
	if !result.ModelLoaded || !result.FusionReady {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, result)
}

func writeTypedError(w http.ResponseWriter, r *http.Request, err error) {
	typed, ok := clarityerrors.As(err)
	if !ok {
		typed = clarityerrors.NewStorage("unknown", err.Error(), err)
	}
	writeProblem(w, r, typed)
}

func writeProblem(w http.ResponseWriter, r *http.Request, typed *clarityerrors.TypedError) {
	problem := clarityerrors.ToProblemDetails(typed, r.URL.Path, r.Header.Get("X-Request-ID"))
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)
	_ = json.NewEncoder(w).Encode(problem)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
