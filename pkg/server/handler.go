package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

type Handler struct {
	log *slog.Logger
	cfg Config
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg, Code: status})
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.healthzHandler)
	mux.HandleFunc("/readyz", h.readyzHandler)
	mux.HandleFunc("/api/ask", h.askHandler)
	mux.HandleFunc("/api/overview", h.overviewHandler)
	mux.HandleFunc("/api/tables", h.tablesHandler)
	mux.HandleFunc("/api/refresh", h.refreshHandler)
}

func (h *Handler) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		h.log.Error("failed to write healthz response", "error", err)
	}
}

// readyz verifies the store answers a catalog query.
func (h *Handler) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := h.cfg.Tables.Tables(r.Context()); err != nil {
		h.log.Debug("readyz: store not ready", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte("store not ready\n")); err != nil {
			h.log.Error("failed to write readyz response", "error", err)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		h.log.Error("failed to write readyz response", "error", err)
	}
}

type askRequest struct {
	Question string `json:"question"`
}

func (h *Handler) askHandler(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}
	var req askRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		h.writeJSONError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := h.cfg.Pipeline.Answer(r.Context(), question)
	if err != nil {
		h.log.Error("ask failed", "question", question, "error", err)
		h.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, answer)
}

func (h *Handler) overviewHandler(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}
	overview, err := h.cfg.Pipeline.Overview(r.Context())
	if err != nil {
		h.log.Error("overview failed", "error", err)
		h.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, overview)
}

func (h *Handler) tablesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		h.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	tables, err := h.cfg.Tables.Tables(r.Context())
	if err != nil {
		h.log.Error("table listing failed", "error", err)
		h.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (h *Handler) refreshHandler(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}
	if h.cfg.Refresher == nil {
		h.writeJSONError(w, http.StatusNotImplemented, "refresh is not configured")
		return
	}
	tables, err := h.cfg.Refresher.Refresh(r.Context())
	if err != nil {
		h.log.Error("refresh failed", "error", err)
		h.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.log.Info("data refreshed", "tables", len(tables))
	h.writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (h *Handler) requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			h.writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.writeJSONError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}
