package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	alerts "plantwatch/internal/alerts/domain"
	"plantwatch/internal/audit"
)

// Handler provides alert HTTP endpoints.
type Handler struct {
	sink        alerts.Sink
	auditLogger audit.Logger
	logger      *log.Logger
}

// NewHandler constructs a handler; auditLogger may be nil.
func NewHandler(sink alerts.Sink, auditLogger audit.Logger, logger *log.Logger) (*Handler, error) {
	if sink == nil {
		return nil, errors.New("alerts handler: nil sink")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{sink: sink, auditLogger: auditLogger, logger: logger}, nil
}

// ServeHTTP handles /api/v1/alerts and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/alerts":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, h.sink.List())
	case "/api/v1/alerts/count":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"outstanding": h.sink.CountOutstanding()})
	case "/api/v1/alerts/clear":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		cleared := h.sink.CountOutstanding()
		h.sink.ClearAll(r.Context())
		h.logAudit(r, cleared)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) logAudit(r *http.Request, cleared int) {
	if h.auditLogger == nil {
		return
	}
	entry := audit.FromRequest(r, "alerts.clear", "alert", "", map[string]int{"cleared": cleared})
	if err := h.auditLogger.Log(r.Context(), entry); err != nil {
		h.logger.Printf("audit log error: action=%s err=%v", entry.Action, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
