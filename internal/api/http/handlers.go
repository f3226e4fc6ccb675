package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"plantwatch/internal/audit"
	history "plantwatch/internal/history/domain"
	"plantwatch/internal/history/interfaces/export"
	plant "plantwatch/internal/plant/domain"
	rotation "plantwatch/internal/rotation/domain"
	schedule "plantwatch/internal/schedule/domain"
)

const (
	defaultHistoryLimit = 31
	maxHistoryLimit     = 1000
)

// Rotator is the live row control surface.
type Rotator interface {
	Current() rotation.Live
	StepManual(ctx context.Context, delta int) rotation.Live
	SetCycleActive(active bool)
	Cursor() rotation.Cursor
}

// Scheduler is the capture time control surface.
type Scheduler interface {
	AddTime(ctx context.Context, t schedule.TimeOfDay) bool
	RemoveTime(ctx context.Context, t schedule.TimeOfDay) bool
	Times() []schedule.TimeOfDay
	Start() error
	Stop()
	Running() bool
}

// Ledger is the history read and clear surface.
type Ledger interface {
	Entries() []history.Entry
	QueryByInstrument(key string, limit int) []history.Sample
	Clear(ctx context.Context)
}

// Capturer records a manual capture.
type Capturer interface {
	CaptureManual(ctx context.Context) history.Entry
}

// Deps lists the components served over HTTP.
type Deps struct {
	Rotator   Rotator
	Scheduler Scheduler
	Ledger    Ledger
	Capturer  Capturer
	Audit     audit.Logger
	Logger    *log.Logger
}

// Handler serves the live, rotation, schedule and history endpoints.
type Handler struct {
	rotator   Rotator
	scheduler Scheduler
	ledger    Ledger
	capturer  Capturer
	audit     audit.Logger
	logger    *log.Logger
	now       func() time.Time
}

// NewHandler constructs a handler.
func NewHandler(deps Deps) (*Handler, error) {
	switch {
	case deps.Rotator == nil:
		return nil, errors.New("api handler: nil rotator")
	case deps.Scheduler == nil:
		return nil, errors.New("api handler: nil scheduler")
	case deps.Ledger == nil:
		return nil, errors.New("api handler: nil ledger")
	case deps.Capturer == nil:
		return nil, errors.New("api handler: nil capturer")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		rotator:   deps.Rotator,
		scheduler: deps.Scheduler,
		ledger:    deps.Ledger,
		capturer:  deps.Capturer,
		audit:     deps.Audit,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/live", h.handleLive)
	mux.HandleFunc("/api/v1/rotation/step", h.handleStep)
	mux.HandleFunc("/api/v1/rotation/cycle", h.handleCycle)
	mux.HandleFunc("/api/v1/schedule/times", h.handleTimes)
	mux.HandleFunc("/api/v1/schedule/running", h.handleRunning)
	mux.HandleFunc("/api/v1/history", h.handleHistory)
	mux.HandleFunc("/api/v1/history/capture", h.handleCapture)
	mux.HandleFunc("/api/v1/history/export.xlsx", h.handleExport)
	mux.HandleFunc("/api/v1/history/export.pdf", h.handleExport)
}

type cursorView struct {
	Index           int     `json:"index"`
	Row             int     `json:"row"`
	Total           int     `json:"total"`
	CycleActive     bool    `json:"cycle_active"`
	IntervalSeconds float64 `json:"interval_seconds"`
}

type liveView struct {
	Snapshot  map[string]*float64 `json:"snapshot"`
	Label     string              `json:"label"`
	Outcome   rotation.Outcome    `json:"outcome"`
	Cursor    cursorView          `json:"cursor"`
	FetchedAt *time.Time          `json:"fetched_at,omitempty"`
}

func toCursorView(c rotation.Cursor) cursorView {
	return cursorView{
		Index:           c.Index,
		Row:             c.Index + 1,
		Total:           c.Total,
		CycleActive:     c.CycleActive,
		IntervalSeconds: c.Interval.Seconds(),
	}
}

func toSnapshotView(s plant.Snapshot) map[string]*float64 {
	out := make(map[string]*float64, len(s))
	for key, reading := range s {
		if v, ok := reading.Value(); ok {
			out[key] = &v
		} else {
			out[key] = nil
		}
	}
	return out
}

func toLiveView(live rotation.Live) liveView {
	view := liveView{
		Snapshot: toSnapshotView(live.Snapshot),
		Label:    live.Label,
		Outcome:  live.Outcome,
		Cursor:   toCursorView(live.Cursor),
	}
	if !live.FetchedAt.IsZero() {
		at := live.FetchedAt
		view.FetchedAt = &at
	}
	return view
}

func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, toLiveView(h.rotator.Current()))
}

func (h *Handler) handleStep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	req := struct {
		Delta *int `json:"delta"`
	}{}
	if err := decodeOptionalJSON(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	delta := 1
	if req.Delta != nil {
		delta = *req.Delta
	}
	live := h.rotator.StepManual(r.Context(), delta)
	h.logAudit(r, "rotation.step", "rotation", live.Cursor.Position(), map[string]any{"delta": delta})
	writeJSON(w, http.StatusOK, toLiveView(live))
}

func (h *Handler) handleCycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	req := struct {
		Active *bool `json:"active"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		http.Error(w, "active is required", http.StatusBadRequest)
		return
	}
	h.rotator.SetCycleActive(*req.Active)
	h.logAudit(r, "rotation.cycle", "rotation", "", map[string]any{"active": *req.Active})
	writeJSON(w, http.StatusOK, toCursorView(h.rotator.Cursor()))
}

type timesView struct {
	Times   []schedule.TimeOfDay `json:"times"`
	Display []string             `json:"display"`
	Running bool                 `json:"running"`
}

func (h *Handler) timesView() timesView {
	times := h.scheduler.Times()
	display := make([]string, len(times))
	for i, t := range times {
		display[i] = t.Display()
	}
	if times == nil {
		times = []schedule.TimeOfDay{}
	}
	return timesView{Times: times, Display: display, Running: h.scheduler.Running()}
}

func (h *Handler) handleTimes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.timesView())
	case http.MethodPost:
		t, err := readTime(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !h.scheduler.AddTime(r.Context(), t) {
			http.Error(w, fmt.Sprintf("time %s already scheduled", t), http.StatusConflict)
			return
		}
		h.logAudit(r, "schedule.add", "schedule_time", t.String(), nil)
		writeJSON(w, http.StatusCreated, h.timesView())
	case http.MethodDelete:
		t, err := readTime(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !h.scheduler.RemoveTime(r.Context(), t) {
			http.Error(w, fmt.Sprintf("time %s not scheduled", t), http.StatusNotFound)
			return
		}
		h.logAudit(r, "schedule.remove", "schedule_time", t.String(), nil)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleRunning(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	req := struct {
		Running *bool `json:"running"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Running == nil {
		http.Error(w, "running is required", http.StatusBadRequest)
		return
	}
	if *req.Running {
		if err := h.scheduler.Start(); err != nil {
			if errors.Is(err, schedule.ErrAlreadyRunning) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			http.Error(w, "start scheduler error", http.StatusInternalServerError)
			return
		}
	} else {
		h.scheduler.Stop()
	}
	h.logAudit(r, "schedule.running", "scheduler", "", map[string]any{"running": *req.Running})
	writeJSON(w, http.StatusOK, h.timesView())
}

type sampleView struct {
	Date        string         `json:"date"`
	Time        string         `json:"time"`
	Value       *float64       `json:"value"`
	Origin      history.Origin `json:"origin"`
	SourceLabel string         `json:"source_label"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit, err := parseLimit(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		instrument := r.URL.Query().Get("instrument")
		if instrument == "" {
			entries := h.ledger.Entries()
			if len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}
			writeJSON(w, http.StatusOK, entries)
			return
		}
		samples := h.ledger.QueryByInstrument(instrument, limit)
		out := make([]sampleView, 0, len(samples))
		for _, s := range samples {
			view := sampleView{Date: s.Date, Time: s.Time, Origin: s.Origin, SourceLabel: s.SourceLabel}
			if v, ok := s.Reading.Value(); ok {
				view.Value = &v
			}
			out = append(out, view)
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodDelete:
		cleared := len(h.ledger.Entries())
		h.ledger.Clear(r.Context())
		h.logAudit(r, "history.clear", "history", "", map[string]any{"entries": cleared})
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	entry := h.capturer.CaptureManual(r.Context())
	h.logAudit(r, "history.capture", "history_entry", entry.ID, map[string]any{"source_label": entry.SourceLabel})
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	instrument := r.URL.Query().Get("instrument")
	if instrument == "" {
		http.Error(w, "instrument is required", http.StatusBadRequest)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	samples := h.ledger.QueryByInstrument(instrument, limit)
	generatedAt := h.now()

	var (
		content     []byte
		contentType string
		ext         string
	)
	if r.URL.Path == "/api/v1/history/export.pdf" {
		content, err = export.BuildSamplesPDF(instrument, samples, generatedAt)
		contentType, ext = "application/pdf", "pdf"
	} else {
		content, err = export.BuildSamplesXLSX(instrument, samples, generatedAt)
		contentType, ext = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx"
	}
	if err != nil {
		h.logger.Printf("history export error: instrument=%s err=%v", instrument, err)
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", instrument+"."+ext))
	_, _ = w.Write(content)
}

func (h *Handler) logAudit(r *http.Request, action, resourceType, resourceID string, meta map[string]any) {
	if h.audit == nil {
		return
	}
	var payload any
	if meta != nil {
		payload = meta
	}
	if err := h.audit.Log(r.Context(), audit.FromRequest(r, action, resourceType, resourceID, payload)); err != nil {
		h.logger.Printf("audit log error: action=%s err=%v", action, err)
	}
}

func readTime(r *http.Request) (schedule.TimeOfDay, error) {
	value := r.URL.Query().Get("time")
	if value == "" && r.Body != nil {
		req := struct {
			Time string `json:"time"`
		}{}
		if err := decodeOptionalJSON(r, &req); err != nil {
			return schedule.TimeOfDay{}, errors.New("invalid json")
		}
		value = req.Time
	}
	if value == "" {
		return schedule.TimeOfDay{}, errors.New("time is required")
	}
	return schedule.ParseTimeOfDay(value)
}

func parseLimit(r *http.Request) (int, error) {
	value := r.URL.Query().Get("limit")
	if value == "" {
		return defaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return limit, nil
}

func decodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
