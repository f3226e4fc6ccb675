package apihttp

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plantwatch/internal/audit"
	"plantwatch/internal/datasource/infrastructure/memory"
	historyapp "plantwatch/internal/history/application"
	history "plantwatch/internal/history/domain"
	historyfile "plantwatch/internal/history/infrastructure/file"
	plant "plantwatch/internal/plant/domain"
	rotationapp "plantwatch/internal/rotation/application"
	scheduleapp "plantwatch/internal/schedule/application"
	schedulefile "plantwatch/internal/schedule/infrastructure/file"
)

type ledgerCapturer struct {
	ledger  *historyapp.Ledger
	rotator *rotationapp.Rotator
}

func (c ledgerCapturer) CaptureManual(ctx context.Context) history.Entry {
	return c.ledger.Append(ctx, c.rotator.Current().Snapshot, history.OriginManual, "Manual test")
}

type memoryAudit struct {
	entries []audit.Entry
}

func (m *memoryAudit) Log(_ context.Context, entry audit.Entry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryAudit) actions() []string {
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Action
	}
	return out
}

type testServer struct {
	mux     *http.ServeMux
	audit   *memoryAudit
	rotator *rotationapp.Rotator
	ledger  *historyapp.Ledger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := log.New(io.Discard, "", 0)
	dir := t.TempDir()

	source := memory.NewSource(
		plant.Snapshot{plant.KeyTemperature: plant.Present(21), plant.KeyHumidity: plant.FromRaw(0)},
		plant.Snapshot{plant.KeyTemperature: plant.Present(22)},
		plant.Snapshot{plant.KeyTemperature: plant.Present(23)},
	)
	rotator := rotationapp.NewRotator(source, logger)
	rotator.Tick(ctx, time.Now())

	timeStore, err := schedulefile.NewTimeStore(filepath.Join(dir, "alarms.json"))
	require.NoError(t, err)
	scheduler, err := scheduleapp.NewScheduler(ctx, timeStore, logger)
	require.NoError(t, err)

	ledgerStore, err := historyfile.NewLedgerStore(filepath.Join(dir, "history.json"))
	require.NoError(t, err)
	ledger, err := historyapp.NewLedger(ctx, ledgerStore, logger)
	require.NoError(t, err)

	auditLog := &memoryAudit{}
	handler, err := NewHandler(Deps{
		Rotator:   rotator,
		Scheduler: scheduler,
		Ledger:    ledger,
		Capturer:  ledgerCapturer{ledger: ledger, rotator: rotator},
		Audit:     auditLog,
		Logger:    logger,
	})
	require.NoError(t, err)
	mux := http.NewServeMux()
	handler.Register(mux)
	return &testServer{mux: mux, audit: auditLog, rotator: rotator, ledger: ledger}
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	resp := httptest.NewRecorder()
	s.mux.ServeHTTP(resp, httptest.NewRequest(method, target, reader))
	return resp
}

func TestLiveReportsAbsentAsNull(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(http.MethodGet, "/api/v1/live", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var view struct {
		Snapshot map[string]*float64 `json:"snapshot"`
		Label    string              `json:"label"`
		Cursor   struct {
			Row   int `json:"row"`
			Total int `json:"total"`
		} `json:"cursor"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &view))
	assert.Equal(t, "Row 1 of 3", view.Label)
	assert.Equal(t, 3, view.Cursor.Total)
	require.NotNil(t, view.Snapshot[plant.KeyTemperature])
	assert.Equal(t, 21.0, *view.Snapshot[plant.KeyTemperature])
	assert.Nil(t, view.Snapshot[plant.KeyHumidity])
}

func TestRotationStepAndCycle(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(http.MethodPost, "/api/v1/rotation/step", `{"delta":-1}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"label":"Manual: Row 3 of 3"`)

	resp = s.do(http.MethodPost, "/api/v1/rotation/step", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 0, s.rotator.Cursor().Index)

	resp = s.do(http.MethodPost, "/api/v1/rotation/cycle", `{"active":false}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.False(t, s.rotator.Cursor().CycleActive)

	resp = s.do(http.MethodPost, "/api/v1/rotation/cycle", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestScheduleTimesLifecycle(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(http.MethodPost, "/api/v1/schedule/times", `{"time":"08:00 AM"}`)
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Contains(t, resp.Body.String(), `"times":["08:00"]`)

	resp = s.do(http.MethodPost, "/api/v1/schedule/times", `{"time":"08:00"}`)
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = s.do(http.MethodPost, "/api/v1/schedule/times", `{"time":"25:00"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = s.do(http.MethodPost, "/api/v1/schedule/running", `{"running":true}`)
	assert.Equal(t, http.StatusConflict, resp.Code)
	resp = s.do(http.MethodPost, "/api/v1/schedule/running", `{"running":false}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"running":false`)

	resp = s.do(http.MethodDelete, "/api/v1/schedule/times?time=08:00", "")
	assert.Equal(t, http.StatusNoContent, resp.Code)
	resp = s.do(http.MethodDelete, "/api/v1/schedule/times?time=08:00", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestHistoryCaptureQueryAndClear(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(http.MethodPost, "/api/v1/history/capture", "")
	require.Equal(t, http.StatusCreated, resp.Code)
	s.rotator.StepManual(context.Background(), 1)
	s.do(http.MethodPost, "/api/v1/history/capture", "")

	resp = s.do(http.MethodGet, "/api/v1/history?instrument="+plant.KeyTemperature+"&limit=5", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var samples []struct {
		Value *float64 `json:"value"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &samples))
	require.Len(t, samples, 2)
	assert.Equal(t, 21.0, *samples[0].Value)
	assert.Equal(t, 22.0, *samples[1].Value)

	resp = s.do(http.MethodGet, "/api/v1/history?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = s.do(http.MethodGet, "/api/v1/history?limit=1", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var entries []history.Entry
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &entries))
	assert.Len(t, entries, 1)

	resp = s.do(http.MethodDelete, "/api/v1/history", "")
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Zero(t, s.ledger.Len())

	assert.Equal(t, []string{"history.capture", "history.capture", "history.clear"}, s.audit.actions())
	assert.JSONEq(t, `{"entries":2}`, string(s.audit.entries[2].Metadata))
}

func TestHistoryExport(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodPost, "/api/v1/history/capture", "")

	resp := s.do(http.MethodGet, "/api/v1/history/export.pdf?instrument="+plant.KeyTemperature, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/pdf", resp.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(resp.Body.String(), "%PDF"))

	resp = s.do(http.MethodGet, "/api/v1/history/export.xlsx?instrument="+plant.KeyTemperature, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, strings.HasPrefix(resp.Body.String(), "PK"))

	resp = s.do(http.MethodGet, "/api/v1/history/export.xlsx", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
