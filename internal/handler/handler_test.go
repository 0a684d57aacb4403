package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/hackathon-reg/internal/lifecycle"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/logger"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/model"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/repository"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/runlog"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/service"
)

type testServer struct {
	t      *testing.T
	router http.Handler
	events *repository.MemoryEventRepository
	regs   *repository.MemoryRegistrationRepository
	now    time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{t: t, now: time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)}
	ts.events, ts.regs = repository.NewMemory()

	runs := runlog.NewMemory()
	engine, err := lifecycle.New(ts.events, ts.regs, nil,
		lifecycle.WithClock(func() time.Time { return ts.now }),
		lifecycle.WithRecorder(runs),
	)
	require.NoError(t, err)

	log := logger.Discard()
	svc := service.NewEventService(ts.events, ts.regs, engine, log)
	ts.router = NewRouter(NewEventHandler(svc), NewReconcileHandler(engine, runs, log), log, 5*time.Second, nil)
	return ts
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (ts *testServer) createEvent(capacity int) model.EventView {
	rec := ts.do(http.MethodPost, "/events", map[string]any{
		"name":                  "Winter Hack",
		"max_participants":      capacity,
		"registration_deadline": "2025-11-12T23:59:59Z",
		"start_date":            "2025-11-15T09:00:00Z",
		"end_date":              "2025-11-17T17:00:00Z",
	})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.EventView](ts.t, rec)
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateAndGetEvent(t *testing.T) {
	ts := newTestServer(t)
	ev := ts.createEvent(10)
	assert.Equal(t, model.EventRegistrationOpen, ev.Status)

	rec := ts.do(http.MethodGet, "/events/"+ev.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[model.EventView](t, rec)
	assert.Equal(t, ev.ID, got.ID)
	require.NotNil(t, got.Classification)
	assert.True(t, got.Classification.CanRegister)

	rec = ts.do(http.MethodGet, "/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.EventView](t, rec), 1)

	rec = ts.do(http.MethodGet, "/events/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEvents_EmptyIsArray(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCreateEvent_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/events", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/events", `{"name":"x","unknown":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/events", map[string]any{
		"name":                  "Backwards",
		"registration_deadline": "2025-11-16T00:00:00Z",
		"start_date":            "2025-11-15T09:00:00Z",
		"end_date":              "2025-11-17T17:00:00Z",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[model.ErrorResponse](t, rec).Error, "startdate")
}

func TestEventStatus(t *testing.T) {
	ts := newTestServer(t)
	ev := ts.createEvent(10)

	ts.now = time.Date(2025, 11, 13, 0, 0, 0, 0, time.UTC)
	rec := ts.do(http.MethodGet, "/events/"+ev.ID+"/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, model.EventRegistrationOpen, body.StoredStatus)
	assert.Equal(t, model.EventRegistrationClosed, body.Classification.Status)
	assert.False(t, body.InSync)
}

func TestRegistrationFlow(t *testing.T) {
	ts := newTestServer(t)
	ev := ts.createEvent(1)

	rec := ts.do(http.MethodPost, "/events/"+ev.ID+"/register", model.RegisterRequest{UserID: "u1", UserEmail: "a@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reg := decode[model.Registration](t, rec)

	rec = ts.do(http.MethodPost, "/events/"+ev.ID+"/register", model.RegisterRequest{UserID: "u1", UserEmail: "a@example.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodPost, "/events/"+ev.ID+"/register", model.RegisterRequest{UserID: "u2", UserEmail: "b@example.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "event is fully booked", decode[model.ErrorResponse](t, rec).Error)

	rec = ts.do(http.MethodPut, "/registrations/"+reg.ID+"/payment", model.PaymentUpdateRequest{PaymentStatus: model.PaymentCompleted})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.RegistrationConfirmed, decode[model.Registration](t, rec).Status)

	rec = ts.do(http.MethodPut, "/registrations/nope/payment", model.PaymentUpdateRequest{PaymentStatus: model.PaymentCompleted})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodGet, "/events/"+ev.ID+"/registrations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Registration](t, rec), 1)

	rec = ts.do(http.MethodPost, "/events/nope/register", model.RegisterRequest{UserID: "u3", UserEmail: "c@example.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegister_AfterDeadline(t *testing.T) {
	ts := newTestServer(t)
	ev := ts.createEvent(0)

	ts.now = time.Date(2025, 11, 13, 0, 0, 0, 0, time.UTC)
	rec := ts.do(http.MethodPost, "/events/"+ev.ID+"/register", model.RegisterRequest{UserID: "u1", UserEmail: "a@example.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, service.ErrRegistrationClosed.Error(), decode[model.ErrorResponse](t, rec).Error)
}

func TestCancelEvent(t *testing.T) {
	ts := newTestServer(t)
	ev := ts.createEvent(0)

	rec := ts.do(http.MethodPost, "/events/"+ev.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.EventCancelled, decode[model.EventView](t, rec).Status)

	rec = ts.do(http.MethodPost, "/events/"+ev.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodPost, "/events/nope/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClassify(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/classify", map[string]any{
		"registration_deadline": "12/11/2025 23:59:59",
		"start_date":            "2025-11-15T09:00:00Z",
		"end_date":              "2025-11-17T17:00:00Z",
		"now":                   "2025-11-13T00:00:00Z",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[classifyResponse](t, rec)
	assert.Equal(t, model.EventRegistrationClosed, body.Classification.Status)
	assert.Equal(t, model.PhasePreEventClosed, body.Classification.Phase)
	assert.Empty(t, body.Issue)

	rec = ts.do(http.MethodPost, "/classify", map[string]any{
		"registration_deadline": "2025-11-18T00:00:00Z",
		"start_date":            "2025-11-15T09:00:00Z",
		"end_date":              "2025-11-17T17:00:00Z",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[classifyResponse](t, rec)
	assert.Equal(t, model.PhaseInvalidSchedule, body.Classification.Phase)
	assert.NotEmpty(t, body.Issue)

	rec = ts.do(http.MethodPost, "/classify", map[string]any{
		"registration_deadline": "someday",
		"start_date":            "2025-11-15T09:00:00Z",
		"end_date":              "2025-11-17T17:00:00Z",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestReconciliationEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ev := ts.createEvent(0)

	rec := ts.do(http.MethodGet, "/reconciliation/last", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.now = time.Date(2025, 11, 13, 0, 0, 0, 0, time.UTC)

	rec = ts.do(http.MethodGet, "/reconciliation/preview", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	preview := decode[lifecycle.Preview](t, rec)
	assert.Equal(t, 1, preview.NeedsUpdateCount)
	require.Len(t, preview.Updates, 1)
	assert.Equal(t, ev.ID, preview.Updates[0].EventID)

	rec = ts.do(http.MethodPost, "/reconciliation/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	run := decode[lifecycle.RunResult](t, rec)
	assert.Equal(t, 1, run.Updated)

	rec = ts.do(http.MethodGet, "/reconciliation/last", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[lifecycle.RunResult](t, rec).Updated)

	rec = ts.do(http.MethodPost, "/reconciliation/sweep?event_id="+ev.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodPost, "/reconciliation/sweep?event_id=nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodPost, "/reconciliation/aggregates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]lifecycle.AggregateResult](t, rec), 1)

	rec = ts.do(http.MethodPost, "/reconciliation/aggregates?event_id=nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReconciliationHistory(t *testing.T) {
	ts := newTestServer(t)
	ts.createEvent(0)

	rec := ts.do(http.MethodGet, "/reconciliation/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]lifecycle.RunResult](t, rec))

	ts.now = time.Date(2025, 11, 13, 0, 0, 0, 0, time.UTC)
	for range 3 {
		require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/reconciliation/run", nil).Code)
	}

	rec = ts.do(http.MethodGet, "/reconciliation/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]lifecycle.RunResult](t, rec)
	require.Len(t, runs, 3)
	// Newest first: only the oldest pass changed the event.
	assert.Zero(t, runs[0].Updated)
	assert.Equal(t, 1, runs[2].Updated)

	rec = ts.do(http.MethodGet, "/reconciliation/history?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]lifecycle.RunResult](t, rec), 2)

	for _, limit := range []string{"0", "-1", "many"} {
		rec = ts.do(http.MethodGet, "/reconciliation/history?limit="+limit, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, limit)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodOptions, "/events", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
