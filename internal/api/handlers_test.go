package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voltsight/twin-gateway/internal/engine"
	"github.com/voltsight/twin-gateway/internal/models"
	"github.com/voltsight/twin-gateway/internal/services"
	"github.com/voltsight/twin-gateway/internal/utils"
)

const nominalReply = "```json\n" + `{"rul":1450,"soh_score":92,"alert_level":"nominal","degradation_cause":"Low mileage and gentle charging.","recommendation":"Keep charging to 80%.","next_steps":"None required.","confidence":0.86}` + "\n```"

type verifierStub struct {
	calls int
	err   error
}

func (v *verifierStub) VerifyIDToken(_ context.Context, token string) (models.Identity, error) {
	v.calls++
	if v.err != nil {
		return models.Identity{}, v.err
	}
	return models.Identity{UID: "user-" + token, Email: "driver@example.com"}, nil
}

type modelStub struct {
	calls int
	reply string
	err   error
}

func (m *modelStub) Generate(ctx context.Context, prompt string, schema *engine.Schema, sampling engine.SamplingConfig) (string, error) {
	m.calls++
	return m.reply, m.err
}

type presetStub []models.BatteryPreset

func (p presetStub) List() []models.BatteryPreset { return p }

func (p presetStub) Lookup(id string) (models.BatteryPreset, bool) {
	for _, preset := range p {
		if strings.EqualFold(preset.ID, id) {
			return preset, true
		}
	}
	return models.BatteryPreset{}, false
}

type historyStub struct {
	req     models.ListAnalysesRequest
	records []models.AnalysisRecord
}

func (h *historyStub) SaveAnalysis(ctx context.Context, userID string, in models.GuidedInput, result models.PredictionResult) (models.AnalysisRecord, error) {
	record := models.AnalysisRecord{ID: "rec-new", UserID: userID, Input: in, Result: result}
	h.records = append(h.records, record)
	return record, nil
}

func (h *historyStub) ListAnalyses(ctx context.Context, req models.ListAnalysesRequest) ([]models.AnalysisRecord, error) {
	h.req = req
	return h.records, nil
}

type fixture struct {
	router   http.Handler
	verifier *verifierStub
	model    *modelStub
	logs     *bytes.Buffer
}

func newFixture(t *testing.T, model *modelStub, verifier *verifierStub) fixture {
	t.Helper()
	return newFixtureWithDeps(t, services.Dependencies{Model: model}, model, verifier)
}

func newFixtureWithDeps(t *testing.T, deps services.Dependencies, model *modelStub, verifier *verifierStub) fixture {
	t.Helper()
	logs := &bytes.Buffer{}
	logger := utils.NewLoggerTo(logs, "debug", true)
	svc := services.NewGatewayService(logger, deps, services.Options{Timeout: time.Second})
	presets := presetStub{{ID: "B-001-A", Name: "Tesla Model S", Model: "Panasonic 18650", InitialMetrics: models.BatteryMetrics{Voltage: 400.2, Current: 15.5, Temperature: 28.5}}}
	handlers := NewHandlers(logger, svc, presets)
	return fixture{
		router:   NewRouter(logger, handlers, verifier, nil),
		verifier: verifier,
		model:    model,
		logs:     logs,
	}
}

func analyzeRequest(body, authorization string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/analyze-guided", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	return req
}

const validBody = `{"vehicleModel":"Tesla Model 3","originalCapacityKwh":75,"odometerKm":50000,"chargingHabit":"Charge to 80%"}`

func TestAnalyzeGuidedSuccess(t *testing.T) {
	f := newFixture(t, &modelStub{reply: nominalReply}, &verifierStub{})

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, analyzeRequest(validBody, "Bearer good"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result models.PredictionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.SOHScore != 92 || result.AlertLevel != models.AlertNominal || result.RUL != 1450 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if f.model.calls != 1 {
		t.Fatalf("expected one model call, got %d", f.model.calls)
	}
	logs := f.logs.String()
	if !strings.Contains(logs, `"uid":"user-good"`) || !strings.Contains(logs, `"vehicle_model":"Tesla Model 3"`) {
		t.Fatalf("expected access log with uid and vehicle model, got %s", logs)
	}
}

func TestAnalyzeGuidedMissingToken(t *testing.T) {
	f := newFixture(t, &modelStub{reply: nominalReply}, &verifierStub{})

	for _, header := range []string{"", "Token abc", "Bearer "} {
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, analyzeRequest(validBody, header))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%q: expected 401, got %d", header, rec.Code)
		}
		if rec.Body.String() != msgUnauthorized {
			t.Fatalf("%q: unexpected body %q", header, rec.Body.String())
		}
	}
	if f.verifier.calls != 0 || f.model.calls != 0 {
		t.Fatalf("verifier and model must not be called, got %d/%d", f.verifier.calls, f.model.calls)
	}
}

func TestAnalyzeGuidedInvalidToken(t *testing.T) {
	f := newFixture(t, &modelStub{reply: nominalReply}, &verifierStub{err: errors.New("token expired")})

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, analyzeRequest(validBody, "Bearer expired"))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if rec.Body.String() != msgForbidden {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if f.model.calls != 0 {
		t.Fatalf("model must not be called for a rejected token")
	}
}

func TestAnalyzeGuidedMissingParameters(t *testing.T) {
	f := newFixture(t, &modelStub{reply: nominalReply}, &verifierStub{})

	bodies := []string{
		`{"vehicleModel":"Tesla Model 3","originalCapacityKwh":75,"chargingHabit":"Charge to 80%"}`,
		`{"vehicleModel":"","originalCapacityKwh":75,"odometerKm":50000,"chargingHabit":"Charge to 80%"}`,
		`{"vehicleModel":"Tesla Model 3","originalCapacityKwh":75,"odometerKm":0,"chargingHabit":"Charge to 80%"}`,
		`{"vehicleModel":"Tesla Model 3","originalCapacityKwh":-1,"odometerKm":50000,"chargingHabit":"Irregular"}`,
		`{"vehicleModel":`,
	}
	for _, body := range bodies {
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, analyzeRequest(body, "Bearer good"))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
		if rec.Body.String() != models.MissingParametersMessage {
			t.Fatalf("%s: unexpected body %q", body, rec.Body.String())
		}
	}
	if f.model.calls != 0 {
		t.Fatalf("model must not be called for invalid input")
	}
}

func TestAnalyzeGuidedPredictionFailure(t *testing.T) {
	cases := map[string]*modelStub{
		"non-json":       {reply: "I am unable to help with that."},
		"missing field":  {reply: `{"rul":1450,"soh_score":92,"alert_level":"nominal"}`},
		"upstream error": {err: errors.New("connection reset")},
	}
	for name, model := range cases {
		f := newFixture(t, model, &verifierStub{})

		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, analyzeRequest(validBody, "Bearer good"))

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("%s: expected 500, got %d", name, rec.Code)
		}
		if rec.Body.String() != msgAnalysisFailed {
			t.Fatalf("%s: unexpected body %q", name, rec.Body.String())
		}
		if strings.Contains(rec.Body.String(), "connection reset") {
			t.Fatalf("%s: upstream detail leaked", name)
		}
		if model.err != nil && !strings.Contains(f.logs.String(), "connection reset") {
			t.Fatalf("%s: upstream detail missing from server log: %s", name, f.logs.String())
		}
		if model.err == nil && !strings.Contains(f.logs.String(), "model reply rejected") {
			t.Fatalf("%s: rejected reply not logged: %s", name, f.logs.String())
		}
	}
}

func TestListAnalysesHistoryDisabled(t *testing.T) {
	f := newFixture(t, &modelStub{reply: nominalReply}, &verifierStub{})

	req := httptest.NewRequest(http.MethodGet, "/api/analyses", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound || rec.Body.String() != msgHistoryDisabled {
		t.Fatalf("expected 404 history disabled, got %d %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/analyses?limit=abc", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid limit, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/analyses", nil)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestPublicEndpoints(t *testing.T) {
	f := newFixture(t, &modelStub{reply: nominalReply}, &verifierStub{})

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batteries", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Batteries []models.BatteryPreset `json:"batteries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode batteries: %v", err)
	}
	if len(body.Batteries) != 1 || body.Batteries[0].ID != "B-001-A" {
		t.Fatalf("unexpected batteries: %+v", body.Batteries)
	}

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response: %d %s", rec.Code, rec.Body.String())
	}
	if f.verifier.calls != 0 {
		t.Fatalf("public endpoints must not verify tokens")
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, &modelStub{reply: nominalReply}, &verifierStub{})

	req := httptest.NewRequest(http.MethodOptions, "/api/analyze-guided", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("expected CORS headers on preflight, got %v", rec.Header())
	}
	if f.verifier.calls != 0 {
		t.Fatalf("preflight must not reach authentication")
	}
}

func TestListAnalysesWithHistory(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	history := &historyStub{records: []models.AnalysisRecord{{
		ID:        "rec-1",
		UserID:    "user-good",
		Input:     models.GuidedInput{VehicleModel: "Nissan Leaf", OriginalCapacityKwh: 40, OdometerKm: 90000, ChargingHabit: models.HabitIrregular},
		Result:    models.PredictionResult{RUL: 700, SOHScore: 78, AlertLevel: models.AlertWarning, Confidence: 0.7},
		CreatedAt: created,
	}}}
	model := &modelStub{reply: nominalReply}
	f := newFixtureWithDeps(t, services.Dependencies{Model: model, History: history}, model, &verifierStub{})

	req := httptest.NewRequest(http.MethodGet, "/api/analyses?limit=5&since=2026-01-01T00:00:00Z", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if history.req.UserID != "user-good" || history.req.Limit != 5 {
		t.Fatalf("unexpected list request: %+v", history.req)
	}
	if !history.req.Since.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("since not passed through: %v", history.req.Since)
	}

	var body struct {
		Analyses []models.AnalysisRecord `json:"analyses"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode analyses: %v", err)
	}
	if len(body.Analyses) != 1 || body.Analyses[0].ID != "rec-1" || body.Analyses[0].Result.AlertLevel != models.AlertWarning {
		t.Fatalf("unexpected analyses: %+v", body.Analyses)
	}
	if !body.Analyses[0].CreatedAt.Equal(created) {
		t.Fatalf("unexpected createdAt: %v", body.Analyses[0].CreatedAt)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/analyses?since=yesterday", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid since, got %d", rec.Code)
	}
}

func TestListAnalysesEmptyHistory(t *testing.T) {
	model := &modelStub{reply: nominalReply}
	f := newFixtureWithDeps(t, services.Dependencies{Model: model, History: &historyStub{}}, model, &verifierStub{})

	req := httptest.NewRequest(http.MethodGet, "/api/analyses", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"analyses":[]`) {
		t.Fatalf("expected empty array, got %s", rec.Body.String())
	}
}

func TestGetBattery(t *testing.T) {
	f := newFixture(t, &modelStub{reply: nominalReply}, &verifierStub{})

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batteries/b-001-a", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var preset models.BatteryPreset
	if err := json.Unmarshal(rec.Body.Bytes(), &preset); err != nil {
		t.Fatalf("decode preset: %v", err)
	}
	if preset.ID != "B-001-A" || preset.InitialMetrics.Voltage != 400.2 {
		t.Fatalf("unexpected preset: %+v", preset)
	}

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batteries/B-999-Z", nil))
	if rec.Code != http.StatusNotFound || rec.Body.String() != msgBatteryNotFound {
		t.Fatalf("expected 404, got %d %q", rec.Code, rec.Body.String())
	}
}
