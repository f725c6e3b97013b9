package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"fraud-detection-service/internal/model"
	"fraud-detection-service/internal/service"
)

type stubActivityWriter struct{ events int }

func (s *stubActivityWriter) InsertEvent(ctx context.Context, event *model.ActivityEvent) error {
	s.events++
	return nil
}

type stubSessionStore struct {
	open bool
}

func (s *stubSessionStore) CreateLoginSession(session *model.LoginSession) error {
	session.ID = "session-1"
	return nil
}

func (s *stubSessionStore) CloseOpenSession(employeeID int64) error { return nil }

func (s *stubSessionStore) GetLatestSession(employeeID int64) (*model.LoginSession, error) {
	if !s.open {
		return nil, nil
	}
	return &model.LoginSession{ID: "session-1", EmployeeID: employeeID}, nil
}

type stubEvaluator struct {
	summary *model.RiskSummary
	err     error
}

func (s *stubEvaluator) Evaluate(ctx context.Context, employeeID int64) (*model.RiskSummary, *model.FraudAlert, error) {
	return s.summary, nil, s.err
}

func (s *stubEvaluator) GetRiskScore(ctx context.Context, employeeID int64) (*model.RiskSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.summary == nil {
		return &model.RiskSummary{AlertLevel: model.AlertLevelLow, Factors: []model.RiskFactor{}}, nil
	}
	return s.summary, nil
}

func newTestRouter(sessions *stubSessionStore, detector *stubEvaluator) (chi.Router, *stubActivityWriter) {
	activity := &stubActivityWriter{}
	telemetry := service.NewTelemetryService(activity, sessions, nil, nil, detector, nil, nil, nil)
	h := NewTelemetryHandler(telemetry, detector, zap.NewNop())

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) { h.RegisterRoutes(r) })
	return router, activity
}

func doJSON(t *testing.T, router chi.Router, method, path string, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("response is not valid json: %v", err)
	}
	return rec, resp
}

func TestLogActivity(t *testing.T) {
	detector := &stubEvaluator{summary: &model.RiskSummary{RiskScore: 10, AlertLevel: model.AlertLevelLow}}

	tests := []struct {
		name       string
		body       string
		open       bool
		wantStatus int
		wantOK     bool
	}{
		{
			name:       "accepted",
			body:       `{"employee_id": 7, "mouse_count": 12}`,
			open:       true,
			wantStatus: http.StatusOK,
			wantOK:     true,
		},
		{
			name:       "malformed body",
			body:       `{"employee_id": `,
			open:       true,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing employee id",
			body:       `{"mouse_count": 12}`,
			open:       true,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "no open session",
			body:       `{"employee_id": 7}`,
			open:       false,
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(&stubSessionStore{open: tt.open}, detector)
			rec, resp := doJSON(t, router, http.MethodPost, "/api/log-activity", tt.body)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if resp.Success != tt.wantOK {
				t.Errorf("success = %v, want %v", resp.Success, tt.wantOK)
			}
		})
	}
}

func TestLogActivityPersists(t *testing.T) {
	detector := &stubEvaluator{summary: &model.RiskSummary{}}
	router, activity := newTestRouter(&stubSessionStore{open: true}, detector)

	rec, _ := doJSON(t, router, http.MethodPost, "/api/log-activity",
		`{"employee_id": 7, "mouse_count": 12, "window_title": "Terminal"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if activity.events != 1 {
		t.Errorf("%d events persisted, want 1", activity.events)
	}
}

func TestFraudScore(t *testing.T) {
	summary := &model.RiskSummary{
		RiskScore:  72.5,
		AlertLevel: model.AlertLevelMedium,
		Factors: []model.RiskFactor{
			{Type: model.FactorHighIdleTime, Severity: model.SeverityHigh, Description: "idle"},
		},
	}
	router, _ := newTestRouter(&stubSessionStore{open: true}, &stubEvaluator{summary: summary})

	rec, resp := doJSON(t, router, http.MethodGet, "/api/fraud-score/7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !resp.Success {
		t.Fatalf("success = false: %s", resp.Error)
	}

	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data type %T, want object", resp.Data)
	}
	if data["risk_score"] != 72.5 {
		t.Errorf("risk_score = %v, want 72.5", data["risk_score"])
	}
	if data["alert_level"] != string(model.AlertLevelMedium) {
		t.Errorf("alert_level = %v, want Medium", data["alert_level"])
	}
}

func TestFraudScoreInvalidID(t *testing.T) {
	router, _ := newTestRouter(&stubSessionStore{}, &stubEvaluator{})

	for _, path := range []string{"/api/fraud-score/abc", "/api/fraud-score/-1", "/api/fraud-score/0"} {
		rec, resp := doJSON(t, router, http.MethodGet, path, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
		if resp.Success {
			t.Errorf("%s: success = true, want false", path)
		}
	}
}

func TestFraudScoreFreshEmployeeReadsZeroRisk(t *testing.T) {
	router, _ := newTestRouter(&stubSessionStore{}, &stubEvaluator{summary: nil})

	rec, resp := doJSON(t, router, http.MethodGet, "/api/fraud-score/7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for a fresh employee", rec.Code)
	}
	if !resp.Success {
		t.Fatalf("success = false: %s", resp.Error)
	}

	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data type %T, want object", resp.Data)
	}
	if data["risk_score"] != float64(0) {
		t.Errorf("risk_score = %v, want 0", data["risk_score"])
	}
	if data["alert_level"] != string(model.AlertLevelLow) {
		t.Errorf("alert_level = %v, want Low", data["alert_level"])
	}
}

func TestLogLogin(t *testing.T) {
	router, _ := newTestRouter(&stubSessionStore{}, &stubEvaluator{})

	rec, resp := doJSON(t, router, http.MethodPost, "/api/log-login",
		`{"employee_id": 7, "ip_address": "10.0.0.5", "device_id": "ws-0042"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data type %T, want session object", resp.Data)
	}
	if data["id"] != "session-1" {
		t.Errorf("session id = %v, want session-1", data["id"])
	}
}

func TestLogLogout(t *testing.T) {
	router, _ := newTestRouter(&stubSessionStore{open: true}, &stubEvaluator{})

	rec, resp := doJSON(t, router, http.MethodPost, "/api/log-logout", `{"employee_id": 7}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !resp.Success {
		t.Errorf("success = false: %s", resp.Error)
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrEmployeeNotFound, http.StatusNotFound},
		{service.ErrSessionInactive, http.StatusForbidden},
		{service.ErrRateLimited, http.StatusTooManyRequests},
		{service.ErrInsufficientData, http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusForError(tt.err); got != tt.want {
			t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
