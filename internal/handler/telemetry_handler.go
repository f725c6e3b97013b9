package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"fraud-detection-service/internal/model"
	"fraud-detection-service/internal/service"
	"fraud-detection-service/internal/util"
)

// TelemetryHandler handles the agent-facing HTTP surface: activity reports,
// session lifecycle, and on-demand risk scoring.
type TelemetryHandler struct {
	telemetry *service.TelemetryService
	detector  service.RiskScorer
	logger    *zap.Logger
}

func NewTelemetryHandler(telemetry *service.TelemetryService, detector service.RiskScorer, logger *zap.Logger) *TelemetryHandler {
	return &TelemetryHandler{
		telemetry: telemetry,
		detector:  detector,
		logger:    logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// RegisterRoutes registers the agent-facing routes
func (h *TelemetryHandler) RegisterRoutes(router chi.Router) {
	router.Post("/log-activity", h.LogActivity)
	router.Post("/log-login", h.LogLogin)
	router.Post("/log-logout", h.LogLogout)
	router.Get("/fraud-score/{employeeID}", h.FraudScore)
}

// LogActivity accepts one telemetry report from a desktop agent.
func (h *TelemetryHandler) LogActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var event model.ActivityEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		respondWithError(h.logger, w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if event.EmployeeID <= 0 {
		respondWithError(h.logger, w, http.StatusBadRequest,
			errors.New("employee_id is required"), "Missing employee ID")
		return
	}

	if err := h.telemetry.Ingest(ctx, &event); err != nil {
		respondWithError(h.logger, w, statusForError(err), err, "Activity report rejected")
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, successResponse(nil, "Activity logged"))
	h.logger.Debug("Activity logged via HTTP",
		util.Int64("employee_id", event.EmployeeID),
		util.Duration("duration", time.Since(startTime)),
	)
}

// FraudScore scores an employee on demand and returns the live summary. The
// read never raises an alert; too little data reads as zero risk.
func (h *TelemetryHandler) FraudScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	employeeID, err := parseEmployeeID(chi.URLParam(r, "employeeID"))
	if err != nil {
		respondWithError(h.logger, w, http.StatusBadRequest, err, "Invalid employee ID")
		return
	}

	summary, err := h.detector.GetRiskScore(ctx, employeeID)
	if err != nil {
		respondWithError(h.logger, w, statusForError(err), err, "Failed to evaluate employee")
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, successResponse(summary, "Employee evaluated"))
	h.logger.Debug("Fraud score served",
		util.Int64("employee_id", employeeID),
		util.Float64("risk_score", summary.RiskScore),
		util.Duration("duration", time.Since(startTime)),
	)
}

type loginRequest struct {
	EmployeeID int64  `json:"employee_id"`
	IPAddress  string `json:"ip_address"`
	DeviceID   string `json:"device_id"`
}

// LogLogin opens a session for the employee.
func (h *TelemetryHandler) LogLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(h.logger, w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.EmployeeID <= 0 {
		respondWithError(h.logger, w, http.StatusBadRequest,
			errors.New("employee_id is required"), "Missing employee ID")
		return
	}
	if req.IPAddress == "" {
		req.IPAddress = r.RemoteAddr
	}

	session, err := h.telemetry.Login(ctx, req.EmployeeID, req.IPAddress, req.DeviceID)
	if err != nil {
		respondWithError(h.logger, w, statusForError(err), err, "Failed to log login")
		return
	}

	respondWithJSON(h.logger, w, http.StatusCreated, successResponse(session, "Login recorded"))
	h.logger.Info("Login recorded via HTTP",
		util.Int64("employee_id", req.EmployeeID),
		util.String("session_id", session.ID),
	)
}

type logoutRequest struct {
	EmployeeID int64 `json:"employee_id"`
}

// LogLogout closes the employee's open session.
func (h *TelemetryHandler) LogLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(h.logger, w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.EmployeeID <= 0 {
		respondWithError(h.logger, w, http.StatusBadRequest,
			errors.New("employee_id is required"), "Missing employee ID")
		return
	}

	if err := h.telemetry.Logout(ctx, req.EmployeeID); err != nil {
		respondWithError(h.logger, w, statusForError(err), err, "Failed to log logout")
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, successResponse(nil, "Logout recorded"))
	h.logger.Info("Logout recorded via HTTP", util.Int64("employee_id", req.EmployeeID))
}

func parseEmployeeID(raw string) (int64, error) {
	employeeID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || employeeID <= 0 {
		return 0, errors.New("employee ID must be a positive integer")
	}
	return employeeID, nil
}

// respondWithJSON writes a JSON response
func respondWithJSON(logger *zap.Logger, w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response
func respondWithError(logger *zap.Logger, w http.ResponseWriter, statusCode int, err error, message string) {
	logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	respondWithJSON(logger, w, statusCode, errorResponse(err, message))
}

// statusForError determines the appropriate HTTP status code for an error
func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrEmployeeNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSessionInactive):
		return http.StatusForbidden
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
