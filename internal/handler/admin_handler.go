package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"fraud-detection-service/internal/service"
	"fraud-detection-service/internal/util"
)

// defaultAlertLimit caps the alert listing unless the caller asks otherwise.
const defaultAlertLimit = 50

// AdminHandler serves the admin console: dashboard stats, alert listings,
// the CSV export, and chart data.
type AdminHandler struct {
	reporting *service.ReportingService
	logger    *zap.Logger
}

func NewAdminHandler(reporting *service.ReportingService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		reporting: reporting,
		logger:    logger,
	}
}

// RegisterRoutes registers the admin console routes
func (h *AdminHandler) RegisterRoutes(router chi.Router) {
	router.Route("/admin", func(r chi.Router) {
		r.Get("/dashboard", h.Dashboard)
		r.Get("/alerts", h.Alerts)
		r.Get("/export", h.ExportAlerts)
	})
	router.Get("/employee-summary/{employeeID}", h.EmployeeSummary)
	router.Get("/anomaly-data", h.AnomalyData)
}

func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	view, err := h.reporting.DashboardView(ctx)
	if err != nil {
		respondWithError(h.logger, w, statusForError(err), err, "Failed to assemble dashboard")
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, successResponse(view, "Dashboard assembled"))
	h.logger.Debug("Dashboard served", util.Duration("duration", time.Since(startTime)))
}

func (h *AdminHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := defaultAlertLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondWithError(h.logger, w, http.StatusBadRequest, err, "Invalid limit")
			return
		}
		limit = parsed
	}

	records, err := h.reporting.Alerts(ctx, limit)
	if err != nil {
		respondWithError(h.logger, w, statusForError(err), err, "Failed to list alerts")
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, successResponse(records, "Alerts listed"))
}

// ExportAlerts streams the full alert history as a CSV attachment.
func (h *AdminHandler) ExportAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	filename := "fraud_alerts_" + time.Now().UTC().Format("20060102_150405") + ".csv"
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	if err := h.reporting.ExportAlertsCSV(ctx, w); err != nil {
		// Headers may already be gone; log rather than switching to JSON.
		h.logger.Error("Failed to stream alert export", util.ErrorField(err))
		return
	}

	h.logger.Info("Alert export served",
		util.String("filename", filename),
		util.Duration("duration", time.Since(startTime)),
	)
}

func (h *AdminHandler) EmployeeSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	employeeID, err := parseEmployeeID(chi.URLParam(r, "employeeID"))
	if err != nil {
		respondWithError(h.logger, w, http.StatusBadRequest, err, "Invalid employee ID")
		return
	}

	summary, err := h.reporting.EmployeeSummary(ctx, employeeID)
	if err != nil {
		respondWithError(h.logger, w, statusForError(err), err, "Failed to assemble employee summary")
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, successResponse(summary, "Employee summary assembled"))
}

func (h *AdminHandler) AnomalyData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data, err := h.reporting.AnomalyData(ctx)
	if err != nil {
		respondWithError(h.logger, w, statusForError(err), err, "Failed to assemble anomaly data")
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, successResponse(data, "Anomaly data assembled"))
}
