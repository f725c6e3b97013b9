package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"fraud-detection-service/internal/model"
	"fraud-detection-service/internal/util"
)

// EmployeeDirectory is the read side of the employee roster.
type EmployeeDirectory interface {
	GetEmployeeByID(employeeID int64) (*model.Employee, error)
	ListEmployees() ([]model.Employee, error)
	CountEmployees() (int64, error)
}

// SessionCounter counts currently active employees.
type SessionCounter interface {
	CountActiveEmployees(window time.Duration) (int64, error)
}

// AlertReader is the read side of the alert store.
type AlertReader interface {
	RecentAlerts(ctx context.Context, limit int) ([]model.FraudAlert, error)
	CountCriticalAlerts(ctx context.Context) (int64, error)
	RiskDistribution(ctx context.Context) (map[model.AlertLevel]int64, error)
	LatestAlertPerEmployee(ctx context.Context) (map[int64]model.FraudAlert, error)
}

// ActivityAggregator is the aggregate-query side of the activity store.
type ActivityAggregator interface {
	Summary(ctx context.Context, employeeID int64) (*model.ActivitySummary, error)
	RecentEvents(ctx context.Context, employeeID int64, limit int) ([]model.ActivityEvent, error)
	HourlyActivity(ctx context.Context) ([]model.HourlyActivity, error)
	AvgProductivityToday(ctx context.Context) (float64, error)
	EmployeeProductivity(ctx context.Context, employeeID int64) (float64, error)
}

// activeWindow bounds how recent a login must be to count an employee as
// active on the dashboard.
const activeWindow = time.Hour

// csvTimeLayout matches the alert export format downstream tooling parses.
const csvTimeLayout = "2006-01-02 15:04:05"

// ReportingService serves the admin dashboard, alert listings, the CSV
// export, and per-employee summaries.
type ReportingService struct {
	employees EmployeeDirectory
	sessions  SessionCounter
	alerts    AlertReader
	activity  ActivityAggregator
}

func NewReportingService(
	employees EmployeeDirectory,
	sessions SessionCounter,
	alerts AlertReader,
	activity ActivityAggregator,
) *ReportingService {
	return &ReportingService{
		employees: employees,
		sessions:  sessions,
		alerts:    alerts,
		activity:  activity,
	}
}

// Dashboard assembles the admin header stats, fanning the four independent
// queries out in parallel.
func (s *ReportingService) Dashboard(ctx context.Context) (*model.DashboardStats, error) {
	stats := &model.DashboardStats{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		count, err := s.alerts.CountCriticalAlerts(ctx)
		stats.CriticalAlerts = count
		return err
	})
	g.Go(func() error {
		count, err := s.employees.CountEmployees()
		stats.TotalEmployees = count
		return err
	})
	g.Go(func() error {
		count, err := s.sessions.CountActiveEmployees(activeWindow)
		stats.ActiveEmployees = count
		return err
	})
	g.Go(func() error {
		avg, err := s.activity.AvgProductivityToday(ctx)
		stats.AvgProductivity = math.Round(avg*10) / 10
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to assemble dashboard: %w", err)
	}
	return stats, nil
}

// DashboardView is the full admin dashboard payload: header stats plus the
// chart series rendered alongside them.
type DashboardView struct {
	Stats            *model.DashboardStats      `json:"stats"`
	HourlyData       []model.HourlyActivity     `json:"hourly_data"`
	RiskDistribution map[model.AlertLevel]int64 `json:"risk_distribution"`
}

func (s *ReportingService) DashboardView(ctx context.Context) (*DashboardView, error) {
	view := &DashboardView{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		stats, err := s.Dashboard(ctx)
		view.Stats = stats
		return err
	})
	g.Go(func() error {
		hourly, err := s.activity.HourlyActivity(ctx)
		view.HourlyData = hourly
		return err
	})
	g.Go(func() error {
		distribution, err := s.alerts.RiskDistribution(ctx)
		view.RiskDistribution = distribution
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return view, nil
}

// Alerts lists recent alerts joined with employee identity. Employees
// missing from the roster keep their alert with placeholder identity.
func (s *ReportingService) Alerts(ctx context.Context, limit int) ([]model.AlertRecord, error) {
	alerts, err := s.alerts.RecentAlerts(ctx, limit)
	if err != nil {
		return nil, err
	}

	roster, err := s.rosterByID()
	if err != nil {
		return nil, err
	}

	records := make([]model.AlertRecord, 0, len(alerts))
	for _, alert := range alerts {
		record := model.AlertRecord{
			FraudAlert:   alert,
			EmployeeName: "Unknown",
			EmployeeRole: "Unknown",
		}
		if employee, ok := roster[alert.EmployeeID]; ok {
			record.EmployeeName = employee.Name
			record.EmployeeRole = employee.Role
		}
		records = append(records, record)
	}
	return records, nil
}

// ExportAlertsCSV streams the full alert history as CSV. Column order is a
// stable contract with the report tooling that consumes the export.
func (s *ReportingService) ExportAlertsCSV(ctx context.Context, w io.Writer) error {
	records, err := s.Alerts(ctx, 0)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	header := []string{
		"id", "employee_id", "employee_name", "employee_role",
		"risk_score", "alert_level", "description", "timestamp",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, record := range records {
		row := []string{
			record.ID,
			strconv.FormatInt(record.EmployeeID, 10),
			record.EmployeeName,
			record.EmployeeRole,
			strconv.FormatFloat(record.RiskScore, 'f', 2, 64),
			string(record.AlertLevel),
			record.Description,
			record.Timestamp.UTC().Format(csvTimeLayout),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}

	util.Info("Alert export generated", util.Int("rows", len(records)))
	return nil
}

// EmployeeSummary is the per-employee profile view: identity, lifetime
// activity totals, productivity percentage, and the newest telemetry row.
type EmployeeSummary struct {
	Employee     model.Employee        `json:"employee"`
	Activity     model.ActivitySummary `json:"activity"`
	Productivity float64               `json:"productivity"`
	LatestEvent  *model.ActivityEvent  `json:"latest_event,omitempty"`
}

func (s *ReportingService) EmployeeSummary(ctx context.Context, employeeID int64) (*EmployeeSummary, error) {
	employee, err := s.employees.GetEmployeeByID(employeeID)
	if err != nil {
		return nil, ErrEmployeeNotFound
	}

	summary := &EmployeeSummary{Employee: *employee}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		activity, err := s.activity.Summary(ctx, employeeID)
		if err == nil {
			summary.Activity = *activity
		}
		return err
	})
	g.Go(func() error {
		productivity, err := s.activity.EmployeeProductivity(ctx, employeeID)
		summary.Productivity = productivity
		return err
	})
	g.Go(func() error {
		events, err := s.activity.RecentEvents(ctx, employeeID, 1)
		if err == nil && len(events) > 0 {
			summary.LatestEvent = &events[0]
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to assemble employee summary: %w", err)
	}
	return summary, nil
}

// AnomalyData feeds the admin charts: hourly activity trend, the alert level
// distribution, and each employee ranked by their latest alert.
type AnomalyData struct {
	HourlyActivity   []model.HourlyActivity     `json:"hourly_activity"`
	RiskDistribution map[model.AlertLevel]int64 `json:"risk_distribution"`
	EmployeeRisks    []model.EmployeeRisk       `json:"employee_risks"`
}

func (s *ReportingService) AnomalyData(ctx context.Context) (*AnomalyData, error) {
	data := &AnomalyData{}
	var latest map[int64]model.FraudAlert
	var roster []model.Employee

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hourly, err := s.activity.HourlyActivity(ctx)
		data.HourlyActivity = hourly
		return err
	})
	g.Go(func() error {
		distribution, err := s.alerts.RiskDistribution(ctx)
		data.RiskDistribution = distribution
		return err
	})
	g.Go(func() error {
		m, err := s.alerts.LatestAlertPerEmployee(ctx)
		latest = m
		return err
	})
	g.Go(func() error {
		employees, err := s.employees.ListEmployees()
		roster = employees
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to assemble anomaly data: %w", err)
	}

	data.EmployeeRisks = make([]model.EmployeeRisk, 0, len(roster))
	for _, employee := range roster {
		entry := model.EmployeeRisk{
			Employee:   employee,
			AlertLevel: model.AlertLevelLow,
		}
		if alert, ok := latest[employee.ID]; ok {
			entry.LatestRiskScore = alert.RiskScore
			entry.AlertLevel = alert.AlertLevel
		}
		data.EmployeeRisks = append(data.EmployeeRisks, entry)
	}
	return data, nil
}

// ActivitySummary aggregates one employee's full activity history for the
// live employee dashboard push.
func (s *ReportingService) ActivitySummary(ctx context.Context, employeeID int64) (*model.ActivitySummary, error) {
	return s.activity.Summary(ctx, employeeID)
}

// LatestAlert returns the most recent persisted alert, or nil when none
// exists yet.
func (s *ReportingService) LatestAlert(ctx context.Context) (*model.FraudAlert, error) {
	alerts, err := s.alerts.RecentAlerts(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, nil
	}
	return &alerts[0], nil
}

// AtRiskEmployees returns the roster ranked by each employee's latest risk
// score, highest first.
func (s *ReportingService) AtRiskEmployees(ctx context.Context) ([]model.EmployeeRisk, error) {
	data, err := s.AnomalyData(ctx)
	if err != nil {
		return nil, err
	}
	risks := data.EmployeeRisks
	sort.SliceStable(risks, func(i, j int) bool {
		return risks[i].LatestRiskScore > risks[j].LatestRiskScore
	})
	return risks, nil
}

func (s *ReportingService) rosterByID() (map[int64]model.Employee, error) {
	employees, err := s.employees.ListEmployees()
	if err != nil {
		return nil, err
	}
	roster := make(map[int64]model.Employee, len(employees))
	for _, employee := range employees {
		roster[employee.ID] = employee
	}
	return roster, nil
}
