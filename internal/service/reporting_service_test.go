package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"fraud-detection-service/internal/model"
)

type fakeDirectory struct {
	employees []model.Employee
	err       error
}

func (f *fakeDirectory) GetEmployeeByID(employeeID int64) (*model.Employee, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.employees {
		if f.employees[i].ID == employeeID {
			return &f.employees[i], nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeDirectory) ListEmployees() ([]model.Employee, error) {
	return f.employees, f.err
}

func (f *fakeDirectory) CountEmployees() (int64, error) {
	return int64(len(f.employees)), f.err
}

type fakeSessionCounter struct {
	active int64
	err    error
}

func (f *fakeSessionCounter) CountActiveEmployees(window time.Duration) (int64, error) {
	return f.active, f.err
}

type fakeAlertReader struct {
	alerts   []model.FraudAlert
	critical int64
	dist     map[model.AlertLevel]int64
	latest   map[int64]model.FraudAlert
	err      error
}

func (f *fakeAlertReader) RecentAlerts(ctx context.Context, limit int) ([]model.FraudAlert, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && len(f.alerts) > limit {
		return f.alerts[:limit], nil
	}
	return f.alerts, nil
}

func (f *fakeAlertReader) CountCriticalAlerts(ctx context.Context) (int64, error) {
	return f.critical, f.err
}

func (f *fakeAlertReader) RiskDistribution(ctx context.Context) (map[model.AlertLevel]int64, error) {
	return f.dist, f.err
}

func (f *fakeAlertReader) LatestAlertPerEmployee(ctx context.Context) (map[int64]model.FraudAlert, error) {
	return f.latest, f.err
}

type fakeAggregator struct {
	summary      model.ActivitySummary
	events       []model.ActivityEvent
	hourly       []model.HourlyActivity
	avg          float64
	productivity float64
	err          error
}

func (f *fakeAggregator) Summary(ctx context.Context, employeeID int64) (*model.ActivitySummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &f.summary, nil
}

func (f *fakeAggregator) RecentEvents(ctx context.Context, employeeID int64, limit int) ([]model.ActivityEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.events) > limit {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func (f *fakeAggregator) HourlyActivity(ctx context.Context) ([]model.HourlyActivity, error) {
	return f.hourly, f.err
}

func (f *fakeAggregator) AvgProductivityToday(ctx context.Context) (float64, error) {
	return f.avg, f.err
}

func (f *fakeAggregator) EmployeeProductivity(ctx context.Context, employeeID int64) (float64, error) {
	return f.productivity, f.err
}

func reportingFixture() (*ReportingService, *fakeDirectory, *fakeAlertReader) {
	directory := &fakeDirectory{
		employees: []model.Employee{
			{ID: 1, Name: "Asha Rao", Email: "asha@example.com", Role: "engineer"},
			{ID: 2, Name: "Jordan Lee", Email: "jordan@example.com", Role: "analyst"},
		},
	}
	alerts := &fakeAlertReader{
		alerts: []model.FraudAlert{
			{
				ID:          "a1",
				EmployeeID:  1,
				RiskScore:   91.257,
				AlertLevel:  model.AlertLevelHigh,
				Description: "Excessive idle time detected.",
				Timestamp:   time.Date(2026, 3, 4, 14, 30, 0, 0, time.UTC),
			},
			{
				ID:          "a2",
				EmployeeID:  99,
				RiskScore:   65,
				AlertLevel:  model.AlertLevelMedium,
				Description: "Anomalous behavior detected",
				Timestamp:   time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC),
			},
		},
		critical: 3,
		dist:     map[model.AlertLevel]int64{model.AlertLevelHigh: 3, model.AlertLevelMedium: 5},
		latest: map[int64]model.FraudAlert{
			1: {EmployeeID: 1, RiskScore: 91.26, AlertLevel: model.AlertLevelHigh},
		},
	}
	svc := NewReportingService(directory, &fakeSessionCounter{active: 2},
		alerts, &fakeAggregator{avg: 78.4, productivity: 81.2,
			summary: model.ActivitySummary{TotalMouse: 1200, TotalKeyboard: 900, TotalIdle: 300, TotalTime: 600, LogCount: 40},
			events: []model.ActivityEvent{
				{EmployeeID: 1, WindowTitle: "main.go - Visual Studio Code", MouseCount: 40},
			},
			hourly: []model.HourlyActivity{{Hour: 9, AvgActivity: 70, AvgIdle: 4}}})
	return svc, directory, alerts
}

func TestDashboard(t *testing.T) {
	svc, _, _ := reportingFixture()

	stats, err := svc.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard returned error: %v", err)
	}
	if stats.CriticalAlerts != 3 {
		t.Errorf("CriticalAlerts = %d, want 3", stats.CriticalAlerts)
	}
	if stats.TotalEmployees != 2 {
		t.Errorf("TotalEmployees = %d, want 2", stats.TotalEmployees)
	}
	if stats.ActiveEmployees != 2 {
		t.Errorf("ActiveEmployees = %d, want 2", stats.ActiveEmployees)
	}
	if stats.AvgProductivity != 78.4 {
		t.Errorf("AvgProductivity = %v, want 78.4", stats.AvgProductivity)
	}
}

func TestDashboardView(t *testing.T) {
	svc, _, _ := reportingFixture()

	view, err := svc.DashboardView(context.Background())
	if err != nil {
		t.Fatalf("DashboardView returned error: %v", err)
	}
	if view.Stats == nil || view.Stats.CriticalAlerts != 3 {
		t.Errorf("view stats = %+v, want critical count 3", view.Stats)
	}
	if len(view.HourlyData) != 1 || view.HourlyData[0].Hour != 9 {
		t.Errorf("hourly data = %+v, want the 9am bucket", view.HourlyData)
	}
	if view.RiskDistribution[model.AlertLevelHigh] != 3 {
		t.Errorf("risk distribution = %+v, want 3 High", view.RiskDistribution)
	}
}

func TestDashboardQueryFailure(t *testing.T) {
	svc, _, alerts := reportingFixture()
	alerts.err = errors.New("clickhouse down")

	if _, err := svc.Dashboard(context.Background()); err == nil {
		t.Error("Dashboard swallowed a query failure")
	}
}

func TestAlertsJoinsRoster(t *testing.T) {
	svc, _, _ := reportingFixture()

	records, err := svc.Alerts(context.Background(), 10)
	if err != nil {
		t.Fatalf("Alerts returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("%d records, want 2", len(records))
	}

	if records[0].EmployeeName != "Asha Rao" || records[0].EmployeeRole != "engineer" {
		t.Errorf("record[0] identity = %q/%q, want roster match",
			records[0].EmployeeName, records[0].EmployeeRole)
	}
	// Alert a2 references an employee that left the roster.
	if records[1].EmployeeName != "Unknown" || records[1].EmployeeRole != "Unknown" {
		t.Errorf("record[1] identity = %q/%q, want Unknown placeholders",
			records[1].EmployeeName, records[1].EmployeeRole)
	}
}

func TestExportAlertsCSV(t *testing.T) {
	svc, _, _ := reportingFixture()

	var buf bytes.Buffer
	if err := svc.ExportAlertsCSV(context.Background(), &buf); err != nil {
		t.Fatalf("ExportAlertsCSV returned error: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("export is not valid csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("%d csv rows, want header plus 2", len(rows))
	}

	wantHeader := []string{"id", "employee_id", "employee_name", "employee_role",
		"risk_score", "alert_level", "description", "timestamp"}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], col)
		}
	}

	first := rows[1]
	if first[0] != "a1" || first[1] != "1" || first[2] != "Asha Rao" {
		t.Errorf("row 1 = %v, want alert a1 for Asha Rao", first)
	}
	if first[4] != "91.26" {
		t.Errorf("risk_score column = %q, want 91.26", first[4])
	}
	if first[7] != "2026-03-04 14:30:00" {
		t.Errorf("timestamp column = %q, want 2026-03-04 14:30:00", first[7])
	}
}

func TestEmployeeSummary(t *testing.T) {
	svc, _, _ := reportingFixture()

	summary, err := svc.EmployeeSummary(context.Background(), 1)
	if err != nil {
		t.Fatalf("EmployeeSummary returned error: %v", err)
	}
	if summary.Employee.Name != "Asha Rao" {
		t.Errorf("employee name = %q, want Asha Rao", summary.Employee.Name)
	}
	if summary.Activity.LogCount != 40 {
		t.Errorf("LogCount = %d, want 40", summary.Activity.LogCount)
	}
	if summary.Productivity != 81.2 {
		t.Errorf("Productivity = %v, want 81.2", summary.Productivity)
	}
	if summary.LatestEvent == nil || summary.LatestEvent.WindowTitle != "main.go - Visual Studio Code" {
		t.Errorf("LatestEvent = %+v, want the newest telemetry row", summary.LatestEvent)
	}
}

func TestEmployeeSummaryUnknownEmployee(t *testing.T) {
	svc, _, _ := reportingFixture()

	if _, err := svc.EmployeeSummary(context.Background(), 404); !errors.Is(err, ErrEmployeeNotFound) {
		t.Errorf("EmployeeSummary error = %v, want ErrEmployeeNotFound", err)
	}
}

func TestAnomalyDataRanksRoster(t *testing.T) {
	svc, _, _ := reportingFixture()

	data, err := svc.AnomalyData(context.Background())
	if err != nil {
		t.Fatalf("AnomalyData returned error: %v", err)
	}
	if len(data.EmployeeRisks) != 2 {
		t.Fatalf("%d employee risks, want 2", len(data.EmployeeRisks))
	}

	byID := make(map[int64]model.EmployeeRisk)
	for _, r := range data.EmployeeRisks {
		byID[r.Employee.ID] = r
	}

	if r := byID[1]; r.LatestRiskScore != 91.26 || r.AlertLevel != model.AlertLevelHigh {
		t.Errorf("employee 1 risk = %+v, want latest alert applied", r)
	}
	// Employee 2 has never alerted and defaults to a clean Low entry.
	if r := byID[2]; r.LatestRiskScore != 0 || r.AlertLevel != model.AlertLevelLow {
		t.Errorf("employee 2 risk = %+v, want zero score at Low", r)
	}

	if data.RiskDistribution[model.AlertLevelHigh] != 3 {
		t.Errorf("High distribution = %d, want 3", data.RiskDistribution[model.AlertLevelHigh])
	}
}

func TestLatestAlert(t *testing.T) {
	svc, _, alerts := reportingFixture()

	latest, err := svc.LatestAlert(context.Background())
	if err != nil {
		t.Fatalf("LatestAlert returned error: %v", err)
	}
	if latest == nil || latest.ID != "a1" {
		t.Errorf("latest = %+v, want alert a1", latest)
	}

	alerts.alerts = nil
	latest, err = svc.LatestAlert(context.Background())
	if err != nil {
		t.Fatalf("LatestAlert returned error: %v", err)
	}
	if latest != nil {
		t.Errorf("latest = %+v, want nil with an empty alert history", latest)
	}
}

func TestAtRiskEmployeesRankedByScore(t *testing.T) {
	svc, directory, alerts := reportingFixture()
	directory.employees = append(directory.employees,
		model.Employee{ID: 3, Name: "Sam Park", Email: "sam@example.com", Role: "engineer"})
	alerts.latest[3] = model.FraudAlert{EmployeeID: 3, RiskScore: 97.5, AlertLevel: model.AlertLevelHigh}

	risks, err := svc.AtRiskEmployees(context.Background())
	if err != nil {
		t.Fatalf("AtRiskEmployees returned error: %v", err)
	}
	if len(risks) != 3 {
		t.Fatalf("%d entries, want the full roster", len(risks))
	}
	for i := 1; i < len(risks); i++ {
		if risks[i-1].LatestRiskScore < risks[i].LatestRiskScore {
			t.Fatalf("ranking out of order at %d: %v then %v",
				i, risks[i-1].LatestRiskScore, risks[i].LatestRiskScore)
		}
	}
	if risks[0].Employee.ID != 3 {
		t.Errorf("top entry = employee %d, want 3", risks[0].Employee.ID)
	}
}
