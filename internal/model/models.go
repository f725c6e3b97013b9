package model

import "time"

// -------------------- TELEMETRY --------------------

// ActivityEvent is one periodic report of a workstation's input activity and
// foreground window. Immutable once stored; IPAddress/DeviceID are joined in
// from the most recent login session on the read path and may be empty.
type ActivityEvent struct {
	ID            string    `json:"id" db:"id"`
	EmployeeID    int64     `json:"employee_id" db:"employee_id"`
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
	MouseCount    int       `json:"mouse_activity" db:"mouse_activity"`
	KeyboardCount int       `json:"keyboard_activity" db:"keyboard_activity"`
	IdleSeconds   int       `json:"idle_time" db:"idle_time"`
	WindowTitle   string    `json:"active_window_title" db:"active_window_title"`
	IPAddress     string    `json:"ip_address,omitempty" db:"ip_address"`
	DeviceID      string    `json:"device_id,omitempty" db:"device_id"`
}

// TotalActivity is the combined input count for the reporting interval.
func (e ActivityEvent) TotalActivity() int {
	return e.MouseCount + e.KeyboardCount
}

// FeatureVector is the numeric encoding of a single ActivityEvent consumed by
// the anomaly model. Never persisted; recomputed on every evaluation.
type FeatureVector struct {
	IdleSeconds    float64
	MouseCount     float64
	KeyboardCount  float64
	HourOfDay      float64
	IPHash         float64
	DeviceHash     float64
	IdleRatio      float64
	AfterHours     float64
	TotalActivity  float64
	DistractingApp float64
}

// Slice returns the vector in its fixed column order.
func (f FeatureVector) Slice() []float64 {
	return []float64{
		f.IdleSeconds,
		f.MouseCount,
		f.KeyboardCount,
		f.HourOfDay,
		f.IPHash,
		f.DeviceHash,
		f.IdleRatio,
		f.AfterHours,
		f.TotalActivity,
		f.DistractingApp,
	}
}

// NumFeatures is the fixed width of a FeatureVector.
const NumFeatures = 10

// -------------------- SCORING --------------------

// AnomalyResult is the model's verdict over one evaluation batch.
type AnomalyResult struct {
	IsAnomaly    bool    `json:"is_anomaly"`
	AnomalyScore float64 `json:"anomaly_score"`
	AnomalyRatio float64 `json:"anomaly_ratio"`
}

// Severity grades a single risk factor.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// RiskFactorType names a rule-derived risk signal.
type RiskFactorType string

const (
	FactorDistractingApp   RiskFactorType = "Distracting App Use"
	FactorHighIdleTime     RiskFactorType = "High Idle Time"
	FactorAfterHours       RiskFactorType = "After Hours Activity"
	FactorIPMismatch       RiskFactorType = "IP Mismatch"
	FactorDeviceAnomaly    RiskFactorType = "Device Anomaly"
	FactorPatternDeviation RiskFactorType = "Pattern Deviation"
)

// RiskFactor is a named, human-readable explanation produced by the rule
// engine, independent of the numeric model score.
type RiskFactor struct {
	Type        RiskFactorType `json:"type"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
}

// AlertLevel tiers a risk score for persistence and display.
type AlertLevel string

const (
	AlertLevelLow    AlertLevel = "Low"
	AlertLevelMedium AlertLevel = "Medium"
	AlertLevelHigh   AlertLevel = "High"
)

// LevelForScore maps a risk score onto its tier. Boundaries at 50 and 80.
func LevelForScore(score float64) AlertLevel {
	switch {
	case score >= 80:
		return AlertLevelHigh
	case score >= 50:
		return AlertLevelMedium
	default:
		return AlertLevelLow
	}
}

// RiskSummary is the live evaluation result returned to callers; produced
// whether or not an alert was persisted.
type RiskSummary struct {
	RiskScore  float64      `json:"risk_score"`
	AlertLevel AlertLevel   `json:"alert_level"`
	Factors    []RiskFactor `json:"factors"`
}

// -------------------- ALERTS --------------------

// FraudAlert is persisted only when the model and the outlier-ratio threshold
// agree the recent behavior is anomalous above the score floor. Append-only.
type FraudAlert struct {
	ID          string     `json:"id" db:"id"`
	EmployeeID  int64      `json:"employee_id" db:"employee_id"`
	RiskScore   float64    `json:"risk_score" db:"risk_score"`
	AlertLevel  AlertLevel `json:"alert_level" db:"alert_level"`
	Description string     `json:"description" db:"description"`
	Timestamp   time.Time  `json:"timestamp" db:"timestamp"`
}

// AlertRecord is a FraudAlert joined with employee identity for listings and
// the CSV export surface.
type AlertRecord struct {
	FraudAlert
	EmployeeName string `json:"employee_name"`
	EmployeeRole string `json:"employee_role"`
}

// -------------------- EMPLOYEES & SESSIONS --------------------

// Employee is the narrow read contract onto the employee directory. Account
// administration lives elsewhere.
type Employee struct {
	ID    int64  `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`
	Role  string `json:"role" db:"role"`
}

// LoginSession records one login; an open session (no logout stamp) makes the
// employee present for telemetry acceptance.
type LoginSession struct {
	ID         string     `json:"id" db:"id"`
	EmployeeID int64      `json:"employee_id" db:"employee_id"`
	LoginTime  time.Time  `json:"login_time" db:"login_time"`
	LogoutTime *time.Time `json:"logout_time,omitempty" db:"logout_time"`
	IPAddress  string     `json:"ip_address" db:"ip_address"`
	DeviceID   string     `json:"device_id" db:"device_id"`
}

// -------------------- AGGREGATES --------------------

// ActivitySummary aggregates an employee's full activity history. TotalTime
// is event count times the 15 second reporting interval.
type ActivitySummary struct {
	TotalMouse    int64 `json:"total_mouse"`
	TotalKeyboard int64 `json:"total_keyboard"`
	TotalIdle     int64 `json:"total_idle"`
	TotalTime     int64 `json:"total_time"`
	LogCount      int64 `json:"log_count"`
}

// DashboardStats feeds the admin dashboard header.
type DashboardStats struct {
	CriticalAlerts  int64   `json:"critical_alerts"`
	TotalEmployees  int64   `json:"total_employees"`
	ActiveEmployees int64   `json:"active_employees"`
	AvgProductivity float64 `json:"avg_productivity"`
}

// HourlyActivity is one bucket of the dashboard trend chart.
type HourlyActivity struct {
	Hour        int     `json:"hour"`
	AvgActivity float64 `json:"avg_activity"`
	AvgIdle     float64 `json:"avg_idle"`
}

// EmployeeRisk is one row of the at-risk ranking: an employee together with
// their most recent persisted alert, defaulting to zero/Low when none exists.
type EmployeeRisk struct {
	Employee
	LatestRiskScore float64    `json:"latest_risk_score"`
	AlertLevel      AlertLevel `json:"alert_level"`
}
