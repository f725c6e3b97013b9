package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"fraud-detection-service/internal/config"
	"fraud-detection-service/internal/model"
	"fraud-detection-service/internal/util"
)

// ActivityWriter persists telemetry events.
type ActivityWriter interface {
	InsertEvent(ctx context.Context, event *model.ActivityEvent) error
}

// SessionStore is the slice of the session repository the ingest path needs.
type SessionStore interface {
	CreateLoginSession(session *model.LoginSession) error
	CloseOpenSession(employeeID int64) error
	GetLatestSession(employeeID int64) (*model.LoginSession, error)
}

// Presence is the fast-path presence cache in front of the session table.
type Presence interface {
	MarkPresent(employeeID int64, sessionID string) error
	MarkAbsent(employeeID int64) error
	IsPresent(employeeID int64) (bool, error)
	Refresh(employeeID int64) error
}

// RateLimiter caps per-employee report frequency.
type RateLimiter interface {
	Allow(employeeID int64) (bool, error)
}

// Evaluator runs the detection pipeline for one employee.
type Evaluator interface {
	Evaluate(ctx context.Context, employeeID int64) (*model.RiskSummary, *model.FraudAlert, error)
}

// RiskScorer serves on-demand score reads. Same pipeline as Evaluator but it
// never persists an alert.
type RiskScorer interface {
	GetRiskScore(ctx context.Context, employeeID int64) (*model.RiskSummary, error)
}

// DashboardFeed supplies the aggregate views attached to each live push:
// the employee's running totals for their own dashboard, and the header
// stats, latest alert, and at-risk ranking for the admin room. Satisfied by
// the reporting service.
type DashboardFeed interface {
	ActivitySummary(ctx context.Context, employeeID int64) (*model.ActivitySummary, error)
	Dashboard(ctx context.Context) (*model.DashboardStats, error)
	LatestAlert(ctx context.Context) (*model.FraudAlert, error)
	AtRiskEmployees(ctx context.Context) ([]model.EmployeeRisk, error)
}

// Broadcaster fans processed telemetry out to connected dashboards and
// desktop agents.
type Broadcaster interface {
	ToEmployee(employeeID int64, event string, payload interface{})
	ToAdmins(event string, payload interface{})
	ControlAgent(employeeID int64, command string)
}

// Realtime event names shared with the browser dashboards and desktop agents.
const (
	EventEmployeeDashboard = "employee_dashboard_update"
	EventAdminDashboard    = "admin_dashboard_update"
	EventEmployeeWarning   = "employee_warning"
	EventFraudAlert        = "fraud_alert"

	AgentCommandStop  = "stop"
	AgentCommandStart = "start"
)

// TelemetryService accepts activity reports from desktop agents, gates them
// on presence and rate limits, and runs processed events through detection
// and distribution.
type TelemetryService struct {
	activity  ActivityWriter
	sessions  SessionStore
	presence  Presence
	limiter   RateLimiter
	detector  Evaluator
	feed      DashboardFeed
	producer  AlertNotifier
	broadcast Broadcaster
	topic     string
}

func NewTelemetryService(
	activity ActivityWriter,
	sessions SessionStore,
	presence Presence,
	limiter RateLimiter,
	detector Evaluator,
	feed DashboardFeed,
	producer AlertNotifier,
	broadcast Broadcaster,
) *TelemetryService {
	return &TelemetryService{
		activity:  activity,
		sessions:  sessions,
		presence:  presence,
		limiter:   limiter,
		detector:  detector,
		feed:      feed,
		producer:  producer,
		broadcast: broadcast,
		topic:     config.Get().Kafka.ActivityTopic,
	}
}

// Ingest validates and enqueues one telemetry report. Reports from employees
// without an open session are rejected and their agent is told to stop; the
// accepted path hands the event to Kafka so the caller never waits on
// ClickHouse or model fitting.
func (s *TelemetryService) Ingest(ctx context.Context, event *model.ActivityEvent) error {
	if event.EmployeeID <= 0 {
		return ErrEmployeeNotFound
	}

	active, err := s.isActive(event.EmployeeID)
	if err != nil {
		return err
	}
	if !active {
		if s.broadcast != nil {
			s.broadcast.ControlAgent(event.EmployeeID, AgentCommandStop)
		}
		return ErrSessionInactive
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(event.EmployeeID)
		if err != nil {
			util.Warn("Rate limiter unavailable, accepting report",
				util.Int64("employee_id", event.EmployeeID),
				util.ErrorField(err))
		} else if !allowed {
			return ErrRateLimited
		}
	}

	event.WindowTitle = util.SanitizeWindowTitle(event.WindowTitle)
	if event.WindowTitle == "" {
		event.WindowTitle = "Unspecified"
	}
	event.DeviceID = util.SanitizeDeviceID(event.DeviceID)
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if s.producer == nil {
		return s.Process(ctx, event)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode activity event: %w", err)
	}

	key := []byte(strconv.FormatInt(event.EmployeeID, 10))
	if err := s.producer.ProduceMessage(ctx, s.topic, key, payload, nil); err != nil {
		util.Error("Failed to enqueue activity event, processing inline",
			util.Int64("employee_id", event.EmployeeID),
			util.ErrorField(err))
		return s.Process(ctx, event)
	}

	return nil
}

// Process persists one accepted event, re-evaluates the employee, and fans
// the results out. Runs on the Kafka consumer side.
func (s *TelemetryService) Process(ctx context.Context, event *model.ActivityEvent) error {
	if err := s.activity.InsertEvent(ctx, event); err != nil {
		return err
	}

	if s.presence != nil {
		if err := s.presence.Refresh(event.EmployeeID); err != nil {
			util.Debug("Presence refresh failed", util.ErrorField(err))
		}
	}

	summary, alert, err := s.detector.Evaluate(ctx, event.EmployeeID)
	if err != nil {
		return err
	}

	s.distribute(ctx, event, summary, alert)
	return nil
}

// distribute is the fan-out step after an event is processed: the employee's
// own dashboard gets the new event with their recomputed running totals, the
// admin room gets the latest alert, header stats, and at-risk ranking, and a
// raised alert additionally warns the employee's agent. Feed reads are best
// effort; a failed aggregate query thins the push, it never blocks it.
func (s *TelemetryService) distribute(ctx context.Context, event *model.ActivityEvent, summary *model.RiskSummary, alert *model.FraudAlert) {
	if s.broadcast == nil {
		return
	}

	employeePayload := map[string]interface{}{
		"employee_id":    event.EmployeeID,
		"timestamp":      event.Timestamp,
		"mouse_count":    event.MouseCount,
		"keyboard_count": event.KeyboardCount,
		"idle_seconds":   event.IdleSeconds,
		"window_title":   event.WindowTitle,
	}
	adminPayload := map[string]interface{}{
		"employee_id": event.EmployeeID,
		"timestamp":   event.Timestamp,
	}
	if summary != nil {
		employeePayload["risk_score"] = summary.RiskScore
		employeePayload["alert_level"] = summary.AlertLevel
		adminPayload["risk_score"] = summary.RiskScore
		adminPayload["alert_level"] = summary.AlertLevel
	}

	if s.feed != nil {
		if totals, err := s.feed.ActivitySummary(ctx, event.EmployeeID); err != nil {
			util.Warn("Failed to aggregate activity for live push",
				util.Int64("employee_id", event.EmployeeID),
				util.ErrorField(err))
		} else {
			employeePayload["summary"] = totals
		}

		if stats, err := s.feed.Dashboard(ctx); err != nil {
			util.Warn("Failed to load dashboard stats for live push", util.ErrorField(err))
		} else {
			adminPayload["new_stats"] = stats
		}

		if alert != nil {
			adminPayload["latest_alert"] = alert
		} else if latest, err := s.feed.LatestAlert(ctx); err != nil {
			util.Warn("Failed to load latest alert for live push", util.ErrorField(err))
		} else {
			adminPayload["latest_alert"] = latest
		}

		if risks, err := s.feed.AtRiskEmployees(ctx); err != nil {
			util.Warn("Failed to rank employees for live push", util.ErrorField(err))
		} else {
			adminPayload["employees_at_risk"] = risks
		}
	}

	s.broadcast.ToEmployee(event.EmployeeID, EventEmployeeDashboard, employeePayload)
	s.broadcast.ToAdmins(EventAdminDashboard, adminPayload)

	if alert != nil {
		s.broadcast.ToAdmins(EventFraudAlert, alert)
		s.broadcast.ToEmployee(event.EmployeeID, EventEmployeeWarning, map[string]interface{}{
			"message":     alert.Description,
			"risk_score":  alert.RiskScore,
			"alert_level": alert.AlertLevel,
		})
	}
}

// Login opens a session, marks the employee present, and starts their agent.
func (s *TelemetryService) Login(ctx context.Context, employeeID int64, ipAddress, deviceID string) (*model.LoginSession, error) {
	if employeeID <= 0 {
		return nil, ErrEmployeeNotFound
	}

	session := &model.LoginSession{
		EmployeeID: employeeID,
		IPAddress:  ipAddress,
		DeviceID:   util.SanitizeDeviceID(deviceID),
		LoginTime:  time.Now().UTC(),
	}

	if err := s.sessions.CreateLoginSession(session); err != nil {
		return nil, err
	}

	if s.presence != nil {
		if err := s.presence.MarkPresent(employeeID, session.ID); err != nil {
			util.Warn("Failed to cache presence on login",
				util.Int64("employee_id", employeeID),
				util.ErrorField(err))
		}
	}

	if s.broadcast != nil {
		s.broadcast.ControlAgent(employeeID, AgentCommandStart)
	}

	return session, nil
}

// Logout stamps the open session, clears presence, and stops the agent.
func (s *TelemetryService) Logout(ctx context.Context, employeeID int64) error {
	if employeeID <= 0 {
		return ErrEmployeeNotFound
	}

	if err := s.sessions.CloseOpenSession(employeeID); err != nil {
		return err
	}

	if s.presence != nil {
		if err := s.presence.MarkAbsent(employeeID); err != nil {
			util.Warn("Failed to clear presence on logout",
				util.Int64("employee_id", employeeID),
				util.ErrorField(err))
		}
	}

	if s.broadcast != nil {
		s.broadcast.ControlAgent(employeeID, AgentCommandStop)
	}

	return nil
}

// isActive consults the presence cache first and falls back to the session
// table, backfilling the cache on a hit.
func (s *TelemetryService) isActive(employeeID int64) (bool, error) {
	if s.presence != nil {
		present, err := s.presence.IsPresent(employeeID)
		if err == nil && present {
			return true, nil
		}
	}

	session, err := s.sessions.GetLatestSession(employeeID)
	if err != nil {
		return false, err
	}
	if session == nil || session.LogoutTime != nil {
		return false, nil
	}

	if s.presence != nil {
		if err := s.presence.MarkPresent(employeeID, session.ID); err != nil {
			util.Debug("Presence backfill failed", util.ErrorField(err))
		}
	}
	return true, nil
}
