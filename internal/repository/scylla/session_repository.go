package scylla

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"fraud-detection-service/internal/model"
	"fraud-detection-service/internal/util"
)

// SessionRepository tracks login sessions. The login_sessions table is
// partitioned by employee_id and clustered by login_time DESC, so the most
// recent session for an employee is always the first row of its partition.
type SessionRepository struct {
	client *ScyllaClient
}

func NewSessionRepository(client *ScyllaClient, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		client: client,
	}
}

func (r *SessionRepository) CreateLoginSession(session *model.LoginSession) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.LoginTime.IsZero() {
		session.LoginTime = time.Now().UTC()
	}

	query := r.client.Prepared.CreateLoginSession.Bind(
		session.EmployeeID, session.ID, session.IPAddress, session.DeviceID, session.LoginTime)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to create login session",
			zap.Int64("employee_id", session.EmployeeID),
			zap.Error(err))
		return fmt.Errorf("failed to create login session: %w", err)
	}

	util.Info("Login session created",
		zap.Int64("employee_id", session.EmployeeID),
		zap.String("session_id", session.ID))

	return nil
}

// GetLatestSession returns the most recent session for the employee, open or
// closed, or nil when the employee never logged in.
func (r *SessionRepository) GetLatestSession(employeeID int64) (*model.LoginSession, error) {
	session := &model.LoginSession{EmployeeID: employeeID}
	var logoutTime *time.Time

	query := r.client.Prepared.GetOpenSession.Bind(employeeID)

	err := r.client.ScanWithRetry(query,
		&session.ID, &session.IPAddress, &session.DeviceID, &session.LoginTime, &logoutTime)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		util.Error("Failed to get latest session",
			zap.Int64("employee_id", employeeID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get latest session: %w", err)
	}

	session.LogoutTime = logoutTime
	return session, nil
}

// HasOpenSession reports whether the employee's most recent session has no
// logout stamp yet.
func (r *SessionRepository) HasOpenSession(employeeID int64) (bool, error) {
	session, err := r.GetLatestSession(employeeID)
	if err != nil {
		return false, err
	}
	return session != nil && session.LogoutTime == nil, nil
}

// CloseOpenSession stamps logout_time on the employee's most recent session.
// Closing an already closed session is a no-op.
func (r *SessionRepository) CloseOpenSession(employeeID int64) error {
	session, err := r.GetLatestSession(employeeID)
	if err != nil {
		return err
	}
	if session == nil || session.LogoutTime != nil {
		return nil
	}

	now := time.Now().UTC()
	query := r.client.Prepared.CloseLoginSession.Bind(now, employeeID, session.LoginTime)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to close login session",
			zap.Int64("employee_id", employeeID),
			zap.Error(err))
		return fmt.Errorf("failed to close login session: %w", err)
	}

	util.Info("Login session closed",
		zap.Int64("employee_id", employeeID),
		zap.String("session_id", session.ID))

	return nil
}

// CountActiveEmployees counts distinct employees with a login during the
// window ending now. Sessions still open from before the window count too
// once their login_time falls inside it.
func (r *SessionRepository) CountActiveEmployees(window time.Duration) (int64, error) {
	since := time.Now().UTC().Add(-window)

	iter := r.client.Prepared.CountRecentLogins.Bind(since).Iter()

	seen := make(map[int64]struct{})
	var employeeID int64
	var loginTime time.Time
	var logoutTime *time.Time

	for iter.Scan(&employeeID, &loginTime, &logoutTime) {
		seen[employeeID] = struct{}{}
		logoutTime = nil
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to count active employees", zap.Error(err))
		return 0, fmt.Errorf("failed to count active employees: %w", err)
	}

	return int64(len(seen)), nil
}
