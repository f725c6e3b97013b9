package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fraud-detection-service/internal/client"
	"fraud-detection-service/internal/model"
	"fraud-detection-service/internal/util"
)

// AlertRepository persists fraud alerts. Alerts are append-only; the alert
// history itself is evidence and never rewritten.
type AlertRepository struct {
	client *client.ClickHouseClient
}

func NewAlertRepository(ch *client.ClickHouseClient, logger *zap.Logger) *AlertRepository {
	return &AlertRepository{client: ch}
}

func (r *AlertRepository) InsertAlert(ctx context.Context, alert *model.FraudAlert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}

	err := r.client.Exec(ctx, `
        INSERT INTO fraud_alerts
            (id, employee_id, risk_score, alert_level, description, timestamp)
        VALUES (?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.EmployeeID, alert.RiskScore,
		string(alert.AlertLevel), alert.Description, alert.Timestamp)

	if err != nil {
		util.Error("Failed to insert fraud alert",
			zap.Int64("employee_id", alert.EmployeeID),
			zap.Float64("risk_score", alert.RiskScore),
			zap.Error(err))
		return fmt.Errorf("failed to insert fraud alert: %w", err)
	}

	util.Info("Fraud alert persisted",
		zap.String("alert_id", alert.ID),
		zap.Int64("employee_id", alert.EmployeeID),
		zap.Float64("risk_score", alert.RiskScore),
		zap.String("alert_level", string(alert.AlertLevel)))

	return nil
}

// RecentAlerts returns up to limit alerts across all employees, newest first.
// A limit of zero or less means no cap.
func (r *AlertRepository) RecentAlerts(ctx context.Context, limit int) ([]model.FraudAlert, error) {
	query := `
        SELECT id, employee_id, risk_score, alert_level, description, timestamp
        FROM fraud_alerts
        ORDER BY timestamp DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.client.QueryRows(ctx, query, args...)
	if err != nil {
		util.Error("Failed to query alerts", zap.Error(err))
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.FraudAlert
	for rows.Next() {
		var alert model.FraudAlert
		var level string
		if err := rows.Scan(&alert.ID, &alert.EmployeeID, &alert.RiskScore,
			&level, &alert.Description, &alert.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan fraud alert: %w", err)
		}
		alert.AlertLevel = model.AlertLevel(level)
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read alerts: %w", err)
	}

	return alerts, nil
}

// CountCriticalAlerts counts high-severity alerts across the whole alert
// history for the dashboard header.
func (r *AlertRepository) CountCriticalAlerts(ctx context.Context) (int64, error) {
	row := r.client.QueryRow(ctx, `
        SELECT count(*)
        FROM fraud_alerts
        WHERE alert_level = ?`,
		string(model.AlertLevelHigh))

	var count uint64
	if err := row.Scan(&count); err != nil {
		util.Error("Failed to count critical alerts", zap.Error(err))
		return 0, fmt.Errorf("failed to count critical alerts: %w", err)
	}

	return int64(count), nil
}

// RiskDistribution counts persisted alerts per alert level.
func (r *AlertRepository) RiskDistribution(ctx context.Context) (map[model.AlertLevel]int64, error) {
	rows, err := r.client.QueryRows(ctx, `
        SELECT alert_level, count(*)
        FROM fraud_alerts
        GROUP BY alert_level`)
	if err != nil {
		util.Error("Failed to query risk distribution", zap.Error(err))
		return nil, fmt.Errorf("failed to query risk distribution: %w", err)
	}
	defer rows.Close()

	distribution := make(map[model.AlertLevel]int64)
	for rows.Next() {
		var level string
		var count uint64
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("failed to scan risk distribution: %w", err)
		}
		distribution[model.AlertLevel(level)] = int64(count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read risk distribution: %w", err)
	}

	return distribution, nil
}

// LatestAlertPerEmployee returns each employee's most recent alert keyed by
// employee ID. Employees without alerts are absent from the map.
func (r *AlertRepository) LatestAlertPerEmployee(ctx context.Context) (map[int64]model.FraudAlert, error) {
	rows, err := r.client.QueryRows(ctx, `
        SELECT employee_id,
               argMax(id, timestamp),
               argMax(risk_score, timestamp),
               argMax(alert_level, timestamp),
               argMax(description, timestamp),
               max(timestamp)
        FROM fraud_alerts
        GROUP BY employee_id`)
	if err != nil {
		util.Error("Failed to query latest alerts", zap.Error(err))
		return nil, fmt.Errorf("failed to query latest alerts: %w", err)
	}
	defer rows.Close()

	latest := make(map[int64]model.FraudAlert)
	for rows.Next() {
		var alert model.FraudAlert
		var level string
		if err := rows.Scan(&alert.EmployeeID, &alert.ID, &alert.RiskScore,
			&level, &alert.Description, &alert.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan latest alert: %w", err)
		}
		alert.AlertLevel = model.AlertLevel(level)
		latest[alert.EmployeeID] = alert
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read latest alerts: %w", err)
	}

	return latest, nil
}
