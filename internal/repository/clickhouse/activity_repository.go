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

// reportIntervalSeconds converts an event count into wall time. Agents emit
// one activity event per reporting interval.
const reportIntervalSeconds = 15

// ActivityRepository persists workstation telemetry into the append-only
// activity_events table.
type ActivityRepository struct {
	client *client.ClickHouseClient
}

func NewActivityRepository(ch *client.ClickHouseClient, logger *zap.Logger) *ActivityRepository {
	return &ActivityRepository{client: ch}
}

func (r *ActivityRepository) InsertEvent(ctx context.Context, event *model.ActivityEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	err := r.client.Exec(ctx, `
        INSERT INTO activity_events
            (id, employee_id, timestamp, mouse_count, keyboard_count,
             idle_seconds, window_title, ip_address, device_id)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.EmployeeID, event.Timestamp,
		int32(event.MouseCount), int32(event.KeyboardCount), int32(event.IdleSeconds),
		event.WindowTitle, event.IPAddress, event.DeviceID)

	if err != nil {
		util.Error("Failed to insert activity event",
			zap.Int64("employee_id", event.EmployeeID),
			zap.Error(err))
		return fmt.Errorf("failed to insert activity event: %w", err)
	}

	return nil
}

// RecentEvents returns up to limit events for an employee, most recent first.
func (r *ActivityRepository) RecentEvents(ctx context.Context, employeeID int64, limit int) ([]model.ActivityEvent, error) {
	rows, err := r.client.QueryRows(ctx, `
        SELECT id, employee_id, timestamp, mouse_count, keyboard_count,
               idle_seconds, window_title, ip_address, device_id
        FROM activity_events
        WHERE employee_id = ?
        ORDER BY timestamp DESC
        LIMIT ?`, employeeID, limit)
	if err != nil {
		util.Error("Failed to query recent events",
			zap.Int64("employee_id", employeeID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	var events []model.ActivityEvent
	for rows.Next() {
		var event model.ActivityEvent
		var mouse, keyboard, idle int32
		if err := rows.Scan(&event.ID, &event.EmployeeID, &event.Timestamp,
			&mouse, &keyboard, &idle,
			&event.WindowTitle, &event.IPAddress, &event.DeviceID); err != nil {
			return nil, fmt.Errorf("failed to scan activity event: %w", err)
		}
		event.MouseCount = int(mouse)
		event.KeyboardCount = int(keyboard)
		event.IdleSeconds = int(idle)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recent events: %w", err)
	}

	return events, nil
}

// Summary aggregates an employee's full activity history.
func (r *ActivityRepository) Summary(ctx context.Context, employeeID int64) (*model.ActivitySummary, error) {
	row := r.client.QueryRow(ctx, `
        SELECT sum(mouse_count), sum(keyboard_count), sum(idle_seconds), count(*)
        FROM activity_events
        WHERE employee_id = ?`, employeeID)

	var summary model.ActivitySummary
	var mouse, keyboard, idle, count uint64
	if err := row.Scan(&mouse, &keyboard, &idle, &count); err != nil {
		util.Error("Failed to aggregate activity summary",
			zap.Int64("employee_id", employeeID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to aggregate activity summary: %w", err)
	}

	summary.TotalMouse = int64(mouse)
	summary.TotalKeyboard = int64(keyboard)
	summary.TotalIdle = int64(idle)
	summary.LogCount = int64(count)
	summary.TotalTime = int64(count) * reportIntervalSeconds

	return &summary, nil
}

// HourlyActivity buckets the last seven days of telemetry by hour of day for
// the dashboard trend chart.
func (r *ActivityRepository) HourlyActivity(ctx context.Context) ([]model.HourlyActivity, error) {
	rows, err := r.client.QueryRows(ctx, `
        SELECT toHour(timestamp) AS hour,
               avg(mouse_count + keyboard_count) AS avg_activity,
               avg(idle_seconds) AS avg_idle
        FROM activity_events
        WHERE timestamp >= now() - INTERVAL 7 DAY
        GROUP BY hour
        ORDER BY hour`)
	if err != nil {
		util.Error("Failed to query hourly activity", zap.Error(err))
		return nil, fmt.Errorf("failed to query hourly activity: %w", err)
	}
	defer rows.Close()

	var buckets []model.HourlyActivity
	for rows.Next() {
		var bucket model.HourlyActivity
		var hour uint8
		if err := rows.Scan(&hour, &bucket.AvgActivity, &bucket.AvgIdle); err != nil {
			return nil, fmt.Errorf("failed to scan hourly activity: %w", err)
		}
		bucket.Hour = int(hour)
		buckets = append(buckets, bucket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read hourly activity: %w", err)
	}

	return buckets, nil
}

// AvgProductivityToday computes today's fleet-wide productivity percentage:
// active input time over total tracked time.
func (r *ActivityRepository) AvgProductivityToday(ctx context.Context) (float64, error) {
	row := r.client.QueryRow(ctx, `
        SELECT sum(mouse_count + keyboard_count), sum(idle_seconds)
        FROM activity_events
        WHERE toDate(timestamp) = today()`)

	var activity, idle uint64
	if err := row.Scan(&activity, &idle); err != nil {
		util.Error("Failed to compute productivity", zap.Error(err))
		return 0, fmt.Errorf("failed to compute productivity: %w", err)
	}

	denominator := float64(activity) + float64(idle)
	if denominator == 0 {
		return 0, nil
	}
	return 100 * float64(activity) / denominator, nil
}

// EmployeeProductivity computes one employee's productivity percentage over
// their whole history.
func (r *ActivityRepository) EmployeeProductivity(ctx context.Context, employeeID int64) (float64, error) {
	row := r.client.QueryRow(ctx, `
        SELECT sum(mouse_count + keyboard_count), sum(idle_seconds)
        FROM activity_events
        WHERE employee_id = ?`, employeeID)

	var activity, idle uint64
	if err := row.Scan(&activity, &idle); err != nil {
		return 0, fmt.Errorf("failed to compute employee productivity: %w", err)
	}

	denominator := float64(activity) + float64(idle)
	if denominator == 0 {
		return 0, nil
	}
	return 100 * float64(activity) / denominator, nil
}
