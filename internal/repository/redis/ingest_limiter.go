package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap" // needed for zap.Field in util calls

	"fraud-detection-service/internal/client"
	"fraud-detection-service/internal/util"
)

const ingestRatePrefix = "ingest_rate:"

// IngestLimiter applies a fixed-window per-employee cap on telemetry reports.
// Agents report every 15 seconds, so the per-minute budget has generous slack
// for retries; sustained overruns indicate a misbehaving or spoofed agent.
type IngestLimiter struct {
	client *client.RedisClient
	limit  int64
	window time.Duration
}

func NewIngestLimiter(client *client.RedisClient, perMinute int) *IngestLimiter {
	return &IngestLimiter{
		client: client,
		limit:  int64(perMinute),
		window: time.Minute,
	}
}

// Allow counts one report against the employee's current window and reports
// whether it fits the budget. Counting errors fail open so a Redis outage
// does not drop telemetry.
func (l *IngestLimiter) Allow(employeeID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := ingestRatePrefix + strconv.FormatInt(employeeID, 10)

	count, err := l.client.IncrWithExpire(ctx, key, l.window)
	if err != nil {
		util.Error("Failed to count ingest rate",
			zap.Int64("employee_id", employeeID),
			zap.Error(err))
		return true, fmt.Errorf("failed to count ingest rate: %w", err)
	}

	if count > l.limit {
		util.Warn("Ingest rate limit exceeded",
			zap.Int64("employee_id", employeeID),
			zap.Int64("count", count),
			zap.Int64("limit", l.limit))
		return false, nil
	}

	return true, nil
}
