package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap" // needed for zap.Field in util calls

	"fraud-detection-service/internal/client"
	"fraud-detection-service/internal/util"
)

const (
	presencePrefix = "presence:"

	// Presence entries outlive a missed heartbeat but not a dead agent. The
	// session table in Scylla stays the source of truth; this cache only
	// short-circuits the per-event lookup on the ingest path.
	presenceTTL = 2 * time.Hour
)

type PresenceCache struct {
	client *client.RedisClient
}

func NewPresenceCache(client *client.RedisClient) *PresenceCache {
	return &PresenceCache{client: client}
}

func presenceKey(employeeID int64) string {
	return presencePrefix + strconv.FormatInt(employeeID, 10)
}

// MarkPresent records the employee's open session so ingest can accept
// telemetry without a Scylla round trip.
func (c *PresenceCache) MarkPresent(employeeID int64, sessionID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.Set(ctx, presenceKey(employeeID), sessionID, presenceTTL); err != nil {
		util.Error("Failed to mark employee present",
			zap.Int64("employee_id", employeeID),
			zap.Error(err))
		return fmt.Errorf("failed to mark employee present: %w", err)
	}

	util.Debug("Employee marked present",
		zap.Int64("employee_id", employeeID),
		zap.String("session_id", sessionID))
	return nil
}

// MarkAbsent drops the presence entry on logout.
func (c *PresenceCache) MarkAbsent(employeeID int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, presenceKey(employeeID)); err != nil {
		util.Error("Failed to mark employee absent",
			zap.Int64("employee_id", employeeID),
			zap.Error(err))
		return fmt.Errorf("failed to mark employee absent: %w", err)
	}

	util.Debug("Employee marked absent", zap.Int64("employee_id", employeeID))
	return nil
}

// IsPresent reports whether a presence entry exists. A cache miss means
// unknown, not absent; callers fall back to the session table.
func (c *PresenceCache) IsPresent(employeeID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := c.client.Exists(ctx, presenceKey(employeeID))
	if err != nil {
		util.Error("Failed to check employee presence",
			zap.Int64("employee_id", employeeID),
			zap.Error(err))
		return false, fmt.Errorf("failed to check employee presence: %w", err)
	}

	return exists, nil
}

// SessionID returns the cached open session ID, or ErrKeyNotFound.
func (c *PresenceCache) SessionID(employeeID int64) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sessionID, err := c.client.Get(ctx, presenceKey(employeeID))
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return "", client.ErrKeyNotFound
		}
		util.Error("Failed to get cached session",
			zap.Int64("employee_id", employeeID),
			zap.Error(err))
		return "", fmt.Errorf("failed to get cached session: %w", err)
	}

	return sessionID, nil
}

// Refresh extends the presence TTL on each accepted telemetry report.
func (c *PresenceCache) Refresh(employeeID int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.Expire(ctx, presenceKey(employeeID), presenceTTL); err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}
	return nil
}
