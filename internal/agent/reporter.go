package agent

import (
	"context"
	"sync/atomic"
	"time"

	"fraud-detection-service/internal/model"
	"fraud-detection-service/internal/util"
)

// Workstation describes the environment an event was captured in.
type Workstation interface {
	ForegroundWindow() string
	IPAddress() string
	DeviceID() string
}

// Sender delivers one report to the collection server.
type Sender interface {
	Send(ctx context.Context, event *model.ActivityEvent) error
}

// Reporter drains the counters on a fixed interval and ships the result.
// A server stop command gates sending only; counters keep accumulating so
// nothing is lost across a pause.
type Reporter struct {
	employeeID  int64
	counters    *Counters
	workstation Workstation
	sender      Sender
	interval    time.Duration
	idleAfter   time.Duration
	enabled     atomic.Bool
}

func NewReporter(
	employeeID int64,
	counters *Counters,
	workstation Workstation,
	sender Sender,
	interval, idleAfter time.Duration,
) *Reporter {
	r := &Reporter{
		employeeID:  employeeID,
		counters:    counters,
		workstation: workstation,
		sender:      sender,
		interval:    interval,
		idleAfter:   idleAfter,
	}
	r.enabled.Store(true)
	return r
}

// SetEnabled toggles reporting. Wired to the server's control channel.
func (r *Reporter) SetEnabled(enabled bool) {
	r.enabled.Store(enabled)
	util.Info("Reporter toggled", util.Bool("enabled", enabled))
}

func (r *Reporter) Enabled() bool {
	return r.enabled.Load()
}

// Run reports until the context is cancelled.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	util.Info("Activity reporter started",
		util.Int64("employee_id", r.employeeID),
		util.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			util.Info("Activity reporter stopped")
			return ctx.Err()
		case now := <-ticker.C:
			if !r.enabled.Load() {
				continue
			}
			r.report(ctx, now)
		}
	}
}

func (r *Reporter) report(ctx context.Context, now time.Time) {
	mouse, keyboard, idle := r.counters.Drain(now, r.interval, r.idleAfter)

	event := &model.ActivityEvent{
		EmployeeID:    r.employeeID,
		Timestamp:     now.UTC(),
		MouseCount:    mouse,
		KeyboardCount: keyboard,
		IdleSeconds:   idle,
		WindowTitle:   r.workstation.ForegroundWindow(),
		IPAddress:     r.workstation.IPAddress(),
		DeviceID:      r.workstation.DeviceID(),
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.interval)
	defer cancel()

	if err := r.sender.Send(sendCtx, event); err != nil {
		util.Warn("Failed to deliver activity report",
			util.Int64("employee_id", r.employeeID),
			util.ErrorField(err))
	}
}
