package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"fraud-detection-service/internal/service"
	"fraud-detection-service/internal/util"
)

// EmployeeLister provides the IDs to sweep each tick.
type EmployeeLister interface {
	ListEmployeeIDs() ([]int64, error)
}

// maxConcurrentEvaluations bounds the per-tick fan-out so a large roster
// cannot saturate ClickHouse.
const maxConcurrentEvaluations = 8

// Scheduler periodically re-evaluates every employee so fraud surfaced by
// slow drift is caught even when no fresh telemetry triggers a check.
type Scheduler struct {
	employees EmployeeLister
	detector  service.Evaluator
	broadcast service.Broadcaster
	interval  time.Duration
}

func New(employees EmployeeLister, detector service.Evaluator, broadcast service.Broadcaster, interval time.Duration) *Scheduler {
	return &Scheduler{
		employees: employees,
		detector:  detector,
		broadcast: broadcast,
		interval:  interval,
	}
}

// Run sweeps on a fixed interval until the context is cancelled. The first
// sweep waits one full interval so startup is not dominated by model fits.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	util.Info("Fraud evaluation scheduler started",
		util.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			util.Info("Fraud evaluation scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	startTime := time.Now()

	ids, err := s.employees.ListEmployeeIDs()
	if err != nil {
		util.Error("Failed to list employees for sweep", util.ErrorField(err))
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentEvaluations)

	var alerts atomic.Int64
	for _, employeeID := range ids {
		id := employeeID
		g.Go(func() error {
			_, alert, err := s.detector.Evaluate(ctx, id)
			if err != nil {
				util.Error("Sweep evaluation failed",
					util.Int64("employee_id", id),
					util.ErrorField(err))
				// One employee failing must not abort the sweep.
				return nil
			}
			if alert != nil {
				alerts.Add(1)
				if s.broadcast != nil {
					s.broadcast.ToAdmins(service.EventFraudAlert, alert)
					s.broadcast.ToEmployee(id, service.EventEmployeeWarning, map[string]interface{}{
						"message":     alert.Description,
						"risk_score":  alert.RiskScore,
						"alert_level": alert.AlertLevel,
					})
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	util.Debug("Fraud sweep completed",
		util.Int("employees", len(ids)),
		util.Int64("alerts", alerts.Load()),
		util.Duration("duration", time.Since(startTime)))
}
