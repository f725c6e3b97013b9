package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"fraud-detection-service/internal/anomaly"
	"fraud-detection-service/internal/client"
	"fraud-detection-service/internal/config"
	"fraud-detection-service/internal/features"
	"fraud-detection-service/internal/model"
	"fraud-detection-service/internal/risk"
	"fraud-detection-service/internal/util"
)

// ActivityReader is the slice of the activity store the detector needs.
type ActivityReader interface {
	RecentEvents(ctx context.Context, employeeID int64, limit int) ([]model.ActivityEvent, error)
}

// AlertWriter persists fraud alerts.
type AlertWriter interface {
	InsertAlert(ctx context.Context, alert *model.FraudAlert) error
}

// AlertNotifier pushes persisted alerts onto the alert stream. Delivery is
// best effort; the durable copy is the one AlertWriter made.
type AlertNotifier interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// DetectionService runs the full evaluation pipeline for one employee:
// fetch telemetry, fit and score the anomaly model, run the rule engine, and
// raise an alert when both the model and the score threshold agree.
type DetectionService struct {
	activity  ActivityReader
	alerts    AlertWriter
	producer  AlertNotifier
	es        *client.ESClient
	extractor *features.Extractor
	rules     *risk.Engine
	cfg       config.DetectionConfig

	mu       sync.Mutex
	inFlight map[int64]*sync.Mutex
}

func NewDetectionService(
	activity ActivityReader,
	alerts AlertWriter,
	producer AlertNotifier,
	es *client.ESClient,
	cfg config.DetectionConfig,
) *DetectionService {
	keywords := features.NewKeywordSet(cfg.DistractingKeywords)
	return &DetectionService{
		activity:  activity,
		alerts:    alerts,
		producer:  producer,
		es:        es,
		extractor: features.NewExtractor(keywords),
		rules:     risk.NewEngine(keywords),
		cfg:       cfg,
	}
}

// employeeLock serializes evaluations per employee. Concurrent triggers for
// the same employee (scheduler tick racing an ingest) queue up instead of
// double-alerting.
func (s *DetectionService) employeeLock(employeeID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight == nil {
		s.inFlight = make(map[int64]*sync.Mutex)
	}
	lock, ok := s.inFlight[employeeID]
	if !ok {
		lock = &sync.Mutex{}
		s.inFlight[employeeID] = lock
	}
	return lock
}

// shouldAlert is the persistence gate: the model must flag the window as
// anomalous and the score must clear the floor strictly. A score of exactly
// the floor does not alert.
func shouldAlert(isAnomaly bool, score, floor float64) bool {
	return isAnomaly && score > floor
}

// Evaluate scores an employee's recent telemetry. It returns the live risk
// summary plus the persisted alert, or a nil alert when the gate did not
// fire. With fewer rows than the analysis minimum both returns are nil.
func (s *DetectionService) Evaluate(ctx context.Context, employeeID int64) (*model.RiskSummary, *model.FraudAlert, error) {
	lock := s.employeeLock(employeeID)
	lock.Lock()
	defer lock.Unlock()

	summary, result, err := s.assess(ctx, employeeID)
	if err != nil {
		return nil, nil, err
	}
	if summary == nil {
		return nil, nil, nil
	}

	if !shouldAlert(result.IsAnomaly, summary.RiskScore, s.cfg.AlertScoreFloor) {
		return summary, nil, nil
	}

	alert := &model.FraudAlert{
		EmployeeID:  employeeID,
		RiskScore:   summary.RiskScore,
		AlertLevel:  summary.AlertLevel,
		Description: risk.Describe(summary.Factors),
		Timestamp:   time.Now().UTC(),
	}

	if err := s.alerts.InsertAlert(ctx, alert); err != nil {
		return summary, nil, fmt.Errorf("failed to persist alert: %w", err)
	}

	s.publishAlert(ctx, alert)
	s.indexAlert(ctx, alert)

	return summary, alert, nil
}

// GetRiskScore serves the on-demand score read. Same pipeline as Evaluate
// but it never creates an alert, and too little data yields the neutral
// zero-risk summary instead of nothing.
func (s *DetectionService) GetRiskScore(ctx context.Context, employeeID int64) (*model.RiskSummary, error) {
	summary, _, err := s.assess(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return &model.RiskSummary{
			RiskScore:  0,
			AlertLevel: model.AlertLevelLow,
			Factors:    []model.RiskFactor{},
		}, nil
	}
	return summary, nil
}

// assess runs fetch, model fit and score, and the rule engine. A nil summary
// with a nil error means there were too few rows to analyze.
func (s *DetectionService) assess(ctx context.Context, employeeID int64) (*model.RiskSummary, model.AnomalyResult, error) {
	startTime := time.Now()

	var result model.AnomalyResult

	events, err := s.activity.RecentEvents(ctx, employeeID, s.cfg.FetchLimit)
	if err != nil {
		return nil, result, fmt.Errorf("failed to load telemetry: %w", err)
	}
	if len(events) < s.cfg.MinAnalysisSamples {
		util.Debug("Too few telemetry rows to evaluate",
			util.Int64("employee_id", employeeID),
			util.Int("rows", len(events)))
		return nil, result, nil
	}

	// Fit on the whole fetched batch, score only the most recent window.
	// Events arrive newest first.
	recent := events
	if len(recent) > s.cfg.RecentWindow {
		recent = recent[:s.cfg.RecentWindow]
	}

	scorer := anomaly.NewScorer(anomaly.Options{
		Trees:         s.cfg.Trees,
		Contamination: s.cfg.Contamination,
		MinSamples:    s.cfg.MinFitSamples,
		RatioFloor:    s.cfg.AnomalyRatioFloor,
	})

	// Model and rules are independent reads of the same window.
	var factors []model.RiskFactor
	g := new(errgroup.Group)
	g.Go(func() error {
		if scorer.Fit(s.extractor.Extract(events)) {
			result = scorer.Score(s.extractor.Extract(recent))
		}
		return nil
	})
	g.Go(func() error {
		factors = s.rules.Evaluate(recent)
		return nil
	})
	_ = g.Wait()

	score := math.Round(result.AnomalyScore*100) / 100
	summary := &model.RiskSummary{
		RiskScore:  score,
		AlertLevel: model.LevelForScore(score),
		Factors:    factors,
	}

	util.Debug("Employee evaluated",
		util.Int64("employee_id", employeeID),
		util.Float64("risk_score", score),
		util.Bool("is_anomaly", result.IsAnomaly),
		util.Int("factors", len(factors)),
		util.Duration("duration", time.Since(startTime)))

	return summary, result, nil
}

// publishAlert streams the alert to Kafka for downstream consumers. Failures
// are logged, not returned: the alert is already durable.
func (s *DetectionService) publishAlert(ctx context.Context, alert *model.FraudAlert) {
	if s.producer == nil {
		return
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		util.Error("Failed to encode alert for streaming",
			util.String("alert_id", alert.ID),
			util.ErrorField(err))
		return
	}

	err = s.producer.ProduceMessage(ctx, config.Get().Kafka.AlertTopic,
		[]byte(fmt.Sprintf("%d", alert.EmployeeID)), payload, nil)
	if err != nil {
		util.Error("Failed to stream alert",
			util.String("alert_id", alert.ID),
			util.Int64("employee_id", alert.EmployeeID),
			util.ErrorField(err))
	}
}

// indexAlert mirrors the alert into Elasticsearch for ad hoc search.
func (s *DetectionService) indexAlert(ctx context.Context, alert *model.FraudAlert) {
	if s.es == nil {
		return
	}

	res, err := s.es.IndexDocument(s.es.AlertIndex(), alert.ID, alert)
	if err != nil {
		util.Warn("Failed to index alert",
			util.String("alert_id", alert.ID),
			util.ErrorField(err))
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		util.Warn("Alert indexing rejected",
			util.String("alert_id", alert.ID),
			util.String("status", res.Status()))
	}
}
