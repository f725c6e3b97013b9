package risk

import (
	"testing"
	"time"

	"fraud-detection-service/internal/features"
	"fraud-detection-service/internal/model"
)

func testEngine() *Engine {
	return NewEngine(features.NewKeywordSet([]string{"youtube", "netflix", "game"}))
}

// workEvent builds a quiet daytime baseline event.
func workEvent() model.ActivityEvent {
	return model.ActivityEvent{
		Timestamp:     time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
		MouseCount:    40,
		KeyboardCount: 30,
		IdleSeconds:   10,
		WindowTitle:   "main.go - Visual Studio Code",
		IPAddress:     "10.0.0.5",
		DeviceID:      "ws-0042",
	}
}

func repeatEvents(n int, mutate func(i int, ev *model.ActivityEvent)) []model.ActivityEvent {
	events := make([]model.ActivityEvent, n)
	for i := range events {
		events[i] = workEvent()
		if mutate != nil {
			mutate(i, &events[i])
		}
	}
	return events
}

func findFactor(factors []model.RiskFactor, typ model.RiskFactorType) *model.RiskFactor {
	for i := range factors {
		if factors[i].Type == typ {
			return &factors[i]
		}
	}
	return nil
}

func TestEvaluateEmptyBatch(t *testing.T) {
	if factors := testEngine().Evaluate(nil); factors != nil {
		t.Errorf("Evaluate(nil) = %v, want nil", factors)
	}
}

func TestQuietBaselineHasNoFactors(t *testing.T) {
	factors := testEngine().Evaluate(repeatEvents(10, nil))
	if len(factors) != 0 {
		t.Errorf("baseline produced factors: %v", factors)
	}
}

func TestDistractingAppRule(t *testing.T) {
	tests := []struct {
		name         string
		distracted   int
		total        int
		wantFactor   bool
		wantSeverity model.Severity
	}{
		{"below floor", 3, 10, false, ""},
		{"just above floor", 4, 10, true, model.SeverityMedium},
		{"at high boundary", 5, 10, true, model.SeverityMedium},
		{"above high boundary", 6, 10, true, model.SeverityHigh},
		{"netflix heavy window", 8, 12, true, model.SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := repeatEvents(tt.total, func(i int, ev *model.ActivityEvent) {
				if i < tt.distracted {
					ev.WindowTitle = "Netflix - Continue Watching"
				}
			})

			factor := findFactor(testEngine().Evaluate(events), model.FactorDistractingApp)
			if tt.wantFactor != (factor != nil) {
				t.Fatalf("factor presence = %v, want %v", factor != nil, tt.wantFactor)
			}
			if factor != nil && factor.Severity != tt.wantSeverity {
				t.Errorf("severity = %v, want %v", factor.Severity, tt.wantSeverity)
			}
		})
	}
}

func TestHighIdleRule(t *testing.T) {
	tests := []struct {
		name         string
		idle         int
		wantFactor   bool
		wantSeverity model.Severity
	}{
		{"mean at floor", 45, false, ""},
		{"medium band", 50, true, model.SeverityMedium},
		{"mean at high boundary", 60, true, model.SeverityMedium},
		{"high band", 70, true, model.SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := repeatEvents(10, func(i int, ev *model.ActivityEvent) {
				ev.IdleSeconds = tt.idle
			})

			factor := findFactor(testEngine().Evaluate(events), model.FactorHighIdleTime)
			if tt.wantFactor != (factor != nil) {
				t.Fatalf("factor presence = %v, want %v", factor != nil, tt.wantFactor)
			}
			if factor != nil && factor.Severity != tt.wantSeverity {
				t.Errorf("severity = %v, want %v", factor.Severity, tt.wantSeverity)
			}
		})
	}
}

func TestAfterHoursRule(t *testing.T) {
	tests := []struct {
		name       string
		lateCount  int
		total      int
		wantFactor bool
	}{
		{"exactly at ratio", 3, 10, false},
		{"above ratio", 4, 10, true},
		{"all late", 10, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := repeatEvents(tt.total, func(i int, ev *model.ActivityEvent) {
				if i < tt.lateCount {
					ev.Timestamp = time.Date(2026, 3, 4, 23, 0, 0, 0, time.UTC)
				}
			})

			factor := findFactor(testEngine().Evaluate(events), model.FactorAfterHours)
			if tt.wantFactor != (factor != nil) {
				t.Errorf("factor presence = %v, want %v", factor != nil, tt.wantFactor)
			}
		})
	}
}

func TestIPChurnRule(t *testing.T) {
	// Three distinct IPs stays quiet, four flags high severity.
	events := repeatEvents(10, func(i int, ev *model.ActivityEvent) {
		ev.IPAddress = []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}[i%3]
	})
	if f := findFactor(testEngine().Evaluate(events), model.FactorIPMismatch); f != nil {
		t.Errorf("3 distinct IPs flagged: %v", f)
	}

	events = repeatEvents(10, func(i int, ev *model.ActivityEvent) {
		ev.IPAddress = []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"}[i%4]
	})
	factor := findFactor(testEngine().Evaluate(events), model.FactorIPMismatch)
	if factor == nil {
		t.Fatal("4 distinct IPs not flagged")
	}
	if factor.Severity != model.SeverityHigh {
		t.Errorf("severity = %v, want high", factor.Severity)
	}
}

func TestDeviceChurnRule(t *testing.T) {
	events := repeatEvents(10, func(i int, ev *model.ActivityEvent) {
		ev.DeviceID = []string{"ws-1", "ws-2"}[i%2]
	})
	if f := findFactor(testEngine().Evaluate(events), model.FactorDeviceAnomaly); f != nil {
		t.Errorf("2 distinct devices flagged: %v", f)
	}

	events = repeatEvents(10, func(i int, ev *model.ActivityEvent) {
		ev.DeviceID = []string{"ws-1", "ws-2", "ws-3"}[i%3]
	})
	factor := findFactor(testEngine().Evaluate(events), model.FactorDeviceAnomaly)
	if factor == nil {
		t.Fatal("3 distinct devices not flagged")
	}
	if factor.Severity != model.SeverityMedium {
		t.Errorf("severity = %v, want medium", factor.Severity)
	}
}

func TestPatternDeviationRule(t *testing.T) {
	// Steady totals stay quiet.
	if f := findFactor(testEngine().Evaluate(repeatEvents(10, nil)), model.FactorPatternDeviation); f != nil {
		t.Errorf("steady activity flagged: %v", f)
	}

	// One huge burst against a near-zero baseline drives the coefficient of
	// variation well past the threshold.
	events := repeatEvents(10, func(i int, ev *model.ActivityEvent) {
		ev.MouseCount = 0
		ev.KeyboardCount = 0
		if i == 0 {
			ev.MouseCount = 5000
		}
	})
	factor := findFactor(testEngine().Evaluate(events), model.FactorPatternDeviation)
	if factor == nil {
		t.Fatal("bursty activity not flagged")
	}
	if factor.Severity != model.SeverityMedium {
		t.Errorf("severity = %v, want medium", factor.Severity)
	}
}

func TestPatternDeviationZeroMean(t *testing.T) {
	events := repeatEvents(10, func(i int, ev *model.ActivityEvent) {
		ev.MouseCount = 0
		ev.KeyboardCount = 0
	})
	if f := findFactor(testEngine().Evaluate(events), model.FactorPatternDeviation); f != nil {
		t.Errorf("all-zero activity flagged: %v", f)
	}
}

func TestStackedScenario(t *testing.T) {
	// Half the window on streaming sites with heavy idle: both rules fire
	// and the distracting factor, first in rule order with high severity,
	// wins the description.
	events := repeatEvents(12, func(i int, ev *model.ActivityEvent) {
		ev.IdleSeconds = 70
		if i < 8 {
			ev.WindowTitle = "Netflix - Home"
		}
	})

	factors := testEngine().Evaluate(events)
	if findFactor(factors, model.FactorDistractingApp) == nil {
		t.Error("distracting factor missing")
	}
	if findFactor(factors, model.FactorHighIdleTime) == nil {
		t.Error("idle factor missing")
	}

	want := "8 out of 12 recent logs show foreground use of non-work applications (e.g., social media, streaming)."
	if got := Describe(factors); got != want {
		t.Errorf("Describe = %q, want %q", got, want)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name    string
		factors []model.RiskFactor
		want    string
	}{
		{
			"no factors",
			nil,
			"Anomalous behavior detected",
		},
		{
			"first factor when none high",
			[]model.RiskFactor{
				{Severity: model.SeverityMedium, Description: "first"},
				{Severity: model.SeverityMedium, Description: "second"},
			},
			"first",
		},
		{
			"first high wins over earlier medium",
			[]model.RiskFactor{
				{Severity: model.SeverityMedium, Description: "medium"},
				{Severity: model.SeverityHigh, Description: "high"},
			},
			"high",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Describe(tt.factors); got != tt.want {
				t.Errorf("Describe = %q, want %q", got, tt.want)
			}
		})
	}
}
