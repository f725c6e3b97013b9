// Package risk derives named, human-readable risk factors from recent
// activity with fixed rule thresholds. It runs independently of the anomaly
// model and explains what the score alone cannot.
package risk

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"fraud-detection-service/internal/features"
	"fraud-detection-service/internal/model"
)

const (
	distractingRatioFloor = 0.3
	distractingRatioHigh  = 0.5

	idleMeanFloor = 45.0
	idleMeanHigh  = 60.0

	afterHoursRatioFloor = 0.3

	distinctIPFloor     = 3
	distinctDeviceFloor = 2

	activityVariationFloor = 1.5
)

// Engine evaluates the rule set over an evaluation window of events. Rules
// run in a fixed order: alert descriptions pick the first high-severity
// factor found, so the order is part of the contract.
type Engine struct {
	keywords *features.KeywordSet
}

// NewEngine creates a rule engine sharing the extractor's keyword taxonomy.
func NewEngine(keywords *features.KeywordSet) *Engine {
	return &Engine{keywords: keywords}
}

// Evaluate inspects the batch and returns zero or more factors, at most one
// per rule.
func (e *Engine) Evaluate(events []model.ActivityEvent) []model.RiskFactor {
	if len(events) == 0 {
		return nil
	}

	var factors []model.RiskFactor
	for _, rule := range []func([]model.ActivityEvent) *model.RiskFactor{
		e.distractingApps,
		e.highIdleTime,
		e.afterHoursActivity,
		e.ipChurn,
		e.deviceChurn,
		e.patternDeviation,
	} {
		if f := rule(events); f != nil {
			factors = append(factors, *f)
		}
	}
	return factors
}

func (e *Engine) distractingApps(events []model.ActivityEvent) *model.RiskFactor {
	count := 0
	for _, ev := range events {
		if e.keywords.Match(ev.WindowTitle) {
			count++
		}
	}

	ratio := float64(count) / float64(len(events))
	if ratio <= distractingRatioFloor {
		return nil
	}

	severity := model.SeverityMedium
	if ratio > distractingRatioHigh {
		severity = model.SeverityHigh
	}
	return &model.RiskFactor{
		Type:     model.FactorDistractingApp,
		Severity: severity,
		Description: fmt.Sprintf(
			"%d out of %d recent logs show foreground use of non-work applications (e.g., social media, streaming).",
			count, len(events)),
	}
}

func (e *Engine) highIdleTime(events []model.ActivityEvent) *model.RiskFactor {
	idle := make([]float64, len(events))
	for i, ev := range events {
		idle[i] = float64(ev.IdleSeconds)
	}

	mean := stat.Mean(idle, nil)
	if mean <= idleMeanFloor {
		return nil
	}

	severity := model.SeverityMedium
	if mean > idleMeanHigh {
		severity = model.SeverityHigh
	}
	return &model.RiskFactor{
		Type:     model.FactorHighIdleTime,
		Severity: severity,
		Description: fmt.Sprintf(
			"Average idle time of %.0f seconds exceeds normal threshold (low physical input).", mean),
	}
}

func (e *Engine) afterHoursActivity(events []model.ActivityEvent) *model.RiskFactor {
	count := 0
	for _, ev := range events {
		hour := ev.Timestamp.Hour()
		if hour < 8 || hour > 18 {
			count++
		}
	}

	if float64(count) <= float64(len(events))*afterHoursRatioFloor {
		return nil
	}
	return &model.RiskFactor{
		Type:        model.FactorAfterHours,
		Severity:    model.SeverityMedium,
		Description: "Significant activity detected outside normal business hours (8AM-6PM).",
	}
}

func (e *Engine) ipChurn(events []model.ActivityEvent) *model.RiskFactor {
	unique := distinctNonEmpty(events, func(ev model.ActivityEvent) string { return ev.IPAddress })
	if unique <= distinctIPFloor {
		return nil
	}
	return &model.RiskFactor{
		Type:     model.FactorIPMismatch,
		Severity: model.SeverityHigh,
		Description: fmt.Sprintf(
			"Multiple IP addresses (%d) detected in recent sessions, indicating a change in working location.", unique),
	}
}

func (e *Engine) deviceChurn(events []model.ActivityEvent) *model.RiskFactor {
	unique := distinctNonEmpty(events, func(ev model.ActivityEvent) string { return ev.DeviceID })
	if unique <= distinctDeviceFloor {
		return nil
	}
	return &model.RiskFactor{
		Type:        model.FactorDeviceAnomaly,
		Severity:    model.SeverityMedium,
		Description: fmt.Sprintf("Multiple devices (%d) used in recent sessions.", unique),
	}
}

// patternDeviation flags spiky, irregular input: a high coefficient of
// variation of total activity across the window.
func (e *Engine) patternDeviation(events []model.ActivityEvent) *model.RiskFactor {
	totals := make([]float64, len(events))
	for i, ev := range events {
		totals[i] = float64(ev.TotalActivity())
	}

	mean := stat.Mean(totals, nil)
	if mean <= 0 {
		return nil
	}
	std := stat.StdDev(totals, nil)
	if std/mean <= activityVariationFloor {
		return nil
	}
	return &model.RiskFactor{
		Type:        model.FactorPatternDeviation,
		Severity:    model.SeverityMedium,
		Description: "Irregular activity patterns detected (high variance in mouse/keyboard inputs).",
	}
}

func distinctNonEmpty(events []model.ActivityEvent, key func(model.ActivityEvent) string) int {
	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		if k := key(ev); k != "" {
			seen[k] = struct{}{}
		}
	}
	return len(seen)
}

// Describe renders the one-line alert summary: the first high-severity
// factor's description, else the first factor's, else a generic line.
func Describe(factors []model.RiskFactor) string {
	for _, f := range factors {
		if f.Severity == model.SeverityHigh {
			return f.Description
		}
	}
	if len(factors) > 0 {
		return factors[0].Description
	}
	return "Anomalous behavior detected"
}
