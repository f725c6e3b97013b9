// Package anomaly scores batches of activity feature vectors with an
// unsupervised isolation-style ensemble. Each evaluation is self-contained:
// the model is fit fresh on the batch at hand and discarded afterwards, so no
// state is shared across employees or across calls.
package anomaly

import (
	"math/rand"
	"time"

	"fraud-detection-service/internal/model"
	"fraud-detection-service/internal/util"
)

// Options tunes one scorer instance.
type Options struct {
	// Trees is the ensemble size.
	Trees int
	// Contamination is the fraction of the population assumed anomalous.
	Contamination float64
	// MinSamples is the fitting floor; fewer rows yield the neutral result.
	MinSamples int
	// RatioFloor: a batch is anomalous when more than this fraction of its
	// rows classify as outliers.
	RatioFloor float64
	// Seed fixes the random source when non-zero (tests); otherwise the
	// scorer is time-seeded.
	Seed int64
}

// DefaultOptions reproduce the calibrated alerting behavior.
func DefaultOptions() Options {
	return Options{
		Trees:         100,
		Contamination: 0.1,
		MinSamples:    10,
		RatioFloor:    0.3,
	}
}

// neutralResult is returned whenever the model could not be fit: not an
// error, just zero risk.
var neutralResult = model.AnomalyResult{IsAnomaly: false, AnomalyScore: 0, AnomalyRatio: 0}

// Scorer fits and scores one evaluation batch. Not safe for concurrent use;
// callers create one per evaluation.
type Scorer struct {
	opts   Options
	rng    *rand.Rand
	scaler *standardScaler
	forest *forest
	fitted bool
}

// NewScorer creates an unfitted scorer.
func NewScorer(opts Options) *Scorer {
	if opts.Trees <= 0 {
		opts.Trees = 100
	}
	if opts.MinSamples <= 0 {
		opts.MinSamples = 10
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Scorer{
		opts: opts,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Fit standardizes the batch and grows the ensemble on it. Returns false
// (leaving the scorer unfit) when the batch is too small or degenerate;
// subsequent Score calls then return the neutral result.
func (s *Scorer) Fit(vectors []model.FeatureVector) bool {
	s.fitted = false

	if len(vectors) < s.opts.MinSamples {
		return false
	}

	rows := toMatrix(vectors)
	scaler, err := fitScaler(rows)
	if err != nil {
		util.Warn("anomaly model fit failed",
			util.Int("rows", len(vectors)),
			util.ErrorField(err))
		return false
	}

	s.scaler = scaler
	s.forest = fitForest(scaler.transform(rows), s.opts.Trees, s.opts.Contamination, s.rng)
	s.fitted = true
	return true
}

// Score evaluates a batch against the fitted model. The risk score is the
// batch-mean raw score pushed through a fixed affine transform onto [0, 100];
// the anomaly flag fires when the outlier ratio exceeds the floor.
func (s *Scorer) Score(vectors []model.FeatureVector) model.AnomalyResult {
	if !s.fitted || len(vectors) == 0 {
		return neutralResult
	}

	rows := s.scaler.transform(toMatrix(vectors))

	var sum float64
	outliers := 0
	for _, row := range rows {
		sum += s.forest.score(row)
		if s.forest.isOutlier(row) {
			outliers++
		}
	}

	avg := sum / float64(len(rows))
	ratio := float64(outliers) / float64(len(rows))

	// The +0.5 recenters the typical raw range before inversion.
	score := (1 - (avg + 0.5)) * 100
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	util.Debug("anomaly batch scored",
		util.Int("rows", len(rows)),
		util.Float64("avg_raw", avg),
		util.Float64("ratio", ratio),
		util.Float64("risk_score", score))

	return model.AnomalyResult{
		IsAnomaly:    ratio > s.opts.RatioFloor,
		AnomalyScore: score,
		AnomalyRatio: ratio,
	}
}

func toMatrix(vectors []model.FeatureVector) [][]float64 {
	rows := make([][]float64, len(vectors))
	for i, v := range vectors {
		rows[i] = v.Slice()
	}
	return rows
}
