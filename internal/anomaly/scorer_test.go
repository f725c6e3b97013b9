package anomaly

import (
	"math/rand"
	"testing"

	"fraud-detection-service/internal/model"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.Seed = 42
	return opts
}

// clusterVectors builds a tight cluster of ordinary working-hours vectors
// with small deterministic jitter.
func clusterVectors(n int, seed int64) []model.FeatureVector {
	rng := rand.New(rand.NewSource(seed))
	vectors := make([]model.FeatureVector, n)
	for i := range vectors {
		mouse := 40 + rng.Float64()*10
		keyboard := 30 + rng.Float64()*10
		idle := 5 + rng.Float64()*10
		vectors[i] = model.FeatureVector{
			IdleSeconds:   idle,
			MouseCount:    mouse,
			KeyboardCount: keyboard,
			HourOfDay:     10 + rng.Float64()*4,
			IPHash:        120,
			DeviceHash:    640,
			IdleRatio:     idle / (idle + mouse + keyboard + 1),
			TotalActivity: mouse + keyboard,
		}
	}
	return vectors
}

// extremeVectors builds rows far outside the cluster in several dimensions.
func extremeVectors(n int) []model.FeatureVector {
	vectors := make([]model.FeatureVector, n)
	for i := range vectors {
		vectors[i] = model.FeatureVector{
			IdleSeconds:    900,
			MouseCount:     0,
			KeyboardCount:  0,
			HourOfDay:      3,
			IPHash:         987,
			DeviceHash:     13,
			IdleRatio:      0.999,
			AfterHours:     1,
			TotalActivity:  0,
			DistractingApp: 1,
		}
	}
	return vectors
}

func TestScoreUnfitted(t *testing.T) {
	s := NewScorer(testOptions())

	got := s.Score(clusterVectors(10, 1))
	if got != neutralResult {
		t.Errorf("unfitted Score = %+v, want neutral", got)
	}
}

func TestFitBelowMinimum(t *testing.T) {
	s := NewScorer(testOptions())

	if s.Fit(clusterVectors(9, 1)) {
		t.Error("Fit succeeded below the sample floor")
	}
	if got := s.Score(clusterVectors(9, 1)); got != neutralResult {
		t.Errorf("Score after failed fit = %+v, want neutral", got)
	}
}

func TestFitDegenerateBatch(t *testing.T) {
	s := NewScorer(testOptions())

	// Every row identical: no column has variance and fitting must refuse.
	constant := make([]model.FeatureVector, 20)
	for i := range constant {
		constant[i] = model.FeatureVector{MouseCount: 40, KeyboardCount: 30, HourOfDay: 10}
	}

	if s.Fit(constant) {
		t.Error("Fit succeeded on a zero-variance batch")
	}
}

func TestFitAndScoreBounds(t *testing.T) {
	s := NewScorer(testOptions())

	train := clusterVectors(100, 1)
	if !s.Fit(train) {
		t.Fatal("Fit failed on a healthy batch")
	}

	result := s.Score(train[:10])
	if result.AnomalyScore < 0 || result.AnomalyScore > 100 {
		t.Errorf("AnomalyScore = %v, out of [0, 100]", result.AnomalyScore)
	}
	if result.AnomalyRatio < 0 || result.AnomalyRatio > 1 {
		t.Errorf("AnomalyRatio = %v, out of [0, 1]", result.AnomalyRatio)
	}
}

func TestTypicalBatchNotAnomalous(t *testing.T) {
	s := NewScorer(testOptions())

	train := clusterVectors(100, 1)
	if !s.Fit(train) {
		t.Fatal("Fit failed")
	}

	// Scoring a slice of the training cluster itself: at the default 0.1
	// contamination, nowhere near 30% of rows may classify as outliers.
	result := s.Score(clusterVectors(50, 2))
	if result.IsAnomaly {
		t.Errorf("typical batch flagged anomalous: %+v", result)
	}
}

func TestExtremeBatchScoresWorse(t *testing.T) {
	s := NewScorer(testOptions())

	if !s.Fit(clusterVectors(100, 1)) {
		t.Fatal("Fit failed")
	}

	typical := s.Score(clusterVectors(10, 3))
	extreme := s.Score(extremeVectors(10))

	if extreme.AnomalyScore <= typical.AnomalyScore {
		t.Errorf("extreme score %v not above typical score %v",
			extreme.AnomalyScore, typical.AnomalyScore)
	}
	if extreme.AnomalyRatio <= typical.AnomalyRatio {
		t.Errorf("extreme ratio %v not above typical ratio %v",
			extreme.AnomalyRatio, typical.AnomalyRatio)
	}
	if !extreme.IsAnomaly {
		t.Errorf("uniformly extreme batch not flagged: %+v", extreme)
	}
}

func TestSeededDeterminism(t *testing.T) {
	train := clusterVectors(100, 1)
	probe := extremeVectors(10)

	a := NewScorer(testOptions())
	b := NewScorer(testOptions())

	if !a.Fit(train) || !b.Fit(train) {
		t.Fatal("Fit failed")
	}

	if got, want := a.Score(probe), b.Score(probe); got != want {
		t.Errorf("same seed diverged: %+v vs %+v", got, want)
	}
}

func TestEmptyScoreBatch(t *testing.T) {
	s := NewScorer(testOptions())
	if !s.Fit(clusterVectors(50, 1)) {
		t.Fatal("Fit failed")
	}

	if got := s.Score(nil); got != neutralResult {
		t.Errorf("Score(nil) = %+v, want neutral", got)
	}
}
