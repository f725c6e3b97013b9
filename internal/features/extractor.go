package features

import (
	"strings"

	"github.com/spaolacci/murmur3"

	"fraud-detection-service/internal/model"
)

const (
	// hashBuckets reduces ip/device hashes to a coarse categorical signal.
	// Collisions are acceptable; the value is not an identity.
	hashBuckets = 1000

	workdayStartHour = 8
	workdayEndHour   = 18
)

// KeywordSet matches window titles against a taxonomy of non-work
// applications using case-insensitive substring matching.
type KeywordSet struct {
	keywords []string
}

// NewKeywordSet lower-cases and retains the given keywords.
func NewKeywordSet(keywords []string) *KeywordSet {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	return &KeywordSet{keywords: lowered}
}

// Match reports whether the title contains any keyword.
func (s *KeywordSet) Match(title string) bool {
	lowered := strings.ToLower(title)
	for _, k := range s.keywords {
		if strings.Contains(lowered, k) {
			return true
		}
	}
	return false
}

// Extractor maps raw activity events into fixed-width numeric feature
// vectors. Pure and deterministic: the same events always produce the same
// vectors.
type Extractor struct {
	keywords *KeywordSet
}

// NewExtractor creates an extractor over the given keyword taxonomy.
func NewExtractor(keywords *KeywordSet) *Extractor {
	return &Extractor{keywords: keywords}
}

// Keywords exposes the taxonomy so the rule engine can share it.
func (e *Extractor) Keywords() *KeywordSet {
	return e.keywords
}

// Extract converts a batch of events into feature vectors. An empty batch
// yields an empty result, not an error.
func (e *Extractor) Extract(events []model.ActivityEvent) []model.FeatureVector {
	if len(events) == 0 {
		return nil
	}

	vectors := make([]model.FeatureVector, 0, len(events))
	for _, ev := range events {
		vectors = append(vectors, e.extractOne(ev))
	}
	return vectors
}

func (e *Extractor) extractOne(ev model.ActivityEvent) model.FeatureVector {
	idle := float64(ev.IdleSeconds)
	mouse := float64(ev.MouseCount)
	keyboard := float64(ev.KeyboardCount)
	hour := float64(ev.Timestamp.Hour())

	total := mouse + keyboard
	// The +1 avoids division by zero and dampens the ratio for near-zero
	// activity rows.
	idleRatio := idle / (idle + total + 1)

	afterHours := 0.0
	if ev.Timestamp.Hour() < workdayStartHour || ev.Timestamp.Hour() > workdayEndHour {
		afterHours = 1.0
	}

	distracting := 0.0
	if e.keywords.Match(ev.WindowTitle) {
		distracting = 1.0
	}

	return model.FeatureVector{
		IdleSeconds:    idle,
		MouseCount:     mouse,
		KeyboardCount:  keyboard,
		HourOfDay:      hour,
		IPHash:         float64(Bucket(ev.IPAddress)),
		DeviceHash:     float64(Bucket(ev.DeviceID)),
		IdleRatio:      idleRatio,
		AfterHours:     afterHours,
		TotalActivity:  total,
		DistractingApp: distracting,
	}
}

// Bucket maps a string (possibly empty, for missing values) onto a stable
// bucket in [0, 1000) via murmur3.
func Bucket(s string) int {
	return int(murmur3.Sum64([]byte(s)) % hashBuckets)
}
