package scoring

import (
	"math"
	"strings"
	"time"

	"horse.fit/radar/internal/dedup"
)

const (
	// NoveltyWindowDays bounds how far back the novelty comparison looks.
	NoveltyWindowDays = 30
	// NoveltyCompareLimit caps how many recent fingerprints are compared.
	NoveltyCompareLimit = 1000

	// recencyHalfLife is the age at which the recency score halves.
	recencyHalfLife = 24 * time.Hour

	neutralScore = 0.5
)

// Weights combine the three component scores into the final score. They are
// expected, not enforced, to sum to 1.
type Weights struct {
	Novelty float64
	Quality float64
	Recency float64
}

// Scores is the full scoring result for one item.
type Scores struct {
	Novelty float64
	Quality float64
	Recency float64
	Final   float64
}

// sourceWeights are per-source quality priors. Unknown sources get 0.5.
var sourceWeights = map[string]float64{
	"hackernews-top": 0.8,
	"arxiv-cs-ai":    0.9,
	"arxiv-cs-lg":    0.9,
	"techcrunch":     0.6,
	"mit-news":       0.7,
	"product-hunt":   0.6,
}

// Engine computes novelty, quality, recency and final scores. All methods
// are pure given their inputs; the recent-fingerprint window is supplied by
// the caller rather than read from ambient state.
type Engine struct {
	weights Weights
}

func NewEngine(weights Weights) *Engine {
	return &Engine{weights: weights}
}

// Novelty scores dissimilarity against recent content. An item without a
// fingerprint scores a neutral 0.5; with no comparable recent items it is
// maximally novel. Otherwise the minimum Hamming distance to the window is
// normalized so that distance 0 scores 0 and distance >= 32 scores 1.
func (e *Engine) Novelty(fingerprint uint64, hasFingerprint bool, recent []uint64) float64 {
	if !hasFingerprint {
		return neutralScore
	}
	if len(recent) == 0 {
		return 1.0
	}

	minDistance := 64
	for _, existing := range recent {
		if d := dedup.HammingDistance(fingerprint, existing); d < minDistance {
			minDistance = d
		}
	}

	return math.Min(float64(minDistance)/32.0, 1.0)
}

// Quality averages the heuristic factors that apply to the item. The source
// prior always contributes; engagement, discussion, text length and
// code-marker factors contribute only when their signal is present.
func (e *Engine) Quality(sourceName string, signals map[string]any, extractedText string) float64 {
	score := 0.0
	factors := 0

	weight, known := sourceWeights[sourceName]
	if !known {
		weight = neutralScore
	}
	score += weight
	factors++

	if points := signalNumber(signals, "score"); points > 0 {
		score += math.Min(points/100.0, 1.0)
		factors++
	}
	if comments := signalNumber(signals, "descendants"); comments > 0 {
		score += math.Min(comments/50.0, 1.0)
		factors++
	}

	if extractedText != "" {
		switch textLen := len(extractedText); {
		case textLen >= 500 && textLen <= 5000:
			score += 0.8
		case textLen > 5000:
			score += 0.6
		default:
			score += 0.3
		}
		factors++

		if hasCodeMarkers(extractedText) {
			score += 0.7
			factors++
		}
	}

	if factors == 0 {
		return neutralScore
	}
	return score / float64(factors)
}

// Recency decays exponentially with a 24-hour half-life. Items without a
// timestamp score a neutral 0.5; future timestamps score 1.
func (e *Engine) Recency(publishedAt *time.Time, now time.Time) float64 {
	if publishedAt == nil {
		return neutralScore
	}

	age := now.Sub(publishedAt.UTC())
	if age < 0 {
		return 1.0
	}

	ageHours := age.Hours()
	decay := math.Pow(0.5, ageHours/recencyHalfLife.Hours())
	return clamp01(decay)
}

// Final is the weighted sum of the component scores, clamped to [0,1].
func (e *Engine) Final(novelty, quality, recency float64) float64 {
	final := e.weights.Novelty*novelty +
		e.weights.Quality*quality +
		e.weights.Recency*recency
	return clamp01(final)
}

// Score computes all four scores for one item.
func (e *Engine) Score(
	fingerprint uint64,
	hasFingerprint bool,
	recent []uint64,
	publishedAt *time.Time,
	now time.Time,
	sourceName string,
	signals map[string]any,
	extractedText string,
) Scores {
	novelty := e.Novelty(fingerprint, hasFingerprint, recent)
	quality := e.Quality(sourceName, signals, extractedText)
	recency := e.Recency(publishedAt, now)
	return Scores{
		Novelty: novelty,
		Quality: quality,
		Recency: recency,
		Final:   e.Final(novelty, quality, recency),
	}
}

func hasCodeMarkers(text string) bool {
	return strings.Contains(text, "```") ||
		strings.Contains(text, "def ") ||
		strings.Contains(text, "function ")
}

// signalNumber reads a numeric signal from the free-form payload. JSON
// round-trips produce float64; connectors populating the map directly may
// use int.
func signalNumber(signals map[string]any, key string) float64 {
	if signals == nil {
		return 0
	}
	switch v := signals[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(v, 1))
}
