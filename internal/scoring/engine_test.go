package scoring

import (
	"math"
	"strings"
	"testing"
	"time"
)

var testWeights = Weights{Novelty: 0.5, Quality: 0.35, Recency: 0.15}

func TestNoveltyWithoutFingerprintIsNeutral(t *testing.T) {
	e := NewEngine(testWeights)
	if got := e.Novelty(0, false, []uint64{1, 2, 3}); got != 0.5 {
		t.Fatalf("novelty without fingerprint = %v, want 0.5", got)
	}
}

func TestNoveltyWithoutComparablesIsMax(t *testing.T) {
	e := NewEngine(testWeights)
	if got := e.Novelty(42, true, nil); got != 1.0 {
		t.Fatalf("novelty with empty window = %v, want 1.0", got)
	}
}

func TestNoveltyNormalizesMinimumDistance(t *testing.T) {
	e := NewEngine(testWeights)

	cases := []struct {
		name   string
		recent []uint64
		want   float64
	}{
		{name: "exact match scores zero", recent: []uint64{0, 1 << 40}, want: 0},
		{name: "distance 16 scores half", recent: []uint64{uint64(1<<16) - 1}, want: 0.5},
		{name: "distance 32 scores one", recent: []uint64{uint64(1<<32) - 1}, want: 1.0},
		{name: "distance above 32 clamps", recent: []uint64{^uint64(0)}, want: 1.0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Novelty(0, true, tc.recent)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("novelty = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNoveltyUsesMinimumNotFirst(t *testing.T) {
	e := NewEngine(testWeights)
	// Distant candidate first, near-identical candidate second.
	recent := []uint64{^uint64(0), 1}
	got := e.Novelty(0, true, recent)
	want := 1.0 / 32.0
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("novelty = %v, want %v", got, want)
	}
}

func TestQualitySourcePriorOnly(t *testing.T) {
	e := NewEngine(testWeights)
	if got := e.Quality("hackernews-top", nil, ""); got != 0.8 {
		t.Fatalf("known source alone = %v, want 0.8", got)
	}
	if got := e.Quality("some-blog", nil, ""); got != 0.5 {
		t.Fatalf("unknown source alone = %v, want 0.5", got)
	}
}

func TestQualityAveragesContributingFactors(t *testing.T) {
	e := NewEngine(testWeights)

	signals := map[string]any{"score": float64(50), "descendants": float64(25)}
	// source 0.5 + engagement 0.5 + discussion 0.5 over 3 factors.
	if got := e.Quality("some-blog", signals, ""); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("quality = %v, want 0.5", got)
	}

	// Engagement saturates at the normalizer.
	saturated := map[string]any{"score": float64(1000)}
	got := e.Quality("some-blog", saturated, "")
	want := (0.5 + 1.0) / 2
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("quality = %v, want %v", got, want)
	}
}

func TestQualityTextLengthBands(t *testing.T) {
	e := NewEngine(testWeights)

	cases := []struct {
		name string
		text string
		want float64
	}{
		{name: "short text", text: strings.Repeat("a", 100), want: (0.5 + 0.3) / 2},
		{name: "ideal length", text: strings.Repeat("a", 1000), want: (0.5 + 0.8) / 2},
		{name: "long text", text: strings.Repeat("a", 6000), want: (0.5 + 0.6) / 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Quality("some-blog", nil, tc.text)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("quality = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestQualityCodeMarkers(t *testing.T) {
	e := NewEngine(testWeights)
	text := strings.Repeat("x", 600) + "\n```go\nfmt.Println()\n```"
	// source 0.5 + length 0.8 + code 0.7 over 3 factors.
	want := (0.5 + 0.8 + 0.7) / 3
	if got := e.Quality("some-blog", nil, text); math.Abs(got-want) > 1e-9 {
		t.Fatalf("quality = %v, want %v", got, want)
	}
}

func TestRecencyHalfLifeBoundaries(t *testing.T) {
	e := NewEngine(testWeights)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		age  time.Duration
		want float64
	}{
		{name: "fresh", age: 0, want: 1.0},
		{name: "one half-life", age: 24 * time.Hour, want: 0.5},
		{name: "two half-lives", age: 48 * time.Hour, want: 0.25},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			published := now.Add(-tc.age)
			got := e.Recency(&published, now)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("recency at age %v = %v, want %v", tc.age, got, tc.want)
			}
		})
	}
}

func TestRecencyEdgeCases(t *testing.T) {
	e := NewEngine(testWeights)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if got := e.Recency(nil, now); got != 0.5 {
		t.Fatalf("recency without timestamp = %v, want 0.5", got)
	}

	future := now.Add(2 * time.Hour)
	if got := e.Recency(&future, now); got != 1.0 {
		t.Fatalf("recency for future timestamp = %v, want 1.0", got)
	}
}

func TestRecencyMonotonicallyNonIncreasing(t *testing.T) {
	e := NewEngine(testWeights)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	prev := 1.1
	for hours := 0; hours <= 240; hours += 6 {
		published := now.Add(-time.Duration(hours) * time.Hour)
		got := e.Recency(&published, now)
		if got > prev {
			t.Fatalf("recency increased at age %dh: %v > %v", hours, got, prev)
		}
		prev = got
	}
}

func TestFinalStaysInRange(t *testing.T) {
	weightSets := []Weights{
		{Novelty: 0.5, Quality: 0.35, Recency: 0.15},
		{Novelty: 1, Quality: 1, Recency: 1}, // deliberately not summing to 1
		{Novelty: 0, Quality: 0, Recency: 0},
		{Novelty: 1, Quality: 0, Recency: 0},
	}
	scores := []float64{0, 0.25, 0.5, 0.75, 1}

	for _, w := range weightSets {
		e := NewEngine(w)
		for _, n := range scores {
			for _, q := range scores {
				for _, r := range scores {
					final := e.Final(n, q, r)
					if final < 0 || final > 1 {
						t.Fatalf("final %v out of [0,1] for weights %+v inputs %v %v %v",
							final, w, n, q, r)
					}
				}
			}
		}
	}
}

func TestScoreCombinesComponents(t *testing.T) {
	e := NewEngine(testWeights)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	published := now.Add(-24 * time.Hour)

	got := e.Score(7, true, nil, &published, now, "some-blog", nil, "")

	if got.Novelty != 1.0 {
		t.Fatalf("novelty = %v, want 1.0", got.Novelty)
	}
	if got.Quality != 0.5 {
		t.Fatalf("quality = %v, want 0.5", got.Quality)
	}
	if math.Abs(got.Recency-0.5) > 1e-9 {
		t.Fatalf("recency = %v, want 0.5", got.Recency)
	}
	want := 0.5*1.0 + 0.35*0.5 + 0.15*0.5
	if math.Abs(got.Final-want) > 1e-9 {
		t.Fatalf("final = %v, want %v", got.Final, want)
	}
}
