package consistency

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/adforge/api/internal/model"
)

// scriptedScorer returns a fixed score (all dimensions equal) per call, in order.
type scriptedScorer struct {
	scores   []float64
	calls    int
	lastRefs []string
}

func (s *scriptedScorer) Compare(ctx context.Context, candidate string, references []string, scoreContext string) (*model.DimensionScores, error) {
	if s.calls >= len(s.scores) {
		return nil, errors.New("no more scripted scores")
	}
	v := s.scores[s.calls]
	s.calls++
	s.lastRefs = references
	return &model.DimensionScores{
		Identity:         v,
		Continuity:       v,
		PromptAdherence:  v,
		TechnicalQuality: v,
	}, nil
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestGateConvergence(t *testing.T) {
	scorer := &scriptedScorer{scores: []float64{0.60, 0.55, 0.78}}
	gate := NewGate(scorer)

	var regens []int
	regen := func(ctx context.Context, attempt int) (string, error) {
		regens = append(regens, attempt)
		return fmt.Sprintf("frame-regen-%d.png", attempt), nil
	}

	best, score, attempts, err := gate.GateAndRegenerate(
		context.Background(), "frame-0.png", []string{"ref.png"}, "prev.png", "scene 1",
		0.75, 3, regen)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if attempts != 2 {
		t.Errorf("expected exactly 2 regenerations, got %d", attempts)
	}
	if len(regens) != 2 {
		t.Errorf("regen called %d times, want 2", len(regens))
	}
	if best != "frame-regen-2.png" {
		t.Errorf("expected the 0.78 candidate to win, got %s", best)
	}
	if !almostEqual(score.Score, 0.78) {
		t.Errorf("expected final score 0.78, got %f", score.Score)
	}
}

func TestGateNeverAdoptsWorseCandidate(t *testing.T) {
	// 0.60 then two strictly worse regenerations: the original survives.
	scorer := &scriptedScorer{scores: []float64{0.60, 0.55, 0.50}}
	gate := NewGate(scorer)

	best, score, attempts, err := gate.GateAndRegenerate(
		context.Background(), "frame-0.png", nil, "prev.png", "scene 1",
		0.75, 3, func(ctx context.Context, attempt int) (string, error) {
			return fmt.Sprintf("frame-regen-%d.png", attempt), nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if best != "frame-0.png" {
		t.Errorf("worse candidates must not replace the best, got %s", best)
	}
	if !almostEqual(score.Score, 0.60) {
		t.Errorf("stored score must never decrease, got %f", score.Score)
	}
	if attempts != 2 {
		t.Errorf("expected maxAttempts-1=2 regenerations, got %d", attempts)
	}
}

func TestGateAcceptsImmediately(t *testing.T) {
	scorer := &scriptedScorer{scores: []float64{0.90}}
	gate := NewGate(scorer)

	regenCalled := false
	best, score, attempts, err := gate.GateAndRegenerate(
		context.Background(), "frame-0.png", nil, "prev.png", "scene 1",
		0.75, 3, func(ctx context.Context, attempt int) (string, error) {
			regenCalled = true
			return "", nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if regenCalled {
		t.Error("regeneration must not run for an above-threshold candidate")
	}
	if attempts != 0 || best != "frame-0.png" || !almostEqual(score.Score, 0.90) {
		t.Errorf("got best=%s score=%f attempts=%d", best, score.Score, attempts)
	}
}

func TestScoreItemFirstItemContinuity(t *testing.T) {
	// The scorer reports zero continuity, but with no preceding item the
	// gate fixes continuity at 1.0.
	scorer := &fixedScorer{dims: model.DimensionScores{
		Identity:         1.0,
		Continuity:       0.0,
		PromptAdherence:  1.0,
		TechnicalQuality: 1.0,
	}}
	gate := NewGate(scorer)

	res, err := gate.ScoreItem(context.Background(), "frame-0.png", []string{"ref.png"}, "", "scene 0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(res.Score, 1.0) {
		t.Errorf("first-item continuity should be fixed at 1.0, overall = %f", res.Score)
	}
}

func TestScoreItemThreadsPrecedingItem(t *testing.T) {
	scorer := &scriptedScorer{scores: []float64{0.8}}
	gate := NewGate(scorer)

	_, err := gate.ScoreItem(context.Background(), "frame-2.png", []string{"ref.png"}, "frame-1.png", "scene 2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, r := range scorer.lastRefs {
		if r == "frame-1.png" {
			found = true
		}
	}
	if !found {
		t.Errorf("preceding item must be part of the comparison references, got %v", scorer.lastRefs)
	}
}

type fixedScorer struct {
	dims model.DimensionScores
}

func (s *fixedScorer) Compare(ctx context.Context, candidate string, references []string, scoreContext string) (*model.DimensionScores, error) {
	d := s.dims
	return &d, nil
}

func TestOverallWeights(t *testing.T) {
	d := model.DimensionScores{
		Identity:         1.0,
		Continuity:       0.5,
		PromptAdherence:  0.0,
		TechnicalQuality: 1.0,
	}
	// 0.40*1.0 + 0.30*0.5 + 0.20*0.0 + 0.10*1.0
	if got := Overall(d); !almostEqual(got, 0.65) {
		t.Errorf("Overall = %f, want 0.65", got)
	}
}

func TestRatingBuckets(t *testing.T) {
	cases := []struct {
		score float64
		want  model.Rating
	}{
		{0.95, model.RatingExcellent},
		{0.80, model.RatingExcellent},
		{0.79, model.RatingAcceptable},
		{0.70, model.RatingAcceptable},
		{0.69, model.RatingMarginal},
		{0.60, model.RatingMarginal},
		{0.59, model.RatingFailed},
		{0.0, model.RatingFailed},
	}
	for _, tc := range cases {
		if got := RatingFor(tc.score); got != tc.want {
			t.Errorf("RatingFor(%f) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestCheckGroupHighVariance(t *testing.T) {
	report := CheckGroup([]float64{0.90, 0.91, 0.50})

	if !almostEqual(report.Mean, 0.77) {
		t.Errorf("mean = %f, want 0.77", report.Mean)
	}
	if !almostEqual(report.StdDev, math.Sqrt(0.1094/3)) {
		t.Errorf("stddev = %f, want %f", report.StdDev, math.Sqrt(0.1094/3))
	}
	if report.Pass {
		t.Error("stddev ≈ 0.191 must fail the 0.10 threshold")
	}
	// |0.50 - 0.77| = 0.27 does not exceed 2σ ≈ 0.382 for this data, so the
	// 2σ rule flags nothing here.
	if len(report.Outliers) != 0 {
		t.Errorf("expected no outliers, got %v", report.Outliers)
	}
}

func TestCheckGroupFlagsOutlier(t *testing.T) {
	scores := []float64{0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.1}
	report := CheckGroup(scores)

	if report.Pass {
		t.Error("expected failure above the stddev threshold")
	}
	if len(report.Outliers) != 1 || report.Outliers[0] != 9 {
		t.Errorf("expected index 9 flagged, got %v", report.Outliers)
	}
}

func TestCheckGroupBoundaryIsStrict(t *testing.T) {
	// For [1,1,1,1,0] the low item sits exactly at 2σ from the mean.
	// The rule is strictly greater-than, so it is not an outlier.
	report := CheckGroup([]float64{1, 1, 1, 1, 0})
	if len(report.Outliers) != 0 {
		t.Errorf("deviation equal to 2σ must not be flagged, got %v", report.Outliers)
	}
}

func TestCheckGroupEdgeCases(t *testing.T) {
	if CheckGroup(nil).Pass {
		t.Error("zero items is undefined and must fail")
	}
	one := CheckGroup([]float64{0.42})
	if !one.Pass {
		t.Error("a single item trivially passes")
	}
	uniform := CheckGroup([]float64{0.8, 0.8, 0.8})
	if !uniform.Pass || len(uniform.Outliers) != 0 {
		t.Errorf("identical scores: stddev 0, no outliers, got %+v", uniform)
	}
}
