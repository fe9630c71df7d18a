package consistency

import (
	"context"
	"fmt"
	"math"

	"github.com/adforge/api/internal/model"
)

// Scorer is the external perceptual comparison backing the gate
type Scorer interface {
	Compare(ctx context.Context, candidate string, references []string, scoreContext string) (*model.DimensionScores, error)
}

// Dimension weights for the overall score
const (
	weightIdentity         = 0.40
	weightContinuity       = 0.30
	weightPromptAdherence  = 0.20
	weightTechnicalQuality = 0.10
)

// Thresholds used by the pipeline
const (
	StoryboardThreshold  = 0.75
	FrameFlagThreshold   = 0.65
	GroupStdDevThreshold = 0.10
	MaxRegenAttempts     = 3
)

// RatingFor buckets any 0.0–1.0 score
func RatingFor(score float64) model.Rating {
	switch {
	case score >= 0.80:
		return model.RatingExcellent
	case score >= 0.70:
		return model.RatingAcceptable
	case score >= 0.60:
		return model.RatingMarginal
	default:
		return model.RatingFailed
	}
}

// Overall computes the weighted score from a per-dimension breakdown
func Overall(d model.DimensionScores) float64 {
	return weightIdentity*d.Identity +
		weightContinuity*d.Continuity +
		weightPromptAdherence*d.PromptAdherence +
		weightTechnicalQuality*d.TechnicalQuality
}

// Gate scores generated artifacts and drives bounded regeneration
type Gate struct {
	scorer Scorer
}

func NewGate(scorer Scorer) *Gate {
	return &Gate{scorer: scorer}
}

// ScoreItem scores one candidate against the reference set. prev is the
// immediately preceding item in the sequence; when empty (first item)
// continuity is fixed at 1.0 since there is nothing to compare against.
// Continuity is order-dependent: callers must score sequences in order.
func (g *Gate) ScoreItem(ctx context.Context, candidate string, references []string, prev, scoreContext string) (*model.ConsistencyScoreResult, error) {
	refs := references
	if prev != "" {
		refs = append(append([]string{}, references...), prev)
	}

	dims, err := g.scorer.Compare(ctx, candidate, refs, scoreContext)
	if err != nil {
		return nil, fmt.Errorf("consistency scoring failed: %w", err)
	}

	d := *dims
	if prev == "" {
		d.Continuity = 1.0
	}

	overall := Overall(d)
	return &model.ConsistencyScoreResult{
		Score:      overall,
		Rating:     RatingFor(overall),
		Dimensions: d,
		Notes:      d.Notes,
	}, nil
}

// RegenFunc produces a fresh candidate for a below-threshold item. The
// attempt number starts at 1.
type RegenFunc func(ctx context.Context, attempt int) (string, error)

// GateAndRegenerate scores the candidate and, while it is below threshold,
// regenerates up to maxAttempts-1 times. A regenerated candidate is kept
// only when its score strictly exceeds the best seen so far, so the stored
// score never decreases across attempts. Exhausting attempts is not an
// error: the best pair found is returned along with the number of
// regenerations performed.
func (g *Gate) GateAndRegenerate(ctx context.Context, candidate string, references []string, prev, scoreContext string, threshold float64, maxAttempts int, regen RegenFunc) (string, *model.ConsistencyScoreResult, int, error) {
	best := candidate
	bestScore, err := g.ScoreItem(ctx, candidate, references, prev, scoreContext)
	if err != nil {
		return "", nil, 0, err
	}

	if bestScore.Score >= threshold {
		return best, bestScore, 0, nil
	}

	attempts := 0
	for attempt := 1; attempt < maxAttempts; attempt++ {
		next, err := regen(ctx, attempt)
		if err != nil {
			return best, bestScore, attempts, fmt.Errorf("regeneration attempt %d failed: %w", attempt, err)
		}
		attempts = attempt

		score, err := g.ScoreItem(ctx, next, references, prev, scoreContext)
		if err != nil {
			return best, bestScore, attempts, err
		}

		if score.Score > bestScore.Score {
			best = next
			bestScore = score
		}

		if bestScore.Score >= threshold {
			break
		}
	}

	return best, bestScore, attempts, nil
}

// CheckGroup computes the cross-item variance analysis for a set of scores.
// The group passes iff the population standard deviation is below the 0.10
// threshold. An item is an outlier iff it deviates from the mean by strictly
// more than twice the standard deviation; the rule is only evaluated when
// the deviation is non-zero. Zero items is undefined and treated as failed;
// a single item trivially passes.
func CheckGroup(scores []float64) model.GroupConsistencyReport {
	n := len(scores)
	if n == 0 {
		return model.GroupConsistencyReport{Pass: false}
	}
	if n == 1 {
		return model.GroupConsistencyReport{Mean: scores[0], Pass: true}
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(n)

	var variance float64
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	variance /= float64(n)
	stddev := math.Sqrt(variance)

	report := model.GroupConsistencyReport{
		Mean:   mean,
		StdDev: stddev,
		Pass:   stddev < GroupStdDevThreshold,
	}

	if stddev > 0 {
		for i, s := range scores {
			if math.Abs(s-mean) > 2*stddev {
				report.Outliers = append(report.Outliers, i)
			}
		}
	}

	return report
}
