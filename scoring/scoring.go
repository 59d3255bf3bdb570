/*
Package scoring rates a team member from their profile attributes.

PURPOSE:
  The score is advisory metadata stored on the resource. The engine treats
  the scorer as a pure function: same attributes, same result. It never
  feeds back into charge computation.

IMPLEMENTATIONS:
  Heuristic: weighted blend of the attributes, no I/O (default)
  Client:    POSTs to an external /predict service, behind a circuit breaker
  Fallback:  tries a primary scorer, uses a secondary one on error

SEE ALSO:
  - client.go: HTTP scorer
  - allocation/service.go: calls Score on resource enroll/update
*/
package scoring

import (
	"context"
	"math"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DefaultScore is assigned when no scorer answers, and to new managers.
const DefaultScore = 50.0

// Attributes are the scorer inputs.
type Attributes struct {
	Experience         int
	WeeklyAvailability int
	HourlyCost         decimal.Decimal
	CurrentLoad        int
	AvgSkill           float64
}

// Result carries the predicted score in [0, 100] and the profile cluster.
type Result struct {
	Cluster int
	Score   float64
}

type Scorer interface {
	Score(ctx context.Context, attrs Attributes) (Result, error)
}

// =============================================================================
// HEURISTIC
// =============================================================================

// Heuristic blends normalized attributes. Each term is mapped to [0, 100]
// before weighting.
type Heuristic struct{}

const (
	experienceCap = 15.0  // years beyond this add nothing
	costCeiling   = 200.0 // hourly cost at or above this scores 0
	clusterCount  = 4
)

func (Heuristic) Score(_ context.Context, a Attributes) (Result, error) {
	cost, _ := a.HourlyCost.Float64()

	experience := math.Min(float64(max(a.Experience, 0)), experienceCap) / experienceCap * 100
	availability := math.Min(float64(max(a.WeeklyAvailability, 0)), 40) / 40 * 100
	load := 100 - math.Min(float64(max(a.CurrentLoad, 0)), 100)
	price := 100 - math.Min(math.Max(cost, 0), costCeiling)/costCeiling*100
	skill := math.Min(math.Max(a.AvgSkill, 0), 100)

	score := 0.35*skill + 0.25*experience + 0.15*availability + 0.15*load + 0.10*price
	score = clampScore(score)

	return Result{Cluster: clusterOf(score), Score: score}, nil
}

func clampScore(s float64) float64 {
	if math.IsNaN(s) {
		return DefaultScore
	}
	s = math.Max(0, math.Min(100, s))
	return math.Round(s*100) / 100
}

// clusterOf buckets a score into quartiles, 0 (lowest) to 3.
func clusterOf(score float64) int {
	c := int(score / (100 / clusterCount))
	if c >= clusterCount {
		c = clusterCount - 1
	}
	return c
}

// =============================================================================
// FALLBACK
// =============================================================================

// Fallback asks Primary first and Secondary when Primary fails.
type Fallback struct {
	Primary   Scorer
	Secondary Scorer
	Log       logrus.FieldLogger
}

func NewFallback(primary, secondary Scorer, log logrus.FieldLogger) *Fallback {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Fallback{Primary: primary, Secondary: secondary, Log: log.WithField("component", "scoring")}
}

func (f *Fallback) Score(ctx context.Context, a Attributes) (Result, error) {
	res, err := f.Primary.Score(ctx, a)
	if err == nil {
		return res, nil
	}
	f.Log.WithError(err).Warn("primary scorer failed, using fallback")
	return f.Secondary.Score(ctx, a)
}
