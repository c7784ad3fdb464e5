package batch

import "time"

// Phase is a coarse growth stage derived from batch age.
type Phase string

const (
	PhaseSeedling   Phase = "seedling"
	PhaseVegetative Phase = "vegetative"
	PhaseMature     Phase = "mature"
	PhaseHarvest    Phase = "harvest"
	PhaseUnknown    Phase = "unknown"
)

// Phases lists the growth phases in the order a batch moves through them.
var Phases = []Phase{PhaseSeedling, PhaseVegetative, PhaseMature, PhaseHarvest}

// Status descriptions.
const (
	DescNoTimeline = "No harvest timeline set"
	DescSeedling   = "Growing - Seedling stage"
	DescVegetative = "Growing - Vegetative stage"
	DescMature     = "Approaching harvest"
	DescHarvest    = "Ready for harvest"
)

// Status is the derived state of a batch at a point in time.
// Age and DaysRemaining are nil when no harvest timeline is set.
type Status struct {
	Phase         Phase  `json:"phase" yaml:"phase"`
	Progress      int    `json:"progress" yaml:"progress"`
	Description   string `json:"status" yaml:"status"`
	Age           *int   `json:"age,omitempty" yaml:"age,omitempty"`
	DaysRemaining *int   `json:"daysRemaining,omitempty" yaml:"daysRemaining,omitempty"`
}

// StatusOf returns the status of a batch as of now.
func (l *Lifecycle) StatusOf(id string, daysToHarvest int) Status {
	return l.StatusAt(id, daysToHarvest, l.now())
}

// StatusAt returns the status of a batch as of now. A non-positive
// daysToHarvest yields PhaseUnknown.
func (l *Lifecycle) StatusAt(id string, daysToHarvest int, now time.Time) Status {
	if daysToHarvest <= 0 {
		return Status{
			Phase:       PhaseUnknown,
			Progress:    0,
			Description: DescNoTimeline,
		}
	}

	age := l.AgeInDaysAt(id, now)
	// Ages are bounded by time.Duration, so a clamped timeline classifies
	// the same way as the real one and keeps the arithmetic in range.
	d := min(daysToHarvest, maxTimelineDays)
	phase, desc := classify(age, d)

	remaining := daysToHarvest - age
	if remaining < 0 {
		remaining = 0
	}

	return Status{
		Phase:         phase,
		Progress:      progress(age, d),
		Description:   desc,
		Age:           &age,
		DaysRemaining: &remaining,
	}
}

// classify applies the 30% / 70% / 100% thresholds with strict comparisons.
// Integer arithmetic keeps the boundaries exact: age < 0.3*d is 10*age < 3*d.
func classify(age, daysToHarvest int) (Phase, string) {
	a, d := int64(age), int64(daysToHarvest)
	switch {
	case 10*a < 3*d:
		return PhaseSeedling, DescSeedling
	case 10*a < 7*d:
		return PhaseVegetative, DescVegetative
	case a < d:
		return PhaseMature, DescMature
	default:
		return PhaseHarvest, DescHarvest
	}
}

// progress returns round(100*age/days) capped at 100, rounding halves up.
func progress(age, daysToHarvest int) int {
	a, d := int64(age), int64(daysToHarvest)
	p := (200*a + d) / (2 * d)
	if p > 100 {
		return 100
	}
	return int(p)
}
