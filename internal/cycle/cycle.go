// Package cycle maps a last-period date and cycle length to a cycle phase,
// day of cycle, and the derived next-period and ovulation estimates.
//
// Everything here is a pure function of its inputs; callers pass "now".
package cycle

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/BTreeMap/PhaseGuide/internal/models"
)

const (
	// DefaultCycleLength is used when the caller does not supply a cycle length.
	DefaultCycleLength = 28
	// MinCycleLength is the shortest cycle that still leaves every phase at least one day.
	MinCycleLength = 4
	// RecommendedMinCycleLength and RecommendedMaxCycleLength bound typical cycles.
	// Values outside this range are accepted.
	RecommendedMinCycleLength = 21
	RecommendedMaxCycleLength = 35
	// LutealPhaseDays is the assumed distance from ovulation to the next period.
	LutealPhaseDays = 14

	// canonical phase boundaries for a cycle of at least canonicalLutealStart days
	canonicalMenstrualEnd  = 5
	canonicalFollicularEnd = 13
	canonicalOvulatoryEnd  = 16
	canonicalLutealStart   = canonicalOvulatoryEnd + 1
	referenceCycleLength   = 28
)

// ErrInvalidConfiguration is returned for a cycle length that cannot be used.
var ErrInvalidConfiguration = errors.New("invalid cycle configuration")

// DetectPhase computes the CycleInfo for the given last period start, cycle
// length and reference time. lastPeriod may lie after now; the day of cycle
// is then derived with the same non-negative modulo arithmetic.
//
// Days are counted between calendar dates in lastPeriod's location, not in
// elapsed 24h periods: a lastPeriod of Jan 1 20:00 and a now of Jan 2 08:00
// give day 2 even though only 12 hours have passed.
func DetectPhase(lastPeriod time.Time, cycleLength int, now time.Time) (models.CycleInfo, error) {
	b, err := boundariesFor(cycleLength)
	if err != nil {
		return models.CycleInfo{}, err
	}

	start := dateOnly(lastPeriod)
	daysSince := daysBetween(start, dateOnly(now.In(lastPeriod.Location())))
	dayOfCycle := mod(daysSince, cycleLength) + 1
	phase := b.phaseOf(dayOfCycle)

	info := models.CycleInfo{
		Phase:               phase,
		DayOfCycle:          dayOfCycle,
		DaysUntilNextPeriod: max(cycleLength-dayOfCycle+1, 0),
		EstimatedNextPeriod: start.AddDate(0, 0, cycleLength),
	}
	if phase == models.PhaseOvulatory {
		ovulation := info.EstimatedNextPeriod.AddDate(0, 0, -LutealPhaseDays)
		info.EstimatedOvulation = &ovulation
	}
	return info, nil
}

// Detect is DetectPhase with the default cycle length.
func Detect(lastPeriod, now time.Time) (models.CycleInfo, error) {
	return DetectPhase(lastPeriod, DefaultCycleLength, now)
}

// DetectNow is DetectPhase evaluated at the current time.
func DetectNow(lastPeriod time.Time, cycleLength int) (models.CycleInfo, error) {
	return DetectPhase(lastPeriod, cycleLength, time.Now())
}

// PhaseRange returns the inclusive day range of phase p for a cycle of the given length.
func PhaseRange(p models.Phase, cycleLength int) (start, end int, err error) {
	b, err := boundariesFor(cycleLength)
	if err != nil {
		return 0, 0, err
	}
	switch p {
	case models.PhaseMenstrual:
		return 1, b.menstrualEnd, nil
	case models.PhaseFollicular:
		return b.menstrualEnd + 1, b.follicularEnd, nil
	case models.PhaseOvulatory:
		return b.follicularEnd + 1, b.ovulatoryEnd, nil
	case models.PhaseLuteal:
		return b.ovulatoryEnd + 1, b.cycleLength, nil
	}
	return 0, 0, fmt.Errorf("%w: %q", models.ErrUnknownPhase, p)
}

// InRecommendedRange reports whether cycleLength falls within the typical 21-35 day range.
func InRecommendedRange(cycleLength int) bool {
	return cycleLength >= RecommendedMinCycleLength && cycleLength <= RecommendedMaxCycleLength
}

// boundaries holds the last day of each of the first three phases; luteal runs to cycleLength.
type boundaries struct {
	menstrualEnd  int
	follicularEnd int
	ovulatoryEnd  int
	cycleLength   int
}

func (b boundaries) phaseOf(day int) models.Phase {
	switch {
	case day <= b.menstrualEnd:
		return models.PhaseMenstrual
	case day <= b.follicularEnd:
		return models.PhaseFollicular
	case day <= b.ovulatoryEnd:
		return models.PhaseOvulatory
	default:
		return models.PhaseLuteal
	}
}

// boundariesFor returns the canonical table for cycles of 17 days or more and a
// proportionally compressed table for shorter cycles, keeping every phase non-empty.
func boundariesFor(cycleLength int) (boundaries, error) {
	if cycleLength <= 0 {
		return boundaries{}, fmt.Errorf("%w: cycle length must be positive, got %d", ErrInvalidConfiguration, cycleLength)
	}
	if cycleLength < MinCycleLength {
		return boundaries{}, fmt.Errorf("%w: cycle length %d is shorter than the %d days needed for four phases", ErrInvalidConfiguration, cycleLength, MinCycleLength)
	}
	if cycleLength >= canonicalLutealStart {
		return boundaries{
			menstrualEnd:  canonicalMenstrualEnd,
			follicularEnd: canonicalFollicularEnd,
			ovulatoryEnd:  canonicalOvulatoryEnd,
			cycleLength:   cycleLength,
		}, nil
	}

	m := max(scale(canonicalMenstrualEnd, cycleLength), 1)
	f := max(scale(canonicalFollicularEnd, cycleLength), m+1)
	o := max(scale(canonicalOvulatoryEnd, cycleLength), f+1)

	// luteal keeps at least the final day
	o = min(o, cycleLength-1)
	f = min(f, o-1)
	m = min(m, f-1)

	return boundaries{menstrualEnd: m, follicularEnd: f, ovulatoryEnd: o, cycleLength: cycleLength}, nil
}

func scale(day, cycleLength int) int {
	return int(math.Round(float64(day*cycleLength) / referenceCycleLength))
}

// mod returns a non-negative remainder for any a.
func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar days from a to b, ignoring DST shifts.
func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
