// Package grid provides pure slot-addressing helpers for the weekly
// scheduling grid. It holds no state; both the conflict detector and the
// timetable service consume it.
package grid

import (
	"fmt"

	"github.com/uniplan/timetable-api/internal/models"
)

// Range is the half-open interval [Start, Start+Count) of period indices
// occupied by a placement.
type Range struct {
	Start int
	Count int
}

// End returns the exclusive upper bound of the range.
func (r Range) End() int {
	return r.Start + r.Count
}

// Overlaps reports whether two ranges share at least one period.
func (r Range) Overlaps(other Range) bool {
	return r.Start < other.End() && other.Start < r.End()
}

// Contains reports whether the period index falls inside the range.
func (r Range) Contains(period int) bool {
	return period >= r.Start && period < r.End()
}

// ValidPeriods returns the size of the period-index domain defined by the
// schedule configuration. Valid indices are [0, ValidPeriods(cfg)).
func ValidPeriods(cfg models.ScheduleConfig) int {
	if cfg.PeriodsPerDay <= 0 || cfg.ClassDaysPerWeek <= 0 {
		return 0
	}
	return cfg.PeriodsPerDay * cfg.ClassDaysPerWeek
}

// ValidPeriod reports whether the period index is addressable under the
// configuration.
func ValidPeriod(cfg models.ScheduleConfig, period int) bool {
	return period >= 0 && period < ValidPeriods(cfg)
}

// OccupiedRange computes the contiguous range a session occupies starting
// at period. It fails when the duration is not positive or the range runs
// off the end of the grid. Day-boundary containment is deliberately not
// enforced here; SameDay exists for callers that want to warn about it.
func OccupiedRange(cfg models.ScheduleConfig, period, count int) (Range, error) {
	if count < 1 {
		return Range{}, fmt.Errorf("period count must be at least 1, got %d", count)
	}
	if !ValidPeriod(cfg, period) {
		return Range{}, fmt.Errorf("period index %d outside grid domain [0, %d)", period, ValidPeriods(cfg))
	}
	r := Range{Start: period, Count: count}
	if r.End() > ValidPeriods(cfg) {
		return Range{}, fmt.Errorf("range [%d, %d) overflows grid domain [0, %d)", r.Start, r.End(), ValidPeriods(cfg))
	}
	return r, nil
}

// SameDay reports whether the whole range falls on a single class day.
func SameDay(cfg models.ScheduleConfig, r Range) bool {
	if cfg.PeriodsPerDay <= 0 {
		return false
	}
	return r.Start/cfg.PeriodsPerDay == (r.End()-1)/cfg.PeriodsPerDay
}

// Day returns the zero-based class day a period index falls on.
func Day(cfg models.ScheduleConfig, period int) int {
	if cfg.PeriodsPerDay <= 0 {
		return 0
	}
	return period / cfg.PeriodsPerDay
}
