package models

import "time"

// ScheduleConfig defines the valid period-index domain of a semester's
// weekly grid. It is immutable input to grid addressing.
type ScheduleConfig struct {
	PeriodsPerDay    int `db:"periods_per_day" json:"periods_per_day"`
	ClassDaysPerWeek int `db:"class_days_per_week" json:"class_days_per_week"`
}

// TotalPeriods is the size of the period-index domain [0, TotalPeriods).
func (c ScheduleConfig) TotalPeriods() int {
	return c.PeriodsPerDay * c.ClassDaysPerWeek
}

// Semester models an academic term the grid is scheduled for.
type Semester struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	AcademicYear     string    `db:"academic_year" json:"academic_year"`
	StartDate        time.Time `db:"start_date" json:"start_date"`
	EndDate          time.Time `db:"end_date" json:"end_date"`
	PeriodsPerDay    int       `db:"periods_per_day" json:"periods_per_day"`
	ClassDaysPerWeek int       `db:"class_days_per_week" json:"class_days_per_week"`
	IsActive         bool      `db:"is_active" json:"is_active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Config returns the grid addressing configuration for the semester.
func (s *Semester) Config() ScheduleConfig {
	return ScheduleConfig{
		PeriodsPerDay:    s.PeriodsPerDay,
		ClassDaysPerWeek: s.ClassDaysPerWeek,
	}
}
