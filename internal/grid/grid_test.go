package grid

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/uniplan/timetable-api/internal/models"
)

func testConfig() models.ScheduleConfig {
	return models.ScheduleConfig{PeriodsPerDay: 6, ClassDaysPerWeek: 5}
}

func TestValidPeriods(t *testing.T) {
	require.Equal(t, 30, ValidPeriods(testConfig()))
	require.Equal(t, 0, ValidPeriods(models.ScheduleConfig{}))
	require.Equal(t, 0, ValidPeriods(models.ScheduleConfig{PeriodsPerDay: -1, ClassDaysPerWeek: 5}))
}

func TestValidPeriod(t *testing.T) {
	cfg := testConfig()
	require.True(t, ValidPeriod(cfg, 0))
	require.True(t, ValidPeriod(cfg, 29))
	require.False(t, ValidPeriod(cfg, 30))
	require.False(t, ValidPeriod(cfg, -1))
}

func TestOccupiedRange(t *testing.T) {
	cfg := testConfig()

	r, err := OccupiedRange(cfg, 5, 2)
	require.NoError(t, err)
	require.Equal(t, 5, r.Start)
	require.Equal(t, 7, r.End())

	_, err = OccupiedRange(cfg, 5, 0)
	require.Error(t, err)

	_, err = OccupiedRange(cfg, 30, 1)
	require.Error(t, err)

	_, err = OccupiedRange(cfg, 29, 2)
	require.Error(t, err)
}

func TestRangeOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b Range
		want bool
	}{
		{"identical", Range{5, 1}, Range{5, 1}, true},
		{"adjacent", Range{5, 1}, Range{6, 1}, false},
		{"contained", Range{4, 4}, Range{5, 1}, true},
		{"partial", Range{4, 3}, Range{6, 3}, true},
		{"disjoint", Range{0, 2}, Range{10, 2}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.a.Overlaps(tc.b))
			// overlap is symmetric
			require.Equal(t, tc.want, tc.b.Overlaps(tc.a))
		})
	}
}

func TestSameDay(t *testing.T) {
	cfg := testConfig()
	require.True(t, SameDay(cfg, Range{Start: 0, Count: 6}))
	require.False(t, SameDay(cfg, Range{Start: 5, Count: 2}))
	require.True(t, SameDay(cfg, Range{Start: 6, Count: 1}))
	require.Equal(t, 1, Day(cfg, 6))
	require.Equal(t, 0, Day(cfg, 5))
}
