package cronspec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/models"
)

func intPtr(i int) *int { return &i }

func TestSynthesize(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
		want string
	}{
		{"weekly", Definition{Frequency: models.FrequencyWeekly, RunAt: "09:30:00", DayOfWeek: intPtr(3)}, "30 9 * * 3"},
		{"monthly", Definition{Frequency: models.FrequencyMonthly, RunAt: "00:15:00", DayOfMonth: intPtr(15)}, "15 0 15 * *"},
		{"quarterly", Definition{Frequency: models.FrequencyQuarterly, RunAt: "06:00:00", DayOfMonth: intPtr(1)}, "0 6 1 1,4,7,10 *"},
		{"daily default time", Definition{Frequency: models.FrequencyDaily}, "0 9 * * *"},
		{"weekly default day", Definition{Frequency: models.FrequencyWeekly, RunAt: "18:45"}, "45 18 * * 1"},
		{"monthly default day", Definition{Frequency: models.FrequencyMonthly, RunAt: "07:05:00"}, "5 7 1 * *"},
		{"yearly", Definition{Frequency: models.FrequencyYearly, RunAt: "23:59:00", DayOfMonth: intPtr(31)}, "59 23 31 1 *"},
		{"custom verbatim", Definition{Frequency: models.FrequencyCustom, CronExpression: "*/15 8-18 * * 1-5"}, "*/15 8-18 * * 1-5"},
		{"once", Definition{Frequency: models.FrequencyOnce}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Synthesize(tt.def)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSynthesizeRejectsInvalidInput(t *testing.T) {
	bad := []Definition{
		{Frequency: models.FrequencyCustom},
		{Frequency: models.FrequencyCustom, CronExpression: "61 * * * *"},
		{Frequency: models.FrequencyCustom, CronExpression: "not a cron"},
		{Frequency: models.FrequencyWeekly, DayOfWeek: intPtr(7)},
		{Frequency: models.FrequencyMonthly, DayOfMonth: intPtr(0)},
		{Frequency: models.FrequencyDaily, RunAt: "25:00:00"},
		{Frequency: models.FrequencyDaily, RunAt: "noon"},
		{Frequency: "hourly"},
	}
	for _, d := range bad {
		_, err := Synthesize(d)
		assert.ErrorIs(t, err, apperr.ErrValidation, "%+v", d)
	}
}

func TestNextRunHonoursTimezone(t *testing.T) {
	def := Definition{Frequency: models.FrequencyDaily, RunAt: "09:30:00"}
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	next, err := NextRun(def, "America/New_York", Window{}, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2024, 1, 10, 14, 30, 0, 0, time.UTC), *next)

	next, err = NextRun(def, "UTC", Window{}, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 11, 9, 30, 0, 0, time.UTC), *next)
}

func TestNextRunAcrossDaylightSaving(t *testing.T) {
	def := Definition{Frequency: models.FrequencyDaily, RunAt: "09:00:00"}
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	next, err := NextRun(def, "America/New_York", Window{}, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 7, 1, 13, 0, 0, 0, time.UTC), *next)
}

func TestNextRunWindow(t *testing.T) {
	def := Definition{Frequency: models.FrequencyWeekly, RunAt: "09:00:00", DayOfWeek: intPtr(1)}
	now := time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)

	past := now.Add(-time.Hour)
	next, err := NextRun(def, "UTC", Window{End: &past}, now)
	require.NoError(t, err)
	assert.Nil(t, next)

	future := now.Add(72 * time.Hour)
	next, err = NextRun(def, "UTC", Window{Start: &future}, now)
	require.NoError(t, err)
	assert.Equal(t, future, *next)

	soon := now.Add(24 * time.Hour)
	next, err = NextRun(def, "UTC", Window{End: &soon}, now)
	require.NoError(t, err)
	assert.Nil(t, next, "next monday is past the end date")
}

func TestNextRunOnce(t *testing.T) {
	def := Definition{Frequency: models.FrequencyOnce}
	now := time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)

	next, err := NextRun(def, "UTC", Window{}, now)
	require.NoError(t, err)
	assert.Nil(t, next)

	at := now.Add(time.Hour)
	next, err = NextRun(def, "UTC", Window{Start: &at}, now)
	require.NoError(t, err)
	assert.Equal(t, at, *next)
}

func TestParseInUnknownTimezone(t *testing.T) {
	_, err := ParseIn("0 9 * * *", "Mars/Olympus")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestOnceSchedule(t *testing.T) {
	at := time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)
	o := Once{At: at}
	assert.Equal(t, at, o.Next(at.Add(-time.Minute)))
	assert.True(t, o.Next(at).IsZero())
}

func TestBounded(t *testing.T) {
	daily, err := Parse("0 9 * * *")
	require.NoError(t, err)

	start := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 12, 12, 0, 0, 0, time.UTC)
	b := Bounded(daily, Window{Start: &start, End: &end})

	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, start, b.Next(now))
	assert.Equal(t, time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC), b.Next(start.Add(24*time.Hour)))
	assert.True(t, b.Next(end).IsZero())

	assert.Equal(t, daily, Bounded(daily, Window{}))
}
