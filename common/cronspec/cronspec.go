// Package cronspec turns report schedule settings into five-field cron
// expressions and computes timezone-correct fire times.
package cronspec

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/models"
)

// Defaults applied when a schedule leaves a field unset
const (
	DefaultHour       = 9
	DefaultMinute     = 0
	DefaultDayOfWeek  = 1
	DefaultDayOfMonth = 1
	DefaultTimezone   = "UTC"
)

// Parser accepts standard five-field expressions, descriptors such as
// @daily and a CRON_TZ= prefix.
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Definition is the part of a schedule that decides when it fires
type Definition struct {
	Frequency      models.Frequency
	CronExpression string
	RunAt          string
	DayOfWeek      *int
	DayOfMonth     *int
}

// FromSchedule extracts the firing definition of s
func FromSchedule(s *models.ReportSchedule) Definition {
	return Definition{
		Frequency:      s.Frequency,
		CronExpression: models.Deref(s.CronExpression),
		RunAt:          s.RunAt,
		DayOfWeek:      s.DayOfWeek,
		DayOfMonth:     s.DayOfMonth,
	}
}

// Synthesize returns the cron expression for d. Frequency once has no
// expression and yields "".
func Synthesize(d Definition) (string, error) {
	switch d.Frequency {
	case models.FrequencyOnce:
		return "", nil
	case models.FrequencyCustom:
		expr := strings.TrimSpace(d.CronExpression)
		if expr == "" {
			return "", apperr.Validation("cronExpression is required for custom frequency")
		}
		if _, err := Parse(expr); err != nil {
			return "", err
		}
		return expr, nil
	}

	hour, minute, err := ParseRunAt(d.RunAt)
	if err != nil {
		return "", err
	}

	switch d.Frequency {
	case models.FrequencyDaily:
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case models.FrequencyWeekly:
		dow, err := bounded("dayOfWeek", d.DayOfWeek, DefaultDayOfWeek, 0, 6)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d * * %d", minute, hour, dow), nil
	case models.FrequencyMonthly, models.FrequencyQuarterly, models.FrequencyYearly:
		dom, err := bounded("dayOfMonth", d.DayOfMonth, DefaultDayOfMonth, 1, 31)
		if err != nil {
			return "", err
		}
		months := "*"
		if d.Frequency == models.FrequencyQuarterly {
			months = "1,4,7,10"
		} else if d.Frequency == models.FrequencyYearly {
			months = "1"
		}
		return fmt.Sprintf("%d %d %d %s *", minute, hour, dom, months), nil
	default:
		return "", apperr.Validation("unknown frequency %q", d.Frequency)
	}
}

func bounded(field string, v *int, def, lo, hi int) (int, error) {
	if v == nil {
		return def, nil
	}
	if *v < lo || *v > hi {
		return 0, apperr.Validation("%s must be between %d and %d, got %d", field, lo, hi, *v)
	}
	return *v, nil
}

// ParseRunAt reads HH:MM or HH:MM:SS. Empty means 09:00.
func ParseRunAt(runAt string) (hour, minute int, err error) {
	if runAt == "" {
		return DefaultHour, DefaultMinute, nil
	}
	parts := strings.Split(runAt, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, apperr.Validation("runAt %q must be HH:MM:SS", runAt)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, apperr.Validation("runAt %q has an invalid hour", runAt)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, apperr.Validation("runAt %q has an invalid minute", runAt)
	}
	return hour, minute, nil
}

// Parse validates a cron expression
func Parse(expr string) (cron.Schedule, error) {
	s, err := Parser.Parse(expr)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "invalid cron expression %q", expr)
	}
	return s, nil
}

// ParseIn parses expr so that it fires in the named timezone
func ParseIn(expr, tz string) (cron.Schedule, error) {
	if _, err := Location(tz); err != nil {
		return nil, err
	}
	if tz == "" {
		tz = DefaultTimezone
	}
	return Parse("CRON_TZ=" + tz + " " + expr)
}

// Location loads an IANA zone. Empty means UTC.
func Location(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "unknown timezone %q", tz)
	}
	return loc, nil
}

// Window bounds when a schedule is active
type Window struct {
	Start *time.Time
	End   *time.Time
}

// NextRun returns the next fire time after now, in UTC. It is nil when the
// window has ended or a one-shot schedule has already passed. A window
// that starts in the future yields its start.
func NextRun(d Definition, tz string, w Window, now time.Time) (*time.Time, error) {
	if w.End != nil && w.End.Before(now) {
		return nil, nil
	}
	if w.Start != nil && w.Start.After(now) {
		t := w.Start.UTC()
		return &t, nil
	}
	if d.Frequency == models.FrequencyOnce {
		return nil, nil
	}

	expr, err := Synthesize(d)
	if err != nil {
		return nil, err
	}
	sched, err := ParseIn(expr, tz)
	if err != nil {
		return nil, err
	}

	next := sched.Next(now)
	if next.IsZero() || (w.End != nil && next.After(*w.End)) {
		return nil, nil
	}
	next = next.UTC()
	return &next, nil
}

// Once is a schedule that fires a single time at At
type Once struct {
	At time.Time
}

// Next implements cron.Schedule. A zero time tells the runner never to fire.
func (o Once) Next(t time.Time) time.Time {
	if t.Before(o.At) {
		return o.At
	}
	return time.Time{}
}

// Bounded limits sched to the window w
func Bounded(sched cron.Schedule, w Window) cron.Schedule {
	if w.Start == nil && w.End == nil {
		return sched
	}
	return windowed{inner: sched, w: w}
}

type windowed struct {
	inner cron.Schedule
	w     Window
}

func (b windowed) Next(t time.Time) time.Time {
	if b.w.Start != nil && t.Before(*b.w.Start) {
		t = b.w.Start.Add(-time.Second)
	}
	next := b.inner.Next(t)
	if next.IsZero() || (b.w.End != nil && next.After(*b.w.End)) {
		return time.Time{}
	}
	return next
}
