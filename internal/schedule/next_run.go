package schedule

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"job-trigger-portal/internal/model"
)

// cronParser accepts standard five-field expressions plus descriptors such
// as @hourly.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NextRun computes the next UTC instant at which the job becomes eligible,
// strictly after now. Manual jobs, which never reschedule themselves, get a
// null result (Valid false) and a nil error.
//
// All arithmetic happens on UTC instants; schedule_time is a UTC wall clock.
func NextRun(job *model.ScheduledJob, now time.Time) (sql.NullTime, error) {
	now = now.UTC()

	switch job.ScheduleType {
	case model.ScheduleTypeManual:
		return sql.NullTime{}, nil

	case model.ScheduleTypeInterval:
		if job.IntervalSeconds <= 0 {
			return sql.NullTime{}, fmt.Errorf("interval job %d has non-positive interval", job.ID)
		}
		return validTime(now.Add(time.Duration(job.IntervalSeconds) * time.Second)), nil

	case model.ScheduleTypeHourly:
		if !job.ScheduleMinute.Valid {
			return sql.NullTime{}, fmt.Errorf("hourly job %d has no schedule_minute", job.ID)
		}
		minute := int(job.ScheduleMinute.Int32)
		if minute < 0 || minute > 59 {
			return sql.NullTime{}, fmt.Errorf("hourly job %d has schedule_minute %d out of range", job.ID, minute)
		}
		target := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), minute, 0, 0, time.UTC)
		if !target.After(now) {
			target = target.Add(time.Hour)
		}
		return validTime(target), nil

	case model.ScheduleTypeDaily:
		hour, minute, err := parseClock(job.ScheduleTime)
		if err != nil {
			return sql.NullTime{}, fmt.Errorf("daily job %d: %w", job.ID, err)
		}
		target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
		if !target.After(now) {
			target = target.AddDate(0, 0, 1)
		}
		return validTime(target), nil

	case model.ScheduleTypeWeekly:
		hour, minute, err := parseClock(job.ScheduleTime)
		if err != nil {
			return sql.NullTime{}, fmt.Errorf("weekly job %d: %w", job.ID, err)
		}
		if !job.ScheduleDay.Valid || job.ScheduleDay.Int32 < 0 || job.ScheduleDay.Int32 > 6 {
			return sql.NullTime{}, fmt.Errorf("weekly job %d has schedule_day out of range", job.ID)
		}
		target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
		daysAhead := int(job.ScheduleDay.Int32) - weekdayIndex(target)
		target = target.AddDate(0, 0, daysAhead)
		if !target.After(now) {
			target = target.AddDate(0, 0, 7)
		}
		return validTime(target), nil

	case model.ScheduleTypeMonthly:
		hour, minute, err := parseClock(job.ScheduleTime)
		if err != nil {
			return sql.NullTime{}, fmt.Errorf("monthly job %d: %w", job.ID, err)
		}
		if !job.ScheduleDay.Valid || job.ScheduleDay.Int32 < 1 || job.ScheduleDay.Int32 > 31 {
			return sql.NullTime{}, fmt.Errorf("monthly job %d has schedule_day out of range", job.ID)
		}
		day := int(job.ScheduleDay.Int32)
		// Walk forward month by month until the day exists and the instant
		// is strictly in the future. Bounded: any day 1-31 recurs within
		// a year.
		year, month := now.Year(), now.Month()
		for i := 0; i < 24; i++ {
			if day <= daysInMonth(year, month) {
				target := time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
				if target.After(now) {
					return validTime(target), nil
				}
			}
			month++
			if month > time.December {
				month = time.January
				year++
			}
		}
		return sql.NullTime{}, fmt.Errorf("monthly job %d: no valid occurrence found", job.ID)

	case model.ScheduleTypeCron:
		if !job.CronExpression.Valid {
			return sql.NullTime{}, fmt.Errorf("cron job %d has no expression", job.ID)
		}
		sched, err := cronParser.Parse(job.CronExpression.String)
		if err != nil {
			return sql.NullTime{}, fmt.Errorf("cron job %d: %w", job.ID, err)
		}
		return validTime(sched.Next(now)), nil
	}

	return sql.NullTime{}, fmt.Errorf("job %d has unknown schedule type %q", job.ID, job.ScheduleType)
}

// weekdayIndex maps to the 0=Monday..6=Sunday convention used by
// schedule_day on weekly jobs.
func weekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func parseClock(v sql.NullString) (hour, minute int, err error) {
	if !v.Valid {
		return 0, 0, fmt.Errorf("schedule_time is not set")
	}
	t, err := time.Parse("15:04", v.String)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid schedule_time %q: %w", v.String, err)
	}
	return t.Hour(), t.Minute(), nil
}

func validTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}
