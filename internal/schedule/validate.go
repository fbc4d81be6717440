package schedule

import (
	"fmt"
	"path/filepath"
	"strings"

	"job-trigger-portal/internal/model"
)

// Validate rejects a job definition whose schedule fields do not match its
// schedule type. Called at definition time by the management layer; the
// scheduler does not call it and relies on NextRun's own field checks.
func Validate(job *model.ScheduledJob) error {
	switch job.ScheduleType {
	case model.ScheduleTypeInterval:
		if job.IntervalSeconds <= 0 {
			return fmt.Errorf("interval schedule requires interval_seconds > 0")
		}
	case model.ScheduleTypeHourly:
		if !job.ScheduleMinute.Valid {
			return fmt.Errorf("hourly schedule requires schedule_minute")
		}
		if m := job.ScheduleMinute.Int32; m < 0 || m > 59 {
			return fmt.Errorf("schedule_minute %d out of range 0-59", m)
		}
	case model.ScheduleTypeDaily:
		if _, _, err := parseClock(job.ScheduleTime); err != nil {
			return err
		}
	case model.ScheduleTypeWeekly:
		if _, _, err := parseClock(job.ScheduleTime); err != nil {
			return err
		}
		if !job.ScheduleDay.Valid || job.ScheduleDay.Int32 < 0 || job.ScheduleDay.Int32 > 6 {
			return fmt.Errorf("weekly schedule requires schedule_day in 0-6")
		}
	case model.ScheduleTypeMonthly:
		if _, _, err := parseClock(job.ScheduleTime); err != nil {
			return err
		}
		if !job.ScheduleDay.Valid || job.ScheduleDay.Int32 < 1 || job.ScheduleDay.Int32 > 31 {
			return fmt.Errorf("monthly schedule requires schedule_day in 1-31")
		}
	case model.ScheduleTypeCron:
		if !job.CronExpression.Valid || job.CronExpression.String == "" {
			return fmt.Errorf("cron schedule requires cron_expression")
		}
		if _, err := cronParser.Parse(job.CronExpression.String); err != nil {
			return fmt.Errorf("invalid cron_expression: %w", err)
		}
	case model.ScheduleTypeManual:
	default:
		return fmt.Errorf("unknown schedule type %q", job.ScheduleType)
	}

	return ValidateScriptPath(job.ScriptPath)
}

// ValidateScriptPath enforces the script registry contract: a relative path
// that stays inside the allow-listed script root.
func ValidateScriptPath(path string) error {
	if path == "" {
		return fmt.Errorf("script_path is required")
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("script_path must be relative to the script root")
	}
	clean := filepath.Clean(path)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("script_path escapes the script root")
	}
	return nil
}
