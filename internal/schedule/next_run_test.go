package schedule

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"job-trigger-portal/internal/model"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed.UTC()
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func nullInt(v int32) sql.NullInt32 {
	return sql.NullInt32{Int32: v, Valid: true}
}

func TestNextRun(t *testing.T) {
	tests := []struct {
		name    string
		job     model.ScheduledJob
		now     string
		want    string
		wantNil bool
		wantErr bool
	}{
		{
			name:    "manual never reschedules",
			job:     model.ScheduledJob{ScheduleType: model.ScheduleTypeManual},
			now:     "2025-06-01T12:00:00Z",
			wantNil: true,
		},
		{
			name: "interval adds seconds",
			job:  model.ScheduledJob{ScheduleType: model.ScheduleTypeInterval, IntervalSeconds: 90},
			now:  "2025-06-01T12:00:00Z",
			want: "2025-06-01T12:01:30Z",
		},
		{
			name:    "interval rejects zero",
			job:     model.ScheduledJob{ScheduleType: model.ScheduleTypeInterval},
			now:     "2025-06-01T12:00:00Z",
			wantErr: true,
		},
		{
			name: "hourly later this hour",
			job:  model.ScheduledJob{ScheduleType: model.ScheduleTypeHourly, ScheduleMinute: nullInt(45)},
			now:  "2025-06-01T12:30:00Z",
			want: "2025-06-01T12:45:00Z",
		},
		{
			name: "hourly wraps to next hour",
			job:  model.ScheduledJob{ScheduleType: model.ScheduleTypeHourly, ScheduleMinute: nullInt(15)},
			now:  "2025-06-01T12:30:00Z",
			want: "2025-06-01T13:15:00Z",
		},
		{
			name: "hourly exact minute is strictly after",
			job:  model.ScheduledJob{ScheduleType: model.ScheduleTypeHourly, ScheduleMinute: nullInt(30)},
			now:  "2025-06-01T12:30:00Z",
			want: "2025-06-01T13:30:00Z",
		},
		{
			name: "daily later today",
			job:  model.ScheduledJob{ScheduleType: model.ScheduleTypeDaily, ScheduleTime: nullStr("18:00")},
			now:  "2025-06-01T12:00:00Z",
			want: "2025-06-01T18:00:00Z",
		},
		{
			name: "daily after dispatch rolls to tomorrow",
			job:  model.ScheduledJob{ScheduleType: model.ScheduleTypeDaily, ScheduleTime: nullStr("01:00")},
			now:  "2025-06-01T01:00:00Z",
			want: "2025-06-02T01:00:00Z",
		},
		{
			name: "daily first run from timezone-normalized clock",
			job:  model.ScheduledJob{ScheduleType: model.ScheduleTypeDaily, ScheduleTime: nullStr("16:30")},
			now:  "2025-06-01T01:00:00Z",
			want: "2025-06-01T16:30:00Z",
		},
		{
			name: "weekly same day later",
			job: model.ScheduledJob{
				ScheduleType: model.ScheduleTypeWeekly,
				ScheduleDay:  nullInt(6), // Sunday
				ScheduleTime: nullStr("15:00"),
			},
			// 2025-06-01 is a Sunday.
			now:  "2025-06-01T12:00:00Z",
			want: "2025-06-01T15:00:00Z",
		},
		{
			name: "weekly wraps across the week boundary",
			job: model.ScheduledJob{
				ScheduleType: model.ScheduleTypeWeekly,
				ScheduleDay:  nullInt(0), // Monday
				ScheduleTime: nullStr("09:00"),
			},
			// Monday 2025-06-02 09:30 is past 09:00, so next Monday.
			now:  "2025-06-02T09:30:00Z",
			want: "2025-06-09T09:00:00Z",
		},
		{
			name: "weekly earlier weekday wraps forward",
			job: model.ScheduledJob{
				ScheduleType: model.ScheduleTypeWeekly,
				ScheduleDay:  nullInt(2), // Wednesday
				ScheduleTime: nullStr("08:00"),
			},
			// Friday 2025-06-06: Wednesday already passed this week.
			now:  "2025-06-06T10:00:00Z",
			want: "2025-06-11T08:00:00Z",
		},
		{
			name: "monthly later this month",
			job: model.ScheduledJob{
				ScheduleType: model.ScheduleTypeMonthly,
				ScheduleDay:  nullInt(15),
				ScheduleTime: nullStr("06:00"),
			},
			now:  "2025-06-01T00:00:00Z",
			want: "2025-06-15T06:00:00Z",
		},
		{
			name: "monthly skips months without the day",
			job: model.ScheduledJob{
				ScheduleType: model.ScheduleTypeMonthly,
				ScheduleDay:  nullInt(31),
				ScheduleTime: nullStr("00:00"),
			},
			now:  "2025-01-31T00:01:00Z",
			want: "2025-03-31T00:00:00Z",
		},
		{
			name: "monthly day 29 honours leap year",
			job: model.ScheduledJob{
				ScheduleType: model.ScheduleTypeMonthly,
				ScheduleDay:  nullInt(29),
				ScheduleTime: nullStr("12:00"),
			},
			now:  "2028-02-01T00:00:00Z",
			want: "2028-02-29T12:00:00Z",
		},
		{
			name: "cron five field expression",
			job: model.ScheduledJob{
				ScheduleType:   model.ScheduleTypeCron,
				CronExpression: nullStr("*/15 * * * *"),
			},
			now:  "2025-06-01T12:03:00Z",
			want: "2025-06-01T12:15:00Z",
		},
		{
			name:    "unknown type is an error",
			job:     model.ScheduledJob{ScheduleType: "fortnightly"},
			now:     "2025-06-01T12:00:00Z",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := mustTime(t, tt.now)
			got, err := NextRun(&tt.job, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.False(t, got.Valid)
				return
			}
			require.True(t, got.Valid)
			assert.Equal(t, mustTime(t, tt.want), got.Time)
			assert.True(t, got.Time.After(now), "next run must be strictly after now")
		})
	}
}

func TestNextRunNeverEqualsNow(t *testing.T) {
	// Storing the instant just dispatched would re-fire the job forever.
	jobs := []model.ScheduledJob{
		{ScheduleType: model.ScheduleTypeHourly, ScheduleMinute: nullInt(0)},
		{ScheduleType: model.ScheduleTypeDaily, ScheduleTime: nullStr("00:00")},
		{ScheduleType: model.ScheduleTypeWeekly, ScheduleDay: nullInt(0), ScheduleTime: nullStr("00:00")},
		{ScheduleType: model.ScheduleTypeMonthly, ScheduleDay: nullInt(2), ScheduleTime: nullStr("00:00")},
	}
	// Monday 2025-06-02 00:00: matches every schedule above exactly.
	now := mustTime(t, "2025-06-02T00:00:00Z")

	for _, job := range jobs {
		got, err := NextRun(&job, now)
		require.NoError(t, err)
		require.True(t, got.Valid)
		assert.True(t, got.Time.After(now), "schedule %s returned %s", job.ScheduleType, got.Time)
	}
}
