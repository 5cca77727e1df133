// Package maintenance runs the recurring housekeeping jobs of the tool
// core: pool health probes, rate-limit pruning, interaction sweeps and
// audit retention.
package maintenance

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleKind represents the type of schedule
type ScheduleKind string

const (
	ScheduleKindAt    ScheduleKind = "at"
	ScheduleKindEvery ScheduleKind = "every"
	ScheduleKindCron  ScheduleKind = "cron"
)

// Schedule describes when a job runs
type Schedule struct {
	Kind     ScheduleKind `json:"kind"`
	At       string       `json:"at,omitempty"`       // RFC3339, one-shot
	EveryMs  int64        `json:"everyMs,omitempty"`  // fixed interval
	AnchorMs *int64       `json:"anchorMs,omitempty"` // aligns "every" runs
	Expr     string       `json:"expr,omitempty"`     // cron expression
	TZ       string       `json:"tz,omitempty"`
}

// Every builds a fixed-interval schedule
func Every(d time.Duration) Schedule {
	return Schedule{Kind: ScheduleKindEvery, EveryMs: d.Milliseconds()}
}

// CalculateNextRun calculates the next run time for a schedule, in unix
// milliseconds.
func CalculateNextRun(schedule Schedule) (int64, error) {
	switch schedule.Kind {
	case ScheduleKindAt:
		return calculateAtSchedule(schedule)
	case ScheduleKindEvery:
		return calculateEverySchedule(schedule)
	case ScheduleKindCron:
		return calculateCronSchedule(schedule)
	default:
		return 0, fmt.Errorf("unknown schedule kind: %s", schedule.Kind)
	}
}

func calculateAtSchedule(schedule Schedule) (int64, error) {
	if schedule.At == "" {
		return 0, fmt.Errorf("'at' schedule requires 'at' field")
	}

	t, err := time.Parse(time.RFC3339, schedule.At)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp: %w", err)
	}

	return t.UnixMilli(), nil
}

func calculateEverySchedule(schedule Schedule) (int64, error) {
	if schedule.EveryMs <= 0 {
		return 0, fmt.Errorf("'every' schedule requires positive 'everyMs' value")
	}

	now := time.Now().UnixMilli()

	if schedule.AnchorMs == nil {
		return now + schedule.EveryMs, nil
	}

	anchor := *schedule.AnchorMs
	elapsed := now - anchor

	// A future anchor is the first run.
	if elapsed < 0 {
		return anchor, nil
	}

	periods := elapsed / schedule.EveryMs
	return anchor + (periods+1)*schedule.EveryMs, nil
}

func calculateCronSchedule(schedule Schedule) (int64, error) {
	if schedule.Expr == "" {
		return 0, fmt.Errorf("'cron' schedule requires 'expr' field")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule.Expr)
	if err != nil {
		return 0, fmt.Errorf("invalid cron expression: %w", err)
	}

	now := time.Now()
	if schedule.TZ != "" {
		loc, err := time.LoadLocation(schedule.TZ)
		if err != nil {
			return 0, fmt.Errorf("invalid timezone: %w", err)
		}
		now = now.In(loc)
	}

	return sched.Next(now).UnixMilli(), nil
}
