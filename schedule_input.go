package hypercron

import (
	"fmt"
	"time"

	"github.com/twlite/hypercron/errs"
)

// ScheduleInput is a tagged variant over the three shapes Schedule accepts: a cron
// expression, an absolute time.Time, or a raw millisecond timestamp. Build one with
// Cron, At, or AtMillis — never construct it directly.
type ScheduleInput struct {
	kind     inputKind
	cronExpr string
	atMillis int64
}

type inputKind int

const (
	kindCron inputKind = iota
	kindAt
)

// Cron schedules a recurring job driven by a standard 5- or 6-field cron
// expression (including @every/@daily-style descriptors), delegated to
// github.com/robfig/cron/v3.
func Cron(expr string) ScheduleInput {
	return ScheduleInput{kind: kindCron, cronExpr: expr}
}

// At schedules a one-shot job to fire at the given wall-clock instant.
func At(t time.Time) ScheduleInput {
	return ScheduleInput{kind: kindAt, atMillis: t.UnixMilli()}
}

// AtMillis schedules a one-shot job to fire at the given instant, expressed as
// milliseconds since the Unix epoch.
func AtMillis(ms int64) ScheduleInput {
	return ScheduleInput{kind: kindAt, atMillis: ms}
}

// parsedInput is the normalised (cron|specific_time, next_run) pair every
// ScheduleInput resolves to before it is ever written to the store.
type parsedInput struct {
	cronExpression string
	specificTime   int64
	nextRun        int64
}

// parseInput fails fast and never partially persists: a CONFIG error here means
// nothing about the job has touched the store yet.
func (s *Scheduler) parseInput(input ScheduleInput, nowMillis int64) (parsedInput, error) {
	switch input.kind {
	case kindCron:
		next, err := s.cron.Next(input.cronExpr, time.UnixMilli(nowMillis))
		if err != nil {
			return parsedInput{}, err
		}
		return parsedInput{cronExpression: input.cronExpr, nextRun: next.UnixMilli()}, nil
	case kindAt:
		if input.atMillis <= nowMillis {
			return parsedInput{}, fmt.Errorf("%w: %d <= %d", errs.ErrTimeInPast, input.atMillis, nowMillis)
		}
		return parsedInput{specificTime: input.atMillis, nextRun: input.atMillis}, nil
	default:
		return parsedInput{}, fmt.Errorf("%w: unknown schedule input kind", errs.ErrInvalidConfig)
	}
}
