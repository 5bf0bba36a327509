// Package cronparse adapts github.com/robfig/cron/v3 to the single operation the
// scheduling engine needs: "compute the next firing time strictly after instant T".
//
// A cron.Parser is built once and schedule.Next(from) is called per lookup; the
// parsed schedule is additionally cached per expression since the engine
// re-derives next_run after every firing of a recurring job.
package cronparse

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/twlite/hypercron/errs"
)

var defaultParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Adapter computes next-run instants for cron expressions, caching parsed schedules
// so repeated firings of the same job don't re-parse its expression.
type Adapter struct {
	mu        sync.Mutex
	schedules map[string]cron.Schedule
}

func New() *Adapter {
	return &Adapter{schedules: make(map[string]cron.Schedule)}
}

// Next returns the first instant strictly after from at which expr fires.
func (a *Adapter) Next(expr string, from time.Time) (time.Time, error) {
	sched, err := a.resolve(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

// Validate reports whether expr is a syntactically valid cron expression without
// computing a next-run instant.
func (a *Adapter) Validate(expr string) error {
	_, err := a.resolve(expr)
	return err
}

func (a *Adapter) resolve(expr string) (cron.Schedule, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if sched, ok := a.schedules[expr]; ok {
		return sched, nil
	}
	sched, err := defaultParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", errs.ErrInvalidCron, expr, err)
	}
	a.schedules[expr] = sched
	return sched, nil
}
