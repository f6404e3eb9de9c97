// Package scheduler implements the time-based launch scheduler: the
// wall-clock equivalent of the manager's event-driven dispatch, firing
// configured workers at fixed points in each day, week or hour rather
// than in response to a message.
package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fathomrun/nowcast/core/config"
	"github.com/fathomrun/nowcast/internal/dispatch"
	"github.com/go-co-op/gocron/v2"
	log "github.com/sirupsen/logrus"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Scheduler wraps a gocron scheduler configured from the `scheduled
// workers` section of the nowcast configuration. It never catches up
// on ticks missed while the process was down; a missed launch is
// simply skipped.
type Scheduler struct {
	cfg *config.NowcastConfig
	gs  gocron.Scheduler
}

// New constructs a Scheduler with no jobs registered yet. Call
// Prepare to populate it from cfg.ScheduledWorkers.
func New(cfg *config.NowcastConfig) (*Scheduler, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{cfg: cfg, gs: gs}, nil
}

// Prepare registers one recurring job per entry in `scheduled
// workers`, in configuration order.
func (s *Scheduler) Prepare() error {
	for _, entry := range s.cfg.ScheduledWorkers {
		for module, params := range entry {
			if err := s.scheduleOne(module, params); err != nil {
				return fmt.Errorf("schedule worker %q: %w", module, err)
			}
		}
	}
	return nil
}

func (s *Scheduler) scheduleOne(module string, params config.ScheduledWorkerParams) error {
	hour, minute, err := parseClockTime(params.At)
	if err != nil {
		return err
	}

	unit := strings.ToLower(strings.TrimSpace(params.Every))

	var def gocron.JobDefinition
	switch unit {
	case "day":
		def = gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(hour), uint(minute), 0)))
	case "hour":
		def = gocron.CronJob(fmt.Sprintf("%d * * * *", minute), false)
	default:
		weekday, ok := weekdays[unit]
		if !ok {
			return fmt.Errorf("unrecognized schedule unit %q, want day, hour or a weekday name", params.Every)
		}
		def = gocron.WeeklyJob(1, gocron.NewWeekdays(weekday), gocron.NewAtTimes(gocron.NewAtTime(uint(hour), uint(minute), 0)))
	}

	args := splitArgs(params.CmdLineOpts)
	cfg := s.cfg
	moduleName := module
	task := gocron.NewTask(func() {
		nw := dispatch.New(moduleName, args...)
		if err := nw.Launch(cfg, "scheduler"); err != nil {
			log.WithFields(log.Fields{"module": moduleName, "error": err}).Error("scheduled worker failed to launch")
		}
	})

	if _, err := s.gs.NewJob(def, task); err != nil {
		return fmt.Errorf("register job for %q: %w", module, err)
	}
	log.WithFields(log.Fields{"module": module, "every": params.Every, "at": params.At}).Info("worker scheduled")
	return nil
}

func parseClockTime(at string) (hour, minute int, err error) {
	parts := strings.SplitN(at, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid clock time %q, want HH:MM", at)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hour in clock time %q: %w", at, err)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid minute in clock time %q: %w", at, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("clock time %q out of range", at)
	}
	return hour, minute, nil
}

func splitArgs(opts string) []string {
	if strings.TrimSpace(opts) == "" {
		return nil
	}
	return strings.Fields(opts)
}

// Start begins running registered jobs in the background. It returns
// immediately; jobs fire on a goroutine owned by the underlying
// gocron scheduler.
func (s *Scheduler) Start() {
	s.gs.Start()
}

// Shutdown stops the scheduler and waits for any in-flight job
// invocation to return.
func (s *Scheduler) Shutdown() error {
	return s.gs.Shutdown()
}

// JobCount reports how many jobs are currently registered, used by
// tests and logged when the scheduler starts.
func (s *Scheduler) JobCount() int {
	return len(s.gs.Jobs())
}
