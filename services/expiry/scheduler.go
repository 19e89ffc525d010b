package expiry

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/task"
	"smallbiznis-rewards/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Scheduler enqueues one sweep task per day at the configured time.
type Scheduler struct {
	enqueuer task.Enqueuer
	hour     int
	minute   int
	queue    string
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

type SchedulerParams struct {
	fx.In
	Config   *config.Config
	Enqueuer task.Enqueuer
}

func NewScheduler(p SchedulerParams) *Scheduler {
	queue := p.Config.Expiry.Queue
	if queue == "" {
		queue = "default"
	}
	return &Scheduler{
		enqueuer: p.Enqueuer,
		hour:     p.Config.Expiry.Hour,
		minute:   p.Config.Expiry.Minute,
		queue:    queue,
		now:      time.Now,
	}
}

func startScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// the start context ends with OnStart, the loop needs its own
			ctx, cancel := context.WithCancel(context.Background())
			s.cancel = cancel
			s.done = make(chan struct{})
			go s.run(ctx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if s.cancel == nil {
				return nil
			}
			s.cancel()
			select {
			case <-s.done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	zap.L().Info("[Scheduler] started expiry scheduler",
		zap.Int("hour", s.hour),
		zap.Int("minute", s.minute),
	)

	for {
		now := s.now()
		next := nextRunTime(now, s.hour, s.minute)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)

		timer := time.NewTimer(sleepDuration)
		select {
		case <-timer.C:
			if err := s.Enqueue(ctx, next); err != nil {
				zap.L().Error("[Scheduler] failed to enqueue expiry sweep", zap.Error(err))
			}
		case <-ctx.Done():
			timer.Stop()
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

// Enqueue submits the sweep for the day of at. The task id is derived from
// that day so several schedulers enqueue it only once.
func (s *Scheduler) Enqueue(ctx context.Context, at time.Time) error {
	runDate := at.Format("2006-01-02")
	payload, err := json.Marshal(taskPayload{RunDate: runDate})
	if err != nil {
		return err
	}

	info, err := s.enqueuer.Enqueue(ctx,
		asynq.NewTask(taskname.ExpirySweepRun, payload),
		asynq.Queue(s.queue),
		asynq.TaskID("expiry-"+runDate),
		asynq.MaxRetry(3),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			zap.L().Info("[Scheduler] expiry sweep already enqueued", zap.String("run_date", runDate))
			return nil
		}
		return err
	}

	zap.L().Info("[Scheduler] enqueued expiry sweep",
		zap.String("run_date", runDate),
		zap.String("queue", info.Queue),
		zap.String("task_id", info.ID),
	)
	return nil
}

// nextRunTime returns the first hour:minute strictly after now.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
