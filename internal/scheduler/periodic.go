package scheduler

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"adops_backend/platform/config"
	"adops_backend/platform/logger"
)

// Periodic registers the cron-driven sweep dispatch task.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	spec := cfg.GetSweepCronSpec()
	if spec == "" {
		spec = "*/15 * * * *"
	}

	sched := asynq.NewScheduler(opt, nil)
	if _, err := sched.Register(spec, NewSweepDispatchTask(), asynq.Queue(queueName(cfg))); err != nil {
		return nil, fmt.Errorf("register sweep schedule %q: %w", spec, err)
	}

	return &Periodic{scheduler: sched, log: log}, nil
}

func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	go func() {
		<-ctx.Done()
		p.scheduler.Shutdown()
	}()

	if err := p.scheduler.Run(); err != nil {
		p.log.Error("periodic scheduler stopped", "error", err)
	}
}
