package main

import (
	"context"
	"time"

	"GuardLane/internal/biz"
	"GuardLane/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// StartHealthSweepCron starts the periodic health sweep. Each run derives
// every breaker's current health and pushes it into the degradation registry
// and the persistent snapshot store.
func StartHealthSweepCron(rc *conf.Resilience, resilience *biz.ResilienceService, logger log.Logger) *cron.Cron {
	helper := log.NewHelper(logger)

	interval := 30 * time.Second
	if rc != nil && rc.HealthSweepInterval != nil && rc.HealthSweepInterval.AsDuration() > 0 {
		interval = rc.HealthSweepInterval.AsDuration()
	}

	c := cron.New(cron.WithSeconds())

	_, err := c.AddFunc("@every "+interval.String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()
		resilience.SweepHealth(ctx)
	})
	if err != nil {
		helper.Errorw("msg", "failed to register health sweep cron job", "error", err, "type", "sweep")
		return nil
	}

	c.Start()
	helper.Infow("msg", "health sweep cron job started",
		"interval", interval.String(),
		"type", "sweep")

	return c
}
