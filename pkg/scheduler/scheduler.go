// Package scheduler drives the time-based behaviour of the bot: scheduled
// topics and inactive-member outreach.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dotsetgreg/dotcommunity/pkg/logger"
)

const (
	TopicSpec    = "@every 1m"
	OutreachSpec = "@every 1h"
)

// Ticker is one engine driven by the scheduler.
type Ticker interface {
	Tick(ctx context.Context, now time.Time)
}

// Scheduler owns one cron entry per engine.
type Scheduler struct {
	topic    Ticker
	outreach Ticker
	now      func() time.Time
	// OnTick, when set, is called after every tick with the job name.
	OnTick func(job string, took time.Duration)

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	cancel  context.CancelFunc
}

func New(topic, outreach Ticker) *Scheduler {
	return &Scheduler{
		topic:    topic,
		outreach: outreach,
		now:      time.Now,
		entries:  map[string]cron.EntryID{},
	}
}

// Start registers both engines and starts the cron loop. Each engine also
// ticks once immediately so the next-run estimates are populated.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New()
	jobs := []struct {
		name string
		spec string
		t    Ticker
	}{
		{"topic", TopicSpec, s.topic},
		{"outreach", OutreachSpec, s.outreach},
	}
	var startup []cron.Job
	for _, j := range jobs {
		if j.t == nil {
			continue
		}
		job := s.job(runCtx, j.name, j.t)
		id, err := c.AddJob(j.spec, job)
		if err != nil {
			cancel()
			return fmt.Errorf("register %s job: %w", j.name, err)
		}
		s.entries[j.name] = id
		startup = append(startup, job)
	}

	s.cron = c
	s.cancel = cancel
	c.Start()

	for _, job := range startup {
		go job.Run()
	}
	logger.InfoCF("scheduler", "Scheduler started", map[string]any{"jobs": len(s.entries)})
	return nil
}

// job wraps one engine so a tick still running when the next is due makes
// that next tick a no-op. The startup tick shares the same guard.
func (s *Scheduler) job(ctx context.Context, name string, t Ticker) cron.Job {
	log := cronLogger{job: name}
	return cron.NewChain(cron.Recover(log), cron.SkipIfStillRunning(log)).
		Then(cron.FuncJob(func() { s.run(ctx, name, t) }))
}

func (s *Scheduler) run(ctx context.Context, name string, t Ticker) {
	start := time.Now()
	t.Tick(ctx, s.now())
	if s.OnTick != nil {
		s.OnTick(name, time.Since(start))
	}
}

// cronLogger routes robfig/cron's own messages to the component logger.
type cronLogger struct {
	job string
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	logger.InfoCF("scheduler", msg, l.fields(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	fields := l.fields(keysAndValues)
	fields["error"] = err.Error()
	logger.ErrorCF("scheduler", msg, fields)
}

func (l cronLogger) fields(kv []any) map[string]any {
	out := map[string]any{"job": l.job}
	for i := 0; i+1 < len(kv); i += 2 {
		out[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return out
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// Cancel removes one engine's cron entry and leaves the other running.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.entries[name]
	if !ok || s.cron == nil {
		return false
	}
	s.cron.Remove(id)
	delete(s.entries, name)
	logger.InfoCF("scheduler", "Scheduler job cancelled", map[string]any{"job": name})
	return true
}

// Stop halts the cron loop and waits for running ticks until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	cancel := s.cancel
	s.cron = nil
	s.entries = map[string]cron.EntryID{}
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	done := c.Stop()
	defer cancel()
	select {
	case <-done.Done():
		logger.InfoC("scheduler", "Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
