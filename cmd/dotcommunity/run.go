package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dotsetgreg/dotcommunity/pkg/bus"
	"github.com/dotsetgreg/dotcommunity/pkg/channels"
	"github.com/dotsetgreg/dotcommunity/pkg/config"
	"github.com/dotsetgreg/dotcommunity/pkg/content"
	"github.com/dotsetgreg/dotcommunity/pkg/health"
	"github.com/dotsetgreg/dotcommunity/pkg/logger"
	"github.com/dotsetgreg/dotcommunity/pkg/moderator"
	"github.com/dotsetgreg/dotcommunity/pkg/providers"
	"github.com/dotsetgreg/dotcommunity/pkg/scheduler"
	"github.com/dotsetgreg/dotcommunity/pkg/state"
	"github.com/dotsetgreg/dotcommunity/pkg/store"
)

const shutdownTimeout = 15 * time.Second

func setupLogging(cfg *config.Config, debug bool) {
	info, err := os.Stderr.Stat()
	pretty := err == nil && info.Mode()&os.ModeCharDevice != 0
	logger.Init(os.Stderr, pretty)
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}
}

func runBot(parent context.Context, cfg *config.Config, debug bool) error {
	if parent == nil {
		parent = context.Background()
	}
	setupLogging(cfg, debug)

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if !st.Enabled() {
		logger.WarnC("store", "BOT_DB_PATH is empty, persistence disabled")
	}

	primary, err := providers.NewJudgeClientFromConfig(cfg, "primary", cfg.Judges.PrimaryProvider, cfg.Judges.PrimaryModel)
	if err != nil {
		return fmt.Errorf("primary judge: %w", err)
	}
	secondary, err := providers.NewJudgeClientFromConfig(cfg, "secondary", cfg.Judges.SecondaryProvider, cfg.Judges.SecondaryModel)
	if err != nil {
		return fmt.Errorf("secondary judge: %w", err)
	}

	rt := state.New(cfg.Location(), cfg.Bot.EnabledDefault)
	msgBus := bus.NewMessageBus()

	discord, err := channels.NewDiscordChannel(cfg.Discord, msgBus)
	if err != nil {
		return err
	}

	mod := moderator.New(moderator.Deps{
		Config:    cfg,
		Runtime:   rt,
		Store:     st,
		Bus:       msgBus,
		Primary:   primary,
		Secondary: secondary,
		Transport: discord,
	})
	mod.Version = formatVersion()
	discord.SetController(mod)

	// The secondary provider doubles as the writer for the bot's own posts.
	topics := scheduler.NewTopicEngine(cfg, rt, st, content.NewTopicGenerator(secondary), discord)
	outreach := scheduler.NewOutreachEngine(cfg, rt, st, content.NewOutreachComposer(secondary), discord)
	sched := scheduler.New(topics, outreach)
	sched.OnTick = mod.ObserveSchedulerRun
	mod.SetScheduler(sched)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mod.Restore(ctx)

	if err := discord.Start(ctx); err != nil {
		return err
	}
	fmt.Println("✓ Discord connected")

	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		if err := mod.Run(ctx); err != nil {
			logger.ErrorCF("moderator", "Pipeline stopped", map[string]any{"error": err.Error()})
		}
	}()

	if err := sched.Start(ctx); err != nil {
		logger.ErrorCF("scheduler", "Scheduler failed to start", map[string]any{"error": err.Error()})
	} else {
		fmt.Println("✓ Scheduler started")
	}

	var healthServer *health.Server
	if cfg.Gateway.Addr != "" {
		healthServer = health.NewServer(cfg.Gateway.Addr)
		healthServer.AddCheck("discord", discord.IsRunning)
		healthServer.AddCheck("pipeline", mod.Running)
		healthServer.AddCheck("scheduler", sched.Running)
		healthServer.SetStatus(func() any { return mod.Status() })
		go func() {
			if err := healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.ErrorCF("health", "Health server error", map[string]any{"error": err.Error()})
			}
		}()
		fmt.Printf("✓ Health endpoints available at http://%s/health, /ready, /status and /metrics\n", cfg.Gateway.Addr)
	}

	fmt.Println("Press Ctrl+C to stop")
	<-ctx.Done()
	fmt.Println("\nShutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := sched.Stop(shutdownCtx); err != nil {
		logger.WarnCF("scheduler", "Scheduler did not stop cleanly", map[string]any{"error": err.Error()})
	}
	if err := discord.Stop(shutdownCtx); err != nil {
		logger.WarnCF("discord", "Discord did not stop cleanly", map[string]any{"error": err.Error()})
	}
	msgBus.Close()
	select {
	case <-pipelineDone:
	case <-shutdownCtx.Done():
		logger.WarnC("moderator", "Pipeline did not drain before timeout")
	}
	if healthServer != nil {
		if err := healthServer.Stop(shutdownCtx); err != nil {
			logger.WarnCF("health", "Health server did not stop cleanly", map[string]any{"error": err.Error()})
		}
	}
	if dropped := msgBus.Dropped(); dropped > 0 {
		logger.WarnCF("bus", "Events dropped during run", map[string]any{"dropped": dropped})
	}
	fmt.Println("✓ Bot stopped")
	return nil
}
