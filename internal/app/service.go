package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"stockwatch/internal/archive"
	"stockwatch/internal/clock"
	"stockwatch/internal/config"
	"stockwatch/internal/engine"
	"stockwatch/internal/extract"
	"stockwatch/internal/fetch"
	"stockwatch/internal/logging"
	"stockwatch/internal/notify"
	"stockwatch/internal/notifyqueue"
)

// Grace period for an in-flight check to finish before shutdown abandons it.
const shutdownGrace = 10 * time.Second

// Service composes runtime dependencies and process lifecycle.
// Params: config path and shared runtime components.
// Returns: runnable stock-monitoring service.
type Service struct {
	cfg         config.Config
	logger      *slog.Logger
	closeLog    func()
	manager     *Manager
	scheduler   *cron.Cron
	notifyQ     interface{ Close() error }
	notifyPub   notifyqueue.Producer
	clock       clock.Clock
	snoozeStart int
	snoozeEnd   int
	baseCtx     context.Context
	baseCancel  context.CancelFunc
}

// NewService builds a service instance from a TOML config file.
// Params: config file path and clock implementation.
// Returns: initialized service or setup error.
func NewService(path string, clk clock.Clock) (*Service, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	extractor := extract.New(logger)
	archiver := archive.New(cfg.Archive, logger)
	chain := fetch.NewChain(cfg.Source, extractor, archiver, logger)
	eng := engine.New(cfg.Product, cfg.Monitor.Cooldown(), logger, clk)

	dispatcher, err := notify.NewDispatcher(cfg.Notify, logger)
	if err != nil {
		closeLog()
		return nil, err
	}

	manager := NewManager(logger, chain, eng, dispatcher, archiver, clk)

	snoozeStart, snoozeEnd, fellBack := config.NormalizeQuietHours(cfg.Monitor.SnoozeStart, cfg.Monitor.SnoozeEnd)
	if fellBack {
		logger.Warn("invalid quiet-hours window, using fallback",
			"configured_start", cfg.Monitor.SnoozeStart, "configured_end", cfg.Monitor.SnoozeEnd,
			"snooze_start", snoozeStart, "snooze_end", snoozeEnd)
	}

	service := &Service{
		cfg:         cfg,
		logger:      logger,
		closeLog:    closeLog,
		manager:     manager,
		clock:       clk,
		snoozeStart: snoozeStart,
		snoozeEnd:   snoozeEnd,
	}

	if err := service.buildNotifyQueue(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}

	service.scheduler = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger{logger: logger}),
	))

	return service, nil
}

// Run starts the check schedule and blocks until a shutdown signal.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	s.baseCtx, s.baseCancel = context.WithCancel(ctx)
	defer s.baseCancel()

	spec := fmt.Sprintf("@every %dm", s.cfg.Monitor.IntervalMin)
	if _, err := s.scheduler.AddFunc(spec, s.runTick); err != nil {
		_ = s.shutdown()
		return fmt.Errorf("schedule checks: %w", err)
	}

	s.logger.Info("monitoring started",
		"service", s.cfg.Service.Name,
		"interval_min", s.cfg.Monitor.IntervalMin,
		"cooldown_sec", s.cfg.Monitor.CooldownSec,
		"snooze_start", s.snoozeStart, "snooze_end", s.snoozeEnd,
		"products", len(s.cfg.Product))

	// First check runs immediately; cron fires the rest on the interval.
	s.runTick()
	s.scheduler.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return s.shutdown()
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
		return s.shutdown()
	}
}

// runTick executes one scheduled check unless the quiet-hours window
// suppresses it. A failed cycle is logged and absorbed so the schedule
// keeps running.
// Params: none.
// Returns: none.
func (s *Service) runTick() {
	now := s.clock.Now()
	if inQuietWindow(now.Hour(), s.snoozeStart, s.snoozeEnd) {
		s.logger.Info("check suppressed by quiet hours",
			"hour", now.Hour(), "snooze_start", s.snoozeStart, "snooze_end", s.snoozeEnd)
		return
	}

	ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.Monitor.Interval())
	defer cancel()
	if err := s.manager.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("check cycle failed", "error", err.Error())
	}
}

// shutdown stops the schedule, waits briefly for an in-flight check, and
// closes runtime resources in dependency order.
// Params: none.
// Returns: first close error.
func (s *Service) shutdown() error {
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	stopCtx := s.scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(shutdownGrace):
		s.logger.Warn("in-flight check did not finish in time, abandoning it")
		s.baseCancel()
		<-stopCtx.Done()
	}

	if s.notifyQ != nil {
		if err := s.notifyQ.Close(); err != nil {
			s.logger.Error("notify queue worker close failed", "error", err.Error())
			markErr(fmt.Errorf("notify queue worker close: %w", err))
		}
	}
	if s.notifyPub != nil {
		if err := s.notifyPub.Close(); err != nil {
			s.logger.Error("notify queue producer close failed", "error", err.Error())
			markErr(fmt.Errorf("notify queue producer close: %w", err))
		}
	}
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
// Params: none.
// Returns: all acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	if s.notifyQ != nil {
		_ = s.notifyQ.Close()
		s.notifyQ = nil
	}
	if s.notifyPub != nil {
		_ = s.notifyPub.Close()
		s.notifyPub = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildNotifyQueue initializes the async delivery producer+worker when enabled.
// Params: none.
// Returns: setup error.
func (s *Service) buildNotifyQueue() error {
	if !s.cfg.Notify.Queue.Enabled {
		return nil
	}
	producer, err := notifyqueue.NewNATSProducer(s.cfg.Notify.Queue)
	if err != nil {
		return err
	}
	worker, err := notifyqueue.NewNATSWorker(s.cfg.Notify.Queue, s.logger, s.manager.ProcessQueuedJob)
	if err != nil {
		_ = producer.Close()
		return err
	}
	s.notifyPub = producer
	s.notifyQ = worker
	s.manager.SetProducer(producer)
	return nil
}

// cronLogger adapts slog to the cron logger contract so skipped overlapping
// runs surface in the service log.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err.Error())...)
}
