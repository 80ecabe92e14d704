package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"stockwatch/internal/archive"
	"stockwatch/internal/clock"
	"stockwatch/internal/domain"
	"stockwatch/internal/engine"
	"stockwatch/internal/notify"
	"stockwatch/internal/notifyqueue"
)

// Fetcher produces one reading set per check cycle.
// Params: context bounding the acquisition.
// Returns: reading set or acquisition error.
type Fetcher interface {
	Fetch(ctx context.Context) ([]domain.Reading, error)
}

// Sink delivers one alert to the configured notification channels.
// Params: context and alert payload.
// Returns: delivery error after channel retries.
type Sink interface {
	Deliver(ctx context.Context, alert domain.Alert) error
}

// Manager coordinates one check cycle: acquisition, snapshot archiving,
// alert evaluation, and delivery. Cooldown bookkeeping happens inside the
// engine before any delivery attempt, so a slow or failing sink never causes
// a duplicate alert on the next eligible check.
// Params: fetcher, engine, sink, optional queue producer, archiver, and clock.
// Returns: per-tick pipeline entrypoint.
type Manager struct {
	logger   *slog.Logger
	fetcher  Fetcher
	engine   *engine.Engine
	sink     Sink
	producer notifyqueue.Producer
	archiver archive.Archiver
	clock    clock.Clock
}

// NewManager creates the check-cycle manager.
// Params: logger, fetcher, engine, sink, archiver, and clock.
// Returns: initialized manager without queue producer.
func NewManager(logger *slog.Logger, fetcher Fetcher, eng *engine.Engine, sink Sink, archiver archive.Archiver, clk clock.Clock) *Manager {
	return &Manager{
		logger:   logger,
		fetcher:  fetcher,
		engine:   eng,
		sink:     sink,
		archiver: archiver,
		clock:    clk,
	}
}

// SetProducer attaches the optional async delivery queue producer.
// Params: queue producer (nil keeps direct delivery).
// Returns: none.
func (m *Manager) SetProducer(producer notifyqueue.Producer) {
	m.producer = producer
}

// RunCycle executes one acquisition→alerting pass. Delivery failures are
// logged and absorbed; only acquisition failure surfaces to the caller, and
// no alert decision is ever derived from an exhausted chain.
// Params: context bounding the cycle.
// Returns: acquisition error, nil otherwise.
func (m *Manager) RunCycle(ctx context.Context) error {
	m.logger.Info("stock check started")

	readings, err := m.fetcher.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("acquire readings: %w", err)
	}
	m.archiver.SaveSnapshot(readings)

	alerts := m.engine.Evaluate(readings)
	if len(alerts) == 0 {
		m.logger.Info("no stock anomalies found", "readings", len(readings))
		return nil
	}

	for _, alert := range alerts {
		m.logger.Warn("stock alert",
			"product", alert.Product, "stock", alert.Stock, "threshold", alert.Threshold)
		m.deliver(ctx, alert)
	}
	return nil
}

// deliver hands one alert to the queue when configured, falling back to the
// direct sink when enqueueing fails.
// Params: context and alert payload.
// Returns: none; failures are logged only.
func (m *Manager) deliver(ctx context.Context, alert domain.Alert) {
	if m.producer != nil {
		job := notifyqueue.Job{
			ID:        notifyqueue.BuildJobID(alert),
			Alert:     alert,
			CreatedAt: m.clock.Now(),
		}
		err := m.producer.Enqueue(ctx, job)
		if err == nil {
			m.logger.Debug("alert enqueued", "job_id", job.ID, "product", alert.Product)
			return
		}
		m.logger.Warn("alert enqueue failed, delivering directly",
			"product", alert.Product, "error", err.Error())
	}
	if err := m.sink.Deliver(ctx, alert); err != nil {
		m.logger.Error("alert delivery failed", "product", alert.Product, "error", err.Error())
	}
}

// ProcessQueuedJob delivers one queued alert through the sink. Render
// failures are permanent: redelivering the same payload cannot fix them.
// Params: context and dequeued job.
// Returns: delivery error with retry classification.
func (m *Manager) ProcessQueuedJob(ctx context.Context, job notifyqueue.Job) error {
	err := m.sink.Deliver(ctx, job.Alert)
	if err == nil {
		return nil
	}
	if errors.Is(err, notify.ErrRender) {
		return notifyqueue.MarkPermanent(err)
	}
	return err
}
