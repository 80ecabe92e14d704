package notifyqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"stockwatch/internal/config"

	"github.com/nats-io/nats.go"
)

const alertStreamMaxAge = 24 * time.Hour

// NATSProducer publishes alert delivery jobs into a JetStream stream.
// Params: NATS connection and publish subject settings.
// Returns: queue producer implementation.
type NATSProducer struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
}

// NewNATSProducer creates the JetStream producer for the alert queue.
// Params: queue config from notify section.
// Returns: initialized producer or setup error.
func NewNATSProducer(cfg config.QueueConfig) (*NATSProducer, error) {
	nc, js, err := openJetStream(cfg)
	if err != nil {
		return nil, err
	}
	return &NATSProducer{nc: nc, js: js, subject: cfg.Subject}, nil
}

// Enqueue publishes one alert delivery job into the queue stream.
// Params: context and queue job payload.
// Returns: publish error.
func (p *NATSProducer) Enqueue(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal alert queue job: %w", err)
	}
	msg := nats.NewMsg(p.subject)
	msg.Data = body
	if strings.TrimSpace(job.ID) != "" {
		msg.Header.Set("Nats-Msg-Id", strings.TrimSpace(job.ID))
	}
	if _, err := p.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish alert queue job: %w", err)
	}
	return nil
}

// Close closes producer NATS connection.
// Params: none.
// Returns: nil after connection close.
func (p *NATSProducer) Close() error {
	if p == nil || p.nc == nil {
		return nil
	}
	p.nc.Close()
	return nil
}

// NATSWorker consumes alert delivery jobs via a queue-group consumer.
// Params: NATS connection and queue subscription.
// Returns: worker lifecycle handle.
type NATSWorker struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	logger *slog.Logger
}

// NewNATSWorker starts the queue consumer for alert delivery jobs.
// Params: queue config, logger, and per-job handler callback.
// Returns: running worker or setup error.
func NewNATSWorker(cfg config.QueueConfig, logger *slog.Logger, handler func(ctx context.Context, job Job) error) (*NATSWorker, error) {
	nc, js, err := openJetStream(cfg)
	if err != nil {
		return nil, err
	}

	nackDelay := time.Duration(cfg.NackDelayMS) * time.Millisecond
	subOpts := []nats.SubOpt{
		nats.BindStream(cfg.Stream),
		nats.Durable(cfg.ConsumerName),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(time.Duration(cfg.AckWaitSec) * time.Second),
		nats.MaxDeliver(cfg.MaxDeliver),
		nats.MaxAckPending(cfg.MaxAckPending),
		nats.DeliverAll(),
	}
	sub, err := js.QueueSubscribe(cfg.Subject, cfg.DeliverGroup, func(message *nats.Msg) {
		if message == nil {
			return
		}
		var job Job
		if err := json.Unmarshal(message.Data, &job); err != nil {
			logger.Warn("alert queue decode failed", "subject", message.Subject, "error", err.Error())
			_ = message.Ack()
			return
		}
		if err := handler(context.Background(), job); err != nil {
			logger.Error("alert queue delivery failed",
				"job_id", job.ID, "product", job.Alert.Product, "error", err.Error())
			if IsPermanent(err) {
				_ = message.Ack()
				return
			}
			_ = message.NakWithDelay(nackDelay)
			return
		}
		_ = message.Ack()
	}, subOpts...)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe alert queue: %w", err)
	}

	return &NATSWorker{nc: nc, sub: sub, logger: logger}, nil
}

// Close drains the subscription and closes the worker connection.
// Params: none.
// Returns: unsubscribe error.
func (w *NATSWorker) Close() error {
	if w == nil || w.nc == nil {
		return nil
	}
	var firstErr error
	if w.sub != nil {
		if err := w.sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			firstErr = fmt.Errorf("drain alert queue subscription: %w", err)
		}
	}
	w.nc.Close()
	return firstErr
}

// openJetStream connects to NATS and ensures the alert stream exists.
// Params: queue config.
// Returns: connection and JetStream context or setup error.
func openJetStream(cfg config.QueueConfig) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect alert queue nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream init for alert queue: %w", err)
	}
	if _, err := js.StreamInfo(cfg.Stream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			nc.Close()
			return nil, nil, fmt.Errorf("inspect alert stream: %w", err)
		}
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      cfg.Stream,
			Subjects:  []string{cfg.Subject},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    alertStreamMaxAge,
		})
		if err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("create alert stream: %w", err)
		}
	}
	return nc, js, nil
}
