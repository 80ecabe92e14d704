package engine

import (
	"log/slog"
	"sync"
	"time"

	"stockwatch/internal/clock"
	"stockwatch/internal/domain"
)

// Engine maps real-time readings onto the monitored-product catalog and
// decides which products fire, applying per-product cooldown debouncing.
// Cooldown state is owned exclusively by the engine, written only when an
// alert fires, and never cleared during the process lifetime.
// Params: immutable catalog, global cooldown, logger, and clock.
// Returns: stateful alert decision component.
type Engine struct {
	mu        sync.Mutex
	catalog   []domain.Product
	cooldown  time.Duration
	lastAlert map[string]time.Time
	logger    *slog.Logger
	clock     clock.Clock
}

// New constructs an alert engine with empty cooldown state.
// Params: catalog in configuration order, cooldown window, logger, and clock.
// Returns: initialized engine instance.
func New(catalog []domain.Product, cooldown time.Duration, logger *slog.Logger, clk clock.Clock) *Engine {
	return &Engine{
		catalog:   catalog,
		cooldown:  cooldown,
		lastAlert: make(map[string]time.Time),
		logger:    logger,
		clock:     clk,
	}
}

// Evaluate decides which catalog products breach threshold and are eligible
// to alert. Cooldown state is mutated in place as alerts are decided, before
// any delivery attempt: the call is deliberately not idempotent, and a second
// call with the same readings suppresses everything just fired.
// Params: reading set from one acquisition cycle.
// Returns: alerts to deliver, in catalog order.
func (e *Engine) Evaluate(readings []domain.Reading) []domain.Alert {
	now := e.clock.Now()
	index := domain.IndexReadings(readings)

	e.mu.Lock()
	defer e.mu.Unlock()

	var alerts []domain.Alert
	for _, product := range e.catalog {
		reading, ok := index[product.Name]
		if !ok {
			e.logger.Warn("no real-time reading for product", "product", product.Name)
			continue
		}
		if !product.Monitored() {
			continue
		}
		if reading.Stock < 0 {
			e.logger.Error("invalid stock reading", "product", product.Name, "stock", reading.Stock)
			continue
		}

		e.logger.Debug("stock check",
			"product", product.Name, "stock", reading.Stock, "threshold", product.Threshold)

		if reading.Stock >= product.Threshold {
			// Recovery does not reset the cooldown timer: the next
			// qualifying breach after expiry fires immediately.
			continue
		}

		last, fired := e.lastAlert[product.Name]
		if fired && now.Sub(last) <= e.cooldown {
			e.logger.Debug("alert suppressed by cooldown",
				"product", product.Name, "elapsed", now.Sub(last), "cooldown", e.cooldown)
			continue
		}

		e.lastAlert[product.Name] = now
		alerts = append(alerts, domain.NewAlert(product.Name, reading.Stock, product.Threshold, now))
	}
	return alerts
}

// LastAlertAt returns the recorded fire time for one product.
// Params: product name.
// Returns: last alert time and whether the product has ever fired.
func (e *Engine) LastAlertAt(name string) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	at, ok := e.lastAlert[name]
	return at, ok
}
