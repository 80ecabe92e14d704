package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"stockwatch/internal/archive"
	"stockwatch/internal/config"
	"stockwatch/internal/domain"
	"stockwatch/internal/extract"
)

// ErrExhausted reports that every acquisition strategy in the chain failed.
// It is distinct from a successful fetch that legitimately carries zero
// readings: callers must never derive alert decisions from an exhausted chain.
var ErrExhausted = errors.New("acquisition chain exhausted")

// Strategy retrieves the raw storefront document one way.
// Params: context bounding the retrieval.
// Returns: raw document body or transport/navigation error.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context) ([]byte, error)
}

// Chain tries acquisition strategies in fixed priority order with
// fallback-on-failure semantics. Strategies run sequentially; fallback is
// only meaningful after confirmed failure of the prior strategy.
// Params: ordered strategies, extractor, archiver, and plausibility limits.
// Returns: reading supplier for the check cycle.
type Chain struct {
	strategies []Strategy
	extractor  *extract.Extractor
	archiver   archive.Archiver
	minBody    int
	logger     *slog.Logger
}

// NewChain builds the strategy chain from source configuration: the direct
// HTTP strategy first, the browser-rendering strategy second when enabled.
// Params: source config, extractor, archiver, and logger.
// Returns: initialized chain.
func NewChain(cfg config.SourceConfig, extractor *extract.Extractor, archiver archive.Archiver, logger *slog.Logger) *Chain {
	strategies := []Strategy{newHTTPStrategy(cfg)}
	if cfg.Browser.Enabled {
		strategies = append(strategies, newBrowserStrategy(cfg, logger))
	}
	return &Chain{
		strategies: strategies,
		extractor:  extractor,
		archiver:   archiver,
		minBody:    cfg.MinBodyBytes,
		logger:     logger,
	}
}

// NewChainFromStrategies builds a chain over explicit strategies.
// Params: strategy list, extractor, archiver, minimum plausible body size, and logger.
// Returns: initialized chain.
func NewChainFromStrategies(strategies []Strategy, extractor *extract.Extractor, archiver archive.Archiver, minBody int, logger *slog.Logger) *Chain {
	return &Chain{
		strategies: strategies,
		extractor:  extractor,
		archiver:   archiver,
		minBody:    minBody,
		logger:     logger,
	}
}

// Fetch produces one reading set, failing only when every strategy fails.
// A strategy fails on transport error, an implausibly short body, or an
// extraction that yields zero items. No strategy is retried in place.
// Params: context bounding the whole chain.
// Returns: reading set from the first successful strategy, or ErrExhausted.
func (c *Chain) Fetch(ctx context.Context) ([]domain.Reading, error) {
	failures := make([]string, 0, len(c.strategies))
	for _, strategy := range c.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := strategy.Fetch(ctx)
		if err != nil {
			c.logger.Warn("acquisition strategy failed", "strategy", strategy.Name(), "error", err.Error())
			failures = append(failures, fmt.Sprintf("%s: %v", strategy.Name(), err))
			continue
		}
		c.archiver.SavePage(strategy.Name(), body)

		if len(body) < c.minBody {
			c.logger.Warn("acquisition strategy returned implausibly short body",
				"strategy", strategy.Name(), "bytes", len(body), "min_bytes", c.minBody)
			failures = append(failures, fmt.Sprintf("%s: body %d bytes below minimum %d", strategy.Name(), len(body), c.minBody))
			continue
		}

		readings := c.extractor.Readings(body)
		if len(readings) == 0 {
			c.logger.Warn("acquisition strategy yielded no readings", "strategy", strategy.Name())
			failures = append(failures, fmt.Sprintf("%s: extraction yielded no readings", strategy.Name()))
			continue
		}

		c.logger.Debug("acquisition succeeded", "strategy", strategy.Name(), "readings", len(readings))
		return readings, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrExhausted, strings.Join(failures, "; "))
}
