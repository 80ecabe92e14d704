package extract

import (
	"bytes"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"stockwatch/internal/domain"

	"github.com/PuerkitoBio/goquery"
)

// Storefront structural contract. The first goods group on the page is the
// featured/promotional section and is never monitored.
const (
	groupSelector = "div.fui-goods-group.block.three"
	// ItemSelector locates one product entry inside a goods group. Exported so
	// the browser strategy can wait for the same element the extractor reads.
	ItemSelector  = ".fui-goods-item"
	nameSelector  = ".name"
	priceSelector = ".minprice"
	stockSelector = `.productprice span[style*="background-color:#0086EE"]`
	stockLabel    = "库存:"
)

// Extractor converts one retrieved storefront document into readings.
// Params: logger for per-item skip diagnostics.
// Returns: stateless extractor without network or scheduling knowledge.
type Extractor struct {
	logger *slog.Logger
}

// New creates a reading extractor.
// Params: logger for skip diagnostics.
// Returns: initialized extractor.
func New(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Readings extracts (name, stock) pairs from one document body.
// Malformed items are skipped, never fatal; an unparseable document or a
// document without goods groups yields an empty slice. The caller decides
// success/failure through the acquisition chain, not through emptiness.
// Params: raw retrieved document body.
// Returns: readings in document order.
func (e *Extractor) Readings(body []byte) []domain.Reading {
	document, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		e.logger.Warn("document parse failed", "error", err.Error())
		return nil
	}

	readings := make([]domain.Reading, 0, 16)
	document.Find(groupSelector).Each(func(groupIndex int, group *goquery.Selection) {
		if groupIndex == 0 {
			// Featured/promotional group is reserved and never monitored.
			return
		}
		group.Find(ItemSelector).Each(func(_ int, item *goquery.Selection) {
			reading, ok := e.readItem(item)
			if !ok {
				return
			}
			readings = append(readings, reading)
		})
	})

	e.logger.Debug("document extracted", "readings", len(readings))
	return readings
}

// readItem extracts one product entry.
// Params: one item selection.
// Returns: reading and true, or false when any required sub-field is missing or malformed.
func (e *Extractor) readItem(item *goquery.Selection) (domain.Reading, bool) {
	nameNode := item.Find(nameSelector)
	priceNode := item.Find(priceSelector)
	stockNode := item.Find(stockSelector)
	if nameNode.Length() == 0 || priceNode.Length() == 0 || stockNode.Length() == 0 {
		e.logger.Debug("item skipped: missing required field",
			"has_name", nameNode.Length() > 0,
			"has_price", priceNode.Length() > 0,
			"has_stock", stockNode.Length() > 0,
		)
		return domain.Reading{}, false
	}

	name := strings.TrimSpace(nameNode.Text())
	stock, err := parseStock(stockNode.Text())
	if err != nil {
		e.logger.Debug("item skipped: stock parse failed", "name", name, "error", err.Error())
		return domain.Reading{}, false
	}
	if stock < 0 {
		e.logger.Debug("item skipped: negative stock", "name", name, "stock", stock)
		return domain.Reading{}, false
	}
	return domain.Reading{Name: name, Stock: stock}, true
}

// parseStock normalizes stock text by stripping the label and all whitespace.
// Params: raw stock indicator text.
// Returns: parsed stock count or parse error.
func parseStock(raw string) (int64, error) {
	normalized := strings.ReplaceAll(raw, stockLabel, "")
	normalized = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, normalized)
	return strconv.ParseInt(normalized, 10, 64)
}
