package extract

import (
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func itemHTML(name, price, stock string) string {
	html := `<div class="fui-goods-item">`
	if name != "" {
		html += `<div class="name">` + name + `</div>`
	}
	if price != "" {
		html += `<div class="minprice">` + price + `</div>`
	}
	if stock != "" {
		html += `<div class="productprice"><span style="background-color:#0086EE">` + stock + `</span></div>`
	}
	return html + `</div>`
}

func groupHTML(items ...string) string {
	html := `<div class="fui-goods-group block three">`
	for _, item := range items {
		html += item
	}
	return html + `</div>`
}

func TestReadingsSkipsFeaturedGroupAndMalformedItems(t *testing.T) {
	t.Parallel()

	featured := groupHTML(
		itemHTML("promo-1", "¥1", "库存: 10"),
		itemHTML("promo-2", "¥2", "库存: 20"),
		itemHTML("promo-3", "¥3", "库存: 30"),
	)
	regular := groupHTML(
		itemHTML("A", "¥5", "库存: 12"),
		itemHTML("B", "¥6", "库存: 0"),
		itemHTML("broken", "¥7", ""),
	)
	body := []byte("<html><body>" + featured + regular + "</body></html>")

	readings := New(testLogger()).Readings(body)
	if len(readings) != 2 {
		t.Fatalf("expected 2 readings, got %d: %+v", len(readings), readings)
	}
	if readings[0].Name != "A" || readings[0].Stock != 12 {
		t.Fatalf("unexpected first reading: %+v", readings[0])
	}
	if readings[1].Name != "B" || readings[1].Stock != 0 {
		t.Fatalf("unexpected second reading: %+v", readings[1])
	}
}

func TestReadingsStockNormalization(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		stockText string
		want      int64
		skipped   bool
	}{
		{name: "label and spaces", stockText: " 库存: 4 2 ", want: 42},
		{name: "bare number", stockText: "7", want: 7},
		{name: "non-numeric", stockText: "库存: many", skipped: true},
		{name: "negative", stockText: "库存: -3", skipped: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			body := []byte("<html><body>" +
				groupHTML(itemHTML("featured", "¥1", "库存: 1")) +
				groupHTML(itemHTML("P", "¥9", tc.stockText)) +
				"</body></html>")
			readings := New(testLogger()).Readings(body)
			if tc.skipped {
				if len(readings) != 0 {
					t.Fatalf("expected item to be skipped, got %+v", readings)
				}
				return
			}
			if len(readings) != 1 || readings[0].Stock != tc.want {
				t.Fatalf("expected stock %d, got %+v", tc.want, readings)
			}
		})
	}
}

func TestReadingsEmptyInputs(t *testing.T) {
	t.Parallel()

	extractor := New(testLogger())
	if got := extractor.Readings(nil); len(got) != 0 {
		t.Fatalf("expected no readings for empty body, got %+v", got)
	}
	if got := extractor.Readings([]byte("<html><body><p>no goods here</p></body></html>")); len(got) != 0 {
		t.Fatalf("expected no readings without goods groups, got %+v", got)
	}
	// A single group is the featured section and must be discarded wholesale.
	only := groupHTML(itemHTML("promo", "¥1", "库存: 5"))
	if got := extractor.Readings([]byte("<html><body>" + only + "</body></html>")); len(got) != 0 {
		t.Fatalf("expected no readings from featured-only page, got %+v", got)
	}
}

func TestReadingsMissingNameOrPriceSkipsItem(t *testing.T) {
	t.Parallel()

	body := []byte("<html><body>" +
		groupHTML(itemHTML("featured", "¥1", "库存: 1")) +
		groupHTML(
			itemHTML("", "¥2", "库存: 2"),
			itemHTML("no-price", "", "库存: 3"),
			itemHTML("ok", "¥4", "库存: 4"),
		) +
		"</body></html>")

	readings := New(testLogger()).Readings(body)
	if len(readings) != 1 || readings[0].Name != "ok" || readings[0].Stock != 4 {
		t.Fatalf("expected only the well-formed item, got %+v", readings)
	}
}
