package domain

// Reading is one product's observed stock count from a single acquisition cycle.
// Params: product name as rendered by the source and non-negative stock count.
// Returns: transient value consumed by the alert engine and snapshot archive.
type Reading struct {
	Name  string `json:"name"`
	Stock int64  `json:"stock"`
}

// IndexReadings builds an exact-name lookup over one reading set.
// Params: reading slice from one acquisition cycle.
// Returns: map keyed by product name; later duplicates win.
func IndexReadings(readings []Reading) map[string]Reading {
	index := make(map[string]Reading, len(readings))
	for _, reading := range readings {
		index[reading.Name] = reading
	}
	return index
}
