package domain

import (
	"time"

	"github.com/google/uuid"
)

// Alert is one fired low-stock notification record.
// Params: product identity, observed stock, breached threshold, and fire time.
// Returns: transient record consumed by notification sinks and logging.
type Alert struct {
	ID        string    `json:"id"`
	Product   string    `json:"product"`
	Stock     int64     `json:"stock"`
	Threshold int64     `json:"threshold"`
	At        time.Time `json:"at"`
}

// NewAlert builds one alert with a fresh unique id.
// Params: product name, observed stock, breached threshold, and fire time.
// Returns: alert record ready for delivery.
func NewAlert(product string, stock, threshold int64, at time.Time) Alert {
	return Alert{
		ID:        uuid.NewString(),
		Product:   product,
		Stock:     stock,
		Threshold: threshold,
		At:        at,
	}
}
