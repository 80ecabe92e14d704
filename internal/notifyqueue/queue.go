package notifyqueue

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"stockwatch/internal/domain"
)

// Job is one outbound alert delivery task in the async queue.
// Params: deterministic id, alert payload, and enqueue time.
// Returns: queue unit consumed by the delivery worker.
type Job struct {
	ID        string       `json:"id"`
	Alert     domain.Alert `json:"alert"`
	CreatedAt time.Time    `json:"created_at"`
}

// BuildJobID creates a deterministic id for one alert delivery task.
// Identical alert decisions map to the same id, so JetStream message
// deduplication drops accidental double enqueues.
// Params: alert payload.
// Returns: stable SHA1-based id string.
func BuildJobID(alert domain.Alert) string {
	raw := fmt.Sprintf("%s|%d|%d|%d", alert.Product, alert.Stock, alert.Threshold, alert.At.UnixNano())
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Producer enqueues alert delivery jobs.
// Params: context and queue job payload.
// Returns: enqueue error.
type Producer interface {
	Enqueue(ctx context.Context, job Job) error
	Close() error
}

// permanentError marks delivery failures that must not be retried.
// Params: wrapped root cause.
// Returns: typed non-retryable marker.
type permanentError struct {
	err error
}

// Error returns wrapped error message.
// Params: none.
// Returns: string representation.
func (e permanentError) Error() string {
	if e.err == nil {
		return "permanent delivery error"
	}
	return e.err.Error()
}

// Unwrap exposes wrapped cause for errors.Is/errors.As.
// Params: none.
// Returns: wrapped error.
func (e permanentError) Unwrap() error {
	return e.err
}

// MarkPermanent wraps error as a non-retryable delivery failure.
// Params: source error.
// Returns: wrapped error or nil.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether error is marked as non-retryable.
// Params: delivery error.
// Returns: true when the worker must acknowledge without retrying.
func IsPermanent(err error) bool {
	var tagged permanentError
	return errors.As(err, &tagged)
}
