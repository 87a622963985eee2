package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/electro-tech/pricewatch/internal/model"
	"github.com/electro-tech/pricewatch/internal/resilience"
)

// ErrVendorNotFound is returned when a handle or vendor id matches no
// registered vendor.
var ErrVendorNotFound = eris.New("vendor not found")

// ValidationError marks a record that was rejected before touching the
// database: wrong shape, unknown vendor, non-positive price. Validation
// failures are per-record conditions, not infrastructure faults, so
// callers skip the record instead of retrying the batch.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether the error chain contains a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// VendorFilter specifies criteria for listing vendors.
type VendorFilter struct {
	Status model.VendorStatus `json:"status,omitempty"`
	Limit  int                `json:"limit,omitempty"`
}

// Store is the persistence interface for the price ledger. Prices are
// append-only; the same vendor quoting the same product twice in a day
// simply yields two observations.
type Store interface {
	// Vendors
	UpsertVendor(ctx context.Context, v model.Vendor) error
	UpsertVendors(ctx context.Context, vendors []model.Vendor) (int, error)
	GetVendorByHandle(ctx context.Context, handle string) (*model.Vendor, error)
	ListVendors(ctx context.Context, filter VendorFilter) ([]model.Vendor, error)

	// Prices
	RecordPrice(ctx context.Context, rec model.PriceRecord) (int64, error)
	CountPrices(ctx context.Context, date time.Time) (int, error)
	DistinctVendors(ctx context.Context, date time.Time) (int, error)
	MinimumQuotes(ctx context.Context, date time.Time) ([]model.AggregatedQuote, error)

	// Delivery outbox
	EnqueueOutbox(ctx context.Context, entry resilience.OutboxEntry) error
	DequeueOutbox(ctx context.Context, filter resilience.OutboxFilter) ([]resilience.OutboxEntry, error)
	IncrementOutboxRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveOutbox(ctx context.Context, id string) error
	CountOutbox(ctx context.Context) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// validateRecord applies the checks shared by both drivers. The vendor
// existence check happens against the database afterwards.
func validateRecord(rec model.PriceRecord) error {
	if rec.VendorID == "" {
		return &ValidationError{Field: "vendor_id", Reason: "empty"}
	}
	if rec.Category == "" {
		return &ValidationError{Field: "category", Reason: "empty"}
	}
	if rec.Model == "" {
		return &ValidationError{Field: "model", Reason: "empty"}
	}
	if !rec.Price.IsPositive() {
		return &ValidationError{Field: "price", Reason: fmt.Sprintf("must be positive, got %s", rec.Price)}
	}
	if rec.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "zero date"}
	}
	return nil
}

// normalizeRecord fills defaults that the schema also carries, so both
// drivers insert identical shapes.
func normalizeRecord(rec model.PriceRecord) model.PriceRecord {
	if rec.Unit == "" {
		rec.Unit = "per piece"
	}
	if rec.Source == "" {
		rec.Source = "message"
	}
	if rec.ExtractedAt.IsZero() {
		rec.ExtractedAt = time.Now().UTC()
	}
	return rec
}
