package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawMessage is one inbound vendor message before extraction.
type RawMessage struct {
	SenderHandle string    `json:"sender_handle"`
	Text         string    `json:"text"`
	ReceivedAt   time.Time `json:"received_at"`
}

// PriceCandidate is a single price observation extracted from message text.
// Candidates carry no vendor identity; that is attached when they are
// recorded against the sending vendor.
type PriceCandidate struct {
	Category string          `json:"category"`
	Model    string          `json:"model"`
	Price    decimal.Decimal `json:"price"`
	Unit     string          `json:"unit"`
}

// PriceRecord is a persisted price observation. Records are append-only;
// corrections arrive as new observations on a later date.
type PriceRecord struct {
	ID          int64           `json:"id,omitempty"`
	Date        time.Time       `json:"date"`
	VendorID    string          `json:"vendor_id"`
	Company     string          `json:"company,omitempty"`
	Category    string          `json:"category"`
	Model       string          `json:"model"`
	Price       decimal.Decimal `json:"price"`
	Unit        string          `json:"unit"`
	Source      string          `json:"source,omitempty"` // which collector produced it
	ExtractedAt time.Time       `json:"extracted_at,omitempty"`
}

// AggregatedQuote is the cheapest observation for a (category, model,
// company) group on a given date, joined with the winning vendor.
type AggregatedQuote struct {
	Category      string          `json:"category"`
	Model         string          `json:"model"`
	Company       string          `json:"company,omitempty"`
	MinPrice      decimal.Decimal `json:"min_price"`
	Unit          string          `json:"unit"`
	VendorID      string          `json:"vendor_id"`
	VendorName    string          `json:"vendor_name"`
	ContactHandle string          `json:"contact_handle,omitempty"`
	VendorType    string          `json:"vendor_type,omitempty"`
}

// DisplayModel renders the model with its company prefix when one is known.
func (q AggregatedQuote) DisplayModel() string {
	if q.Company != "" {
		return q.Company + " " + q.Model
	}
	return q.Model
}
