// Package sink persists rendered daily reports. Every configured sink
// receives the same summary text, detailed text, and aggregated quote
// rows; each decides what to keep.
package sink

import (
	"context"
	"time"

	"github.com/electro-tech/pricewatch/internal/model"
)

// Sink writes one day's report artifacts.
type Sink interface {
	Name() string
	Write(ctx context.Context, date time.Time, summary, detailed string, quotes []model.AggregatedQuote) error
}

// fileStamp is the date layout used in artifact file names.
const fileStamp = "20060102"
