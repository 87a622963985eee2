package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/electro-tech/pricewatch/internal/model"
	"github.com/electro-tech/pricewatch/internal/store"
)

// Snapshot holds a point-in-time view of the day's market data.
type Snapshot struct {
	VendorsActive int       `json:"vendors_active"`
	PricesToday   int       `json:"prices_today"`
	QuotesToday   int       `json:"quotes_today"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers snapshot metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot for the given day.
func (c *Collector) Collect(ctx context.Context, date time.Time) (*Snapshot, error) {
	snap := &Snapshot{CollectedAt: time.Now().UTC()}

	vendors, err := c.store.ListVendors(ctx, store.VendorFilter{Status: model.VendorActive})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list vendors")
	}
	snap.VendorsActive = len(vendors)

	prices, err := c.store.CountPrices(ctx, date)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count prices")
	}
	snap.PricesToday = prices

	quotes, err := c.store.MinimumQuotes(ctx, date)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: aggregate quotes")
	}
	snap.QuotesToday = len(quotes)

	return snap, nil
}
