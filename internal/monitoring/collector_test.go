package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/electro-tech/pricewatch/internal/model"
	"github.com/electro-tech/pricewatch/internal/resilience"
	"github.com/electro-tech/pricewatch/internal/store"
)

// mockStore implements store.Store for monitoring tests.
type mockStore struct {
	vendors []model.Vendor
	prices  int
	quotes  []model.AggregatedQuote

	vendorsErr error
	pricesErr  error
	quotesErr  error
}

func (m *mockStore) ListVendors(_ context.Context, filter store.VendorFilter) ([]model.Vendor, error) {
	if m.vendorsErr != nil {
		return nil, m.vendorsErr
	}
	var out []model.Vendor
	for _, v := range m.vendors {
		if filter.Status != "" && v.Status != filter.Status {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (m *mockStore) CountPrices(_ context.Context, _ time.Time) (int, error) {
	return m.prices, m.pricesErr
}

func (m *mockStore) MinimumQuotes(_ context.Context, _ time.Time) ([]model.AggregatedQuote, error) {
	return m.quotes, m.quotesErr
}

// Unused store methods, present to satisfy the interface.
func (m *mockStore) UpsertVendor(context.Context, model.Vendor) error       { return nil }
func (m *mockStore) UpsertVendors(context.Context, []model.Vendor) (int, error) {
	return 0, nil
}
func (m *mockStore) GetVendorByHandle(context.Context, string) (*model.Vendor, error) {
	return nil, store.ErrVendorNotFound
}
func (m *mockStore) RecordPrice(context.Context, model.PriceRecord) (int64, error) { return 0, nil }
func (m *mockStore) DistinctVendors(context.Context, time.Time) (int, error)       { return 0, nil }
func (m *mockStore) EnqueueOutbox(context.Context, resilience.OutboxEntry) error   { return nil }
func (m *mockStore) DequeueOutbox(context.Context, resilience.OutboxFilter) ([]resilience.OutboxEntry, error) {
	return nil, nil
}
func (m *mockStore) IncrementOutboxRetry(context.Context, string, time.Time, string) error {
	return nil
}
func (m *mockStore) RemoveOutbox(context.Context, string) error { return nil }
func (m *mockStore) CountOutbox(context.Context) (int, error)   { return 0, nil }
func (m *mockStore) Ping(context.Context) error                 { return nil }
func (m *mockStore) Migrate(context.Context) error              { return nil }
func (m *mockStore) Close() error                               { return nil }

func TestCollector_Collect(t *testing.T) {
	st := &mockStore{
		vendors: []model.Vendor{
			{VendorID: "V001", Status: model.VendorActive},
			{VendorID: "V002", Status: model.VendorActive},
			{VendorID: "V003", Status: model.VendorInactive},
		},
		prices: 17,
		quotes: []model.AggregatedQuote{{Category: "Inverter"}, {Category: "Battery"}},
	}

	snap, err := NewCollector(st).Collect(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 2, snap.VendorsActive, "inactive vendors are not counted")
	assert.Equal(t, 17, snap.PricesToday)
	assert.Equal(t, 2, snap.QuotesToday)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_Collect_StoreError(t *testing.T) {
	st := &mockStore{pricesErr: errors.New("database locked")}

	_, err := NewCollector(st).Collect(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: count prices")
}
