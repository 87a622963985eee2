package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/electro-tech/pricewatch/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testVendor(id, handle string) model.Vendor {
	return model.Vendor{
		VendorID:      id,
		Name:          "Vendor " + id,
		ContactHandle: handle,
		Type:          "wholesale",
		Status:        model.VendorActive,
	}
}

var testDay = time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

func testRecord(vendorID, category, productModel string, price int64) model.PriceRecord {
	return model.PriceRecord{
		Date:     testDay,
		VendorID: vendorID,
		Category: category,
		Model:    productModel,
		Company:  "Generic",
		Price:    decimal.NewFromInt(price),
	}
}

// --- Vendors ---

func TestSQLite_UpsertVendor_AndGetByHandle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertVendor(ctx, testVendor("V001", "+923001234567")))

	v, err := st.GetVendorByHandle(ctx, "+923001234567")
	require.NoError(t, err)
	assert.Equal(t, "V001", v.VendorID)
	assert.Equal(t, "Vendor V001", v.Name)
	assert.Equal(t, model.VendorActive, v.Status)
}

func TestSQLite_GetVendorByHandle_NormalizesLookup(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// Stored handle is normalized on write; lookups normalize too, so
	// the local 03xx form finds the vendor registered with +92.
	require.NoError(t, st.UpsertVendor(ctx, testVendor("V001", "0300-1234567")))

	v, err := st.GetVendorByHandle(ctx, "+92 300 1234567")
	require.NoError(t, err)
	assert.Equal(t, "V001", v.VendorID)
	assert.Equal(t, "+923001234567", v.ContactHandle)
}

func TestSQLite_GetVendorByHandle_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetVendorByHandle(context.Background(), "+923009999999")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVendorNotFound))
}

func TestSQLite_UpsertVendor_UpdatesExisting(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertVendor(ctx, testVendor("V001", "+923001234567")))

	updated := testVendor("V001", "+923001234567")
	updated.Name = "Renamed Traders"
	updated.Status = model.VendorInactive
	require.NoError(t, st.UpsertVendor(ctx, updated))

	v, err := st.GetVendorByHandle(ctx, "+923001234567")
	require.NoError(t, err)
	assert.Equal(t, "Renamed Traders", v.Name)
	assert.Equal(t, model.VendorInactive, v.Status)

	vendors, err := st.ListVendors(ctx, VendorFilter{})
	require.NoError(t, err)
	assert.Len(t, vendors, 1)
}

func TestSQLite_UpsertVendor_Validation(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	err := st.UpsertVendor(ctx, model.Vendor{Name: "No ID", ContactHandle: "+923001234567"})
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	err = st.UpsertVendor(ctx, model.Vendor{VendorID: "V002", ContactHandle: "+923001234567"})
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	err = st.UpsertVendor(ctx, model.Vendor{VendorID: "V003", Name: "No Handle"})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestSQLite_UpsertVendors_Bulk(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.UpsertVendors(ctx, []model.Vendor{
		testVendor("V001", "+923001111111"),
		testVendor("V002", "+923002222222"),
		testVendor("V003", "+923003333333"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	vendors, err := st.ListVendors(ctx, VendorFilter{})
	require.NoError(t, err)
	assert.Len(t, vendors, 3)
}

func TestSQLite_ListVendors_FilterByStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	active := testVendor("V001", "+923001111111")
	inactive := testVendor("V002", "+923002222222")
	inactive.Status = model.VendorInactive
	require.NoError(t, st.UpsertVendor(ctx, active))
	require.NoError(t, st.UpsertVendor(ctx, inactive))

	vendors, err := st.ListVendors(ctx, VendorFilter{Status: model.VendorActive})
	require.NoError(t, err)
	require.Len(t, vendors, 1)
	assert.Equal(t, "V001", vendors[0].VendorID)

	vendors, err = st.ListVendors(ctx, VendorFilter{Status: model.VendorInactive})
	require.NoError(t, err)
	require.Len(t, vendors, 1)
	assert.Equal(t, "V002", vendors[0].VendorID)
}

// --- Prices ---

func TestSQLite_RecordPrice_AndCount(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertVendor(ctx, testVendor("V001", "+923001111111")))

	id, err := st.RecordPrice(ctx, testRecord("V001", "Inverter", "Growatt 5W", 65000))
	require.NoError(t, err)
	assert.Positive(t, id)

	// Same vendor quoting again the same day appends a second row.
	id2, err := st.RecordPrice(ctx, testRecord("V001", "Inverter", "Growatt 5W", 64000))
	require.NoError(t, err)
	assert.Greater(t, id2, id)

	count, err := st.CountPrices(ctx, testDay)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSQLite_RecordPrice_UnknownVendor(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.RecordPrice(context.Background(), testRecord("V404", "Inverter", "Growatt 5W", 65000))
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "unknown vendor")
}

func TestSQLite_RecordPrice_InactiveVendor(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	v := testVendor("V001", "+923001111111")
	v.Status = model.VendorInactive
	require.NoError(t, st.UpsertVendor(ctx, v))

	_, err := st.RecordPrice(ctx, testRecord("V001", "Inverter", "Growatt 5W", 65000))
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "inactive")
}

func TestSQLite_RecordPrice_Validation(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertVendor(ctx, testVendor("V001", "+923001111111")))

	tests := []struct {
		name   string
		mutate func(*model.PriceRecord)
	}{
		{"empty vendor", func(r *model.PriceRecord) { r.VendorID = "" }},
		{"empty category", func(r *model.PriceRecord) { r.Category = "" }},
		{"empty model", func(r *model.PriceRecord) { r.Model = "" }},
		{"zero price", func(r *model.PriceRecord) { r.Price = decimal.Zero }},
		{"negative price", func(r *model.PriceRecord) { r.Price = decimal.NewFromInt(-100) }},
		{"zero date", func(r *model.PriceRecord) { r.Date = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testRecord("V001", "Inverter", "Growatt 5W", 65000)
			tt.mutate(&rec)
			_, err := st.RecordPrice(ctx, rec)
			require.Error(t, err)
			assert.True(t, IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestSQLite_DistinctVendors(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertVendor(ctx, testVendor("V001", "+923001111111")))
	require.NoError(t, st.UpsertVendor(ctx, testVendor("V002", "+923002222222")))

	_, err := st.RecordPrice(ctx, testRecord("V001", "Inverter", "Growatt 5W", 65000))
	require.NoError(t, err)
	_, err = st.RecordPrice(ctx, testRecord("V001", "Battery", "Pylontech", 180000))
	require.NoError(t, err)
	_, err = st.RecordPrice(ctx, testRecord("V002", "Inverter", "Growatt 5W", 64000))
	require.NoError(t, err)

	n, err := st.DistinctVendors(ctx, testDay)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// --- Minimum quotes ---

func TestSQLite_MinimumQuotes_PicksCheapest(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertVendor(ctx, testVendor("V001", "+923001111111")))
	require.NoError(t, st.UpsertVendor(ctx, testVendor("V002", "+923002222222")))

	_, err := st.RecordPrice(ctx, testRecord("V001", "Inverter", "Growatt 5W", 67000))
	require.NoError(t, err)
	_, err = st.RecordPrice(ctx, testRecord("V002", "Inverter", "Growatt 5W", 65000))
	require.NoError(t, err)

	quotes, err := st.MinimumQuotes(ctx, testDay)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "V002", quotes[0].VendorID)
	assert.Equal(t, "65000", quotes[0].MinPrice.String())
	assert.Equal(t, "Vendor V002", quotes[0].VendorName)
	assert.Equal(t, "+923002222222", quotes[0].ContactHandle)
	assert.Equal(t, "per piece", quotes[0].Unit)
}

func TestSQLite_MinimumQuotes_TieBreaksByVendorID(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// Insert in reverse id order so insertion order cannot mask the
	// vendor id tie break.
	require.NoError(t, st.UpsertVendor(ctx, testVendor("V002", "+923002222222")))
	require.NoError(t, st.UpsertVendor(ctx, testVendor("V001", "+923001111111")))

	_, err := st.RecordPrice(ctx, testRecord("V002", "Inverter", "Growatt 5W", 65000))
	require.NoError(t, err)
	_, err = st.RecordPrice(ctx, testRecord("V001", "Inverter", "Growatt 5W", 65000))
	require.NoError(t, err)

	quotes, err := st.MinimumQuotes(ctx, testDay)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "V001", quotes[0].VendorID)
}

func TestSQLite_MinimumQuotes_GroupsByCompany(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertVendor(ctx, testVendor("V001", "+923001111111")))

	recA := testRecord("V001", "Solar Panel", "550W", 48000)
	recA.Company = "Longi"
	recB := testRecord("V001", "Solar Panel", "550W", 45000)
	recB.Company = "Jinko"
	_, err := st.RecordPrice(ctx, recA)
	require.NoError(t, err)
	_, err = st.RecordPrice(ctx, recB)
	require.NoError(t, err)

	quotes, err := st.MinimumQuotes(ctx, testDay)
	require.NoError(t, err)
	require.Len(t, quotes, 2, "same model under different companies stays separate")
}

func TestSQLite_MinimumQuotes_FiltersByDate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertVendor(ctx, testVendor("V001", "+923001111111")))

	old := testRecord("V001", "Inverter", "Growatt 5W", 60000)
	old.Date = testDay.AddDate(0, 0, -1)
	_, err := st.RecordPrice(ctx, old)
	require.NoError(t, err)
	_, err = st.RecordPrice(ctx, testRecord("V001", "Inverter", "Growatt 5W", 65000))
	require.NoError(t, err)

	quotes, err := st.MinimumQuotes(ctx, testDay)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "65000", quotes[0].MinPrice.String(), "yesterday's cheaper quote must not leak in")
}

func TestSQLite_MinimumQuotes_OrderedByCategoryThenPrice(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertVendor(ctx, testVendor("V001", "+923001111111")))

	for _, rec := range []model.PriceRecord{
		testRecord("V001", "Solar Panel", "550W", 48000),
		testRecord("V001", "Battery", "Pylontech", 180000),
		testRecord("V001", "Battery", "Tubular", 45000),
		testRecord("V001", "Inverter", "Growatt 5W", 65000),
	} {
		_, err := st.RecordPrice(ctx, rec)
		require.NoError(t, err)
	}

	quotes, err := st.MinimumQuotes(ctx, testDay)
	require.NoError(t, err)
	require.Len(t, quotes, 4)
	assert.Equal(t, "Battery", quotes[0].Category)
	assert.Equal(t, "45000", quotes[0].MinPrice.String())
	assert.Equal(t, "Battery", quotes[1].Category)
	assert.Equal(t, "180000", quotes[1].MinPrice.String())
	assert.Equal(t, "Inverter", quotes[2].Category)
	assert.Equal(t, "Solar Panel", quotes[3].Category)
}

func TestSQLite_MinimumQuotes_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)

	quotes, err := st.MinimumQuotes(context.Background(), testDay)
	require.NoError(t, err)
	assert.Empty(t, quotes)
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// newTestSQLiteStore already migrated once.
	require.NoError(t, st.Migrate(ctx))
	require.NoError(t, st.Migrate(ctx))

	require.NoError(t, st.UpsertVendor(ctx, testVendor("V001", "+923001111111")))
	vendors, err := st.ListVendors(ctx, VendorFilter{})
	require.NoError(t, err)
	assert.Len(t, vendors, 1)
}
