package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/electro-tech/pricewatch/internal/model"
)

var reportDay = time.Date(2026, time.August, 21, 17, 30, 0, 0, time.UTC)

// reportQuotes come in store order: grouped by category, cheapest
// first within each group.
func reportQuotes() []model.AggregatedQuote {
	return []model.AggregatedQuote{
		{
			Category:      "Inverter",
			Model:         "Growatt",
			MinPrice:      decimal.NewFromInt(250000),
			Unit:          "per piece",
			VendorID:      "V001",
			VendorName:    "Solar Traders",
			ContactHandle: "+923001111111",
			VendorType:    "Importer",
		},
		{
			Category:      "Inverter",
			Model:         "Generic",
			MinPrice:      decimal.NewFromInt(255000),
			Unit:          "per piece",
			VendorID:      "V003",
			VendorName:    "Budget Power",
			ContactHandle: "+923003333333",
			VendorType:    "Trader",
		},
		{
			Category:      "Solar Panel",
			Model:         "550W",
			Company:       "Longi",
			MinPrice:      decimal.NewFromInt(45000),
			Unit:          "per piece",
			VendorID:      "V002",
			VendorName:    "Pak Solar House",
			ContactHandle: "+923002222222",
			VendorType:    "Importer",
		},
	}
}

func TestRenderSummary(t *testing.T) {
	out := RenderSummary(reportDay, reportQuotes())

	assert.True(t, strings.HasPrefix(out, "🔆 Electro Tech – Daily Market Report\n📅 21 Aug 2026\n\n"))

	// One block per category, cheapest offer only.
	assert.Contains(t, out, "Inverter:\nRs 250,000 – Solar Traders\n(Growatt)\n")
	assert.Contains(t, out, "Solar Panel:\nRs 45,000 – Pak Solar House\n(Longi 550W)\n")
	assert.NotContains(t, out, "Budget Power")
	assert.NotContains(t, out, "255,000")

	assert.True(t, strings.HasSuffix(out, "📎 Detailed report attached\n"))
}

func TestRenderSummary_Empty(t *testing.T) {
	out := RenderSummary(reportDay, nil)

	want := "🔆 Electro Tech – Daily Market Report\n" +
		"📅 21 Aug 2026\n\n" +
		"❌ No price data received today.\n"
	assert.Equal(t, want, out)
}

func TestRenderDetailed(t *testing.T) {
	out := RenderDetailed(reportDay, reportQuotes())
	banner := strings.Repeat("=", 60)

	assert.True(t, strings.HasPrefix(out, banner+"\nELECTRO TECH - DAILY PRICE INTELLIGENCE REPORT\n"+banner+"\n"))
	assert.Contains(t, out, "Date: 21 August 2026\n")
	assert.Contains(t, out, "Time: 17:30\n")

	assert.Contains(t, out, "CATEGORY: INVERTER\n")
	assert.Contains(t, out, "CATEGORY: SOLAR PANEL\n")

	// Every quote appears, numbered within its category.
	assert.Contains(t, out, "1. Growatt\n   Price: Rs 250,000.00 per piece\n   Vendor: Solar Traders (V001)\n   Type: Importer\n   Contact: +923001111111\n")
	assert.Contains(t, out, "2. Generic\n   Price: Rs 255,000.00 per piece\n")
	assert.Contains(t, out, "1. Longi 550W\n   Price: Rs 45,000.00 per piece\n")
	assert.Contains(t, out, strings.Repeat("-", 50))

	// Categories keep their input order.
	require.Less(t, strings.Index(out, "CATEGORY: INVERTER"), strings.Index(out, "CATEGORY: SOLAR PANEL"))

	assert.True(t, strings.HasSuffix(out, banner+"\nEND OF REPORT\nGenerated by: Electro Tech Price Intelligence System\n"+banner+"\n"))
}

func TestRenderDetailed_Empty(t *testing.T) {
	out := RenderDetailed(reportDay, nil)

	assert.Contains(t, out, "NO PRICE DATA RECEIVED TODAY\n")
	assert.NotContains(t, out, "CATEGORY:")
	assert.NotContains(t, out, "END OF REPORT")
}

func TestGroupByCategory(t *testing.T) {
	groups := groupByCategory(reportQuotes())

	require.Len(t, groups, 2)
	assert.Equal(t, "Inverter", groups[0].category)
	assert.Len(t, groups[0].quotes, 2)
	assert.Equal(t, "Solar Panel", groups[1].category)
	assert.Len(t, groups[1].quotes, 1)
}
