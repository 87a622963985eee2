package pipeline

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/electro-tech/pricewatch/internal/model"
)

const bannerWidth = 60

// Rupee amounts render with thousands separators ("Rs 65,000").
var pricePrinter = message.NewPrinter(language.English)

// RenderSummary builds the short messaging-ready report: one block per
// category showing the day's single lowest offer. Quotes are expected
// in store order (category, then ascending price), so the first quote
// of each category is its cheapest.
func RenderSummary(date time.Time, quotes []model.AggregatedQuote) string {
	var b strings.Builder

	b.WriteString("🔆 Electro Tech – Daily Market Report\n")
	fmt.Fprintf(&b, "📅 %s\n\n", date.Format("02 Jan 2006"))

	if len(quotes) == 0 {
		b.WriteString("❌ No price data received today.\n")
		return b.String()
	}

	seen := make(map[string]bool)
	for _, q := range quotes {
		if seen[q.Category] {
			continue
		}
		seen[q.Category] = true

		fmt.Fprintf(&b, "%s:\n", q.Category)
		pricePrinter.Fprintf(&b, "Rs %d – %s\n", q.MinPrice.IntPart(), q.VendorName)
		fmt.Fprintf(&b, "(%s)\n\n", q.DisplayModel())
	}

	b.WriteString("📎 Detailed report attached\n")
	return b.String()
}

// RenderDetailed builds the verbose itemized report: every aggregated
// quote with exact price and vendor contact, grouped by category in
// first-seen order.
func RenderDetailed(now time.Time, quotes []model.AggregatedQuote) string {
	banner := strings.Repeat("=", bannerWidth)
	rule := strings.Repeat("-", 50)

	var b strings.Builder
	b.WriteString(banner + "\n")
	b.WriteString("ELECTRO TECH - DAILY PRICE INTELLIGENCE REPORT\n")
	b.WriteString(banner + "\n")
	fmt.Fprintf(&b, "Date: %s\n", now.Format("02 January 2006"))
	fmt.Fprintf(&b, "Time: %s\n", now.Format("15:04"))
	b.WriteString(banner + "\n\n")

	if len(quotes) == 0 {
		b.WriteString("NO PRICE DATA RECEIVED TODAY\n")
		return b.String()
	}

	for _, group := range groupByCategory(quotes) {
		fmt.Fprintf(&b, "\n%s\n", banner)
		fmt.Fprintf(&b, "CATEGORY: %s\n", strings.ToUpper(group.category))
		fmt.Fprintf(&b, "%s\n\n", banner)

		for i, q := range group.quotes {
			fmt.Fprintf(&b, "%d. %s\n", i+1, q.DisplayModel())
			pricePrinter.Fprintf(&b, "   Price: Rs %.2f %s\n", q.MinPrice.InexactFloat64(), q.Unit)
			fmt.Fprintf(&b, "   Vendor: %s (%s)\n", q.VendorName, q.VendorID)
			fmt.Fprintf(&b, "   Type: %s\n", q.VendorType)
			fmt.Fprintf(&b, "   Contact: %s\n", q.ContactHandle)
			fmt.Fprintf(&b, "   %s\n\n", rule)
		}
	}

	b.WriteString("\n" + banner + "\n")
	b.WriteString("END OF REPORT\n")
	b.WriteString("Generated by: Electro Tech Price Intelligence System\n")
	b.WriteString(banner + "\n")
	return b.String()
}

type categoryGroup struct {
	category string
	quotes   []model.AggregatedQuote
}

// groupByCategory splits quotes into per-category groups preserving the
// input order of both categories and quotes.
func groupByCategory(quotes []model.AggregatedQuote) []categoryGroup {
	var groups []categoryGroup
	index := make(map[string]int)
	for _, q := range quotes {
		i, ok := index[q.Category]
		if !ok {
			i = len(groups)
			index[q.Category] = i
			groups = append(groups, categoryGroup{category: q.Category})
		}
		groups[i].quotes = append(groups[i].quotes, q)
	}
	return groups
}
