// Package parser extracts structured price observations from free-form
// vendor messages. Extraction is keyword and pattern driven; messages
// that match no product category or carry no parsable price yield no
// candidates rather than errors.
package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/electro-tech/pricewatch/internal/model"
)

// DefaultUnit is attached to every extracted candidate. Vendors quote
// per-unit prices; pack quantities are out of scope.
const DefaultUnit = "per piece"

// Price notations seen in the Pakistani solar market. Each pattern
// captures the numeral in group 1. Matching happens on lowered text.
var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:rs\.?|rupees?|pkr)\s*(\d+(?:,\d{3})*(?:\.\d{2})?)`), // Rs 65,000
	regexp.MustCompile(`(\d+(?:,\d{3})*(?:\.\d{2})?)\s*(?:rs\.?|rupees?|pkr)`), // 65,000 Rs
	regexp.MustCompile(`price[:\s]+(\d+(?:,\d{3})*)`),                          // Price: 65000
	regexp.MustCompile(`(\d+(?:,\d{3})*)\s*per`),                               // 65,000 per piece
}

var wattagePattern = regexp.MustCompile(`(\d+)\s*(?:kw|w|watt)`)

type categoryRule struct {
	name     string
	keywords []string
}

// Category detection is first-match-wins in this order. "solar" and
// "panel" alone count as panels, so inverter keywords are checked first
// to keep "solar inverter" out of the panel bucket.
var categoryRules = []categoryRule{
	{"Inverter", []string{"inverter", "ups", "power backup"}},
	{"Solar Panel", []string{"solar panel", "solar", "panel", "photovoltaic", "pv"}},
	{"Battery", []string{"battery", "batteries", "tubular", "lithium", "gel"}},
}

// Brand keywords per category, checked in order before falling back to
// wattage detection.
var brandRules = map[string][]string{
	"Inverter":    {"growatt", "goodwe", "fronius", "sma", "huawei", "solis"},
	"Solar Panel": {"longi", "jinko", "ja solar", "risen", "trina"},
	"Battery":     {"tesla", "pylontech", "byd", "tubular", "lithium"},
}

// Parser turns raw message text into price candidates. The zero value
// is ready to use.
type Parser struct{}

func New() *Parser {
	return &Parser{}
}

// Extract returns one candidate per distinct price found in text, or
// nil when the text names no known product category or contains no
// positive price. It never fails: unparsable numerals are dropped and
// a numeral matched by several patterns counts once.
func (p *Parser) Extract(text string) []model.PriceCandidate {
	lowered := strings.ToLower(text)

	category, ok := detectCategory(lowered)
	if !ok {
		return nil
	}

	prices := extractPrices(lowered)
	if len(prices) == 0 {
		return nil
	}

	productModel := p.detectModel(lowered, category)

	candidates := make([]model.PriceCandidate, 0, len(prices))
	for _, price := range prices {
		candidates = append(candidates, model.PriceCandidate{
			Category: category,
			Model:    productModel,
			Price:    price,
			Unit:     DefaultUnit,
		})
	}
	return candidates
}

// DetectCategory reports the product category named in text, if any.
func (p *Parser) DetectCategory(text string) (string, bool) {
	return detectCategory(strings.ToLower(text))
}

// ExtractModel reports the product model for text already known to be
// about category: a brand name when one is mentioned, else the wattage,
// else "Generic".
func (p *Parser) ExtractModel(text, category string) string {
	return p.detectModel(strings.ToLower(text), category)
}

func detectCategory(lowered string) (string, bool) {
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lowered, kw) {
				return rule.name, true
			}
		}
	}
	return "", false
}

func (p *Parser) detectModel(lowered, category string) string {
	for _, brand := range brandRules[category] {
		if strings.Contains(lowered, brand) {
			// Caser is stateful, so build one per call.
			return cases.Title(language.English).String(brand)
		}
	}
	if m := wattagePattern.FindStringSubmatch(lowered); m != nil {
		return m[1] + "W"
	}
	return "Generic"
}

func extractPrices(lowered string) []decimal.Decimal {
	var prices []decimal.Decimal
	for _, re := range pricePatterns {
		for _, m := range re.FindAllStringSubmatch(lowered, -1) {
			price, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
			if err != nil || !price.IsPositive() {
				continue
			}
			if seenPrice(prices, price) {
				continue
			}
			prices = append(prices, price)
		}
	}
	return prices
}

func seenPrice(prices []decimal.Decimal, p decimal.Decimal) bool {
	for _, q := range prices {
		if q.Equal(p) {
			return true
		}
	}
	return false
}
