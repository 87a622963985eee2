package parser

// Rules is a read-only snapshot of the extraction tables, shaped for
// serialization so operators can inspect what the parser matches on.
type Rules struct {
	PricePatterns  []string       `yaml:"price_patterns" json:"price_patterns"`
	Categories     []CategoryRule `yaml:"categories" json:"categories"`
	WattagePattern string         `yaml:"wattage_pattern" json:"wattage_pattern"`
	DefaultUnit    string         `yaml:"default_unit" json:"default_unit"`
}

// CategoryRule pairs a product category with its trigger keywords and
// the brand names recognized for it.
type CategoryRule struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
	Brands   []string `yaml:"brands,omitempty" json:"brands,omitempty"`
}

// Rules returns the tables the parser matches against, in evaluation
// order.
func (p *Parser) Rules() Rules {
	r := Rules{
		PricePatterns:  make([]string, 0, len(pricePatterns)),
		Categories:     make([]CategoryRule, 0, len(categoryRules)),
		WattagePattern: wattagePattern.String(),
		DefaultUnit:    DefaultUnit,
	}
	for _, re := range pricePatterns {
		r.PricePatterns = append(r.PricePatterns, re.String())
	}
	for _, rule := range categoryRules {
		r.Categories = append(r.Categories, CategoryRule{
			Name:     rule.name,
			Keywords: append([]string(nil), rule.keywords...),
			Brands:   append([]string(nil), brandRules[rule.name]...),
		})
	}
	return r
}
