package action

import (
	"sort"
	"strings"
)

// Pricing is the price rule set of a variable product.
//
// ByVariation keys are VariationKey strings ("color=rojo|talla=m").
// ByAttribute maps attribute name to attribute value to price.
type Pricing struct {
	BasePrice   *float64                      `json:"base_price,omitempty"`
	ByAttribute map[string]map[string]float64 `json:"by_attribute,omitempty"`
	ByVariation map[string]float64            `json:"by_variation,omitempty"`
}

// Empty reports whether no rule is defined.
func (p Pricing) Empty() bool {
	return p.BasePrice == nil && len(p.ByAttribute) == 0 && len(p.ByVariation) == 0
}

// PriceFor resolves the price of one variation. An exact by_variation entry
// wins over by_attribute, which wins over base_price. When several
// attributes carry a price, the alphabetically first attribute decides.
func (p Pricing) PriceFor(attrs map[string]string) (float64, bool) {
	key := VariationKey(attrs)
	for k, price := range p.ByVariation {
		if canonKey(k) == key {
			return price, true
		}
	}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if price, ok := lookup2(p.ByAttribute, name, attrs[name]); ok {
			return price, true
		}
	}

	if p.BasePrice != nil {
		return *p.BasePrice, true
	}
	return 0, false
}

// VariationKey renders attrs as sorted "name=value" pairs joined by "|".
func VariationKey(attrs map[string]string) string {
	pairs := make([]string, 0, len(attrs))
	for name, value := range attrs {
		pairs = append(pairs, canon(name)+"="+canon(value))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "|")
}

// Combinations expands an attribute map into every variation, in a stable
// order.
func Combinations(attributes map[string][]string) []map[string]string {
	names := make([]string, 0, len(attributes))
	for name := range attributes {
		if len(attributes[name]) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil
	}

	out := []map[string]string{{}}
	for _, name := range names {
		var next []map[string]string
		for _, partial := range out {
			for _, value := range attributes[name] {
				combo := make(map[string]string, len(partial)+1)
				for k, v := range partial {
					combo[k] = v
				}
				combo[name] = value
				next = append(next, combo)
			}
		}
		out = next
	}
	return out
}

func canon(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func lookup2(m map[string]map[string]float64, name, value string) (float64, bool) {
	for n, values := range m {
		if canon(n) != canon(name) {
			continue
		}
		for v, price := range values {
			if canon(v) == canon(value) {
				return price, true
			}
		}
	}
	return 0, false
}

// canonKey re-renders a stored variation key so that spacing and case in
// hand-written keys do not matter.
func canonKey(k string) string {
	attrs := make(map[string]string)
	for _, pair := range strings.Split(k, "|") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		attrs[name] = value
	}
	return VariationKey(attrs)
}
