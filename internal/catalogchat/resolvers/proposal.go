package resolvers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalog"
	"github.com/bdobrica/catalogchat/internal/catalogchat/queries"
)

// UpdateProposal builds and validates an update_product proposal for p.
func UpdateProposal(p catalog.Product, field string, value any, lastReferenced bool) (action.Proposal, error) {
	prop := action.Proposal{
		Kind:         action.KindUpdateProduct,
		HumanSummary: fmt.Sprintf("Cambiar %s de #%d %s%s a %s", FieldLabel(field), p.ID, p.Name, currentValue(p, field), FormatValue(field, value)),
		Target:       action.Target{ProductID: p.ID, SKU: p.SKU, LastReferenced: lastReferenced},
		Changes:      map[string]any{field: value},
	}
	if err := prop.Validate(); err != nil {
		return action.Proposal{}, err
	}
	return prop, nil
}

// ChangesProposal builds an update_product proposal with several changes.
// A single change reads the same as UpdateProposal.
func ChangesProposal(p catalog.Product, changes map[string]any, lastReferenced bool) (action.Proposal, error) {
	if len(changes) == 1 {
		for field, value := range changes {
			return UpdateProposal(p, field, value, lastReferenced)
		}
	}
	fields := make([]string, 0, len(changes))
	for field := range changes {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	copied := make(map[string]any, len(changes))
	for i, field := range fields {
		parts[i] = FieldLabel(field) + " a " + FormatValue(field, changes[field])
		copied[field] = changes[field]
	}
	prop := action.Proposal{
		Kind:         action.KindUpdateProduct,
		HumanSummary: fmt.Sprintf("Cambiar en #%d %s: %s", p.ID, p.Name, strings.Join(parts, "; ")),
		Target:       action.Target{ProductID: p.ID, SKU: p.SKU, LastReferenced: lastReferenced},
		Changes:      copied,
	}
	if err := prop.Validate(); err != nil {
		return action.Proposal{}, err
	}
	return prop, nil
}

func currentValue(p catalog.Product, field string) string {
	switch field {
	case action.FieldPrice:
		if p.Price != nil {
			return " (actual " + queries.FormatPrice(*p.Price) + ")"
		}
		return " (sin precio)"
	case action.FieldStockQuantity:
		if p.StockQuantity != nil {
			return fmt.Sprintf(" (actual %d)", *p.StockQuantity)
		}
	}
	return ""
}

// DeleteProposal builds a delete_product proposal for p. Deletion moves
// the product to the trash.
func DeleteProposal(p catalog.Product, lastReferenced bool) action.Proposal {
	return action.Proposal{
		Kind:         action.KindDeleteProduct,
		HumanSummary: fmt.Sprintf("Enviar a la papelera #%d %s", p.ID, p.Name),
		Target:       action.Target{ProductID: p.ID, SKU: p.SKU, LastReferenced: lastReferenced},
	}
}

// CreateProposal builds a create_product proposal.
func CreateProposal(d action.ProductData) (action.Proposal, error) {
	parts := []string{fmt.Sprintf("Crear producto «%s»", d.Name)}
	parts = append(parts, describeData(d)...)
	prop := action.Proposal{
		Kind:         action.KindCreateProduct,
		HumanSummary: strings.Join(parts, ", "),
		ProductData:  &d,
	}
	return prop, prop.Validate()
}

// CreateVariableProposal builds a create_product_variable proposal.
func CreateVariableProposal(d action.ProductData) (action.Proposal, error) {
	parts := []string{fmt.Sprintf("Crear producto variable «%s»", d.Name)}
	names := make([]string, 0, len(d.Attributes))
	for name := range d.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(d.Attributes[name], "/"))
	}
	if d.Pricing != nil {
		if d.Pricing.BasePrice != nil {
			parts = append(parts, "precio base "+queries.FormatPrice(*d.Pricing.BasePrice))
		}
		if n := len(d.Pricing.ByAttribute) + len(d.Pricing.ByVariation); n > 0 {
			parts = append(parts, fmt.Sprintf("%d reglas de precio", countRules(*d.Pricing)))
		}
	}
	prop := action.Proposal{
		Kind:         action.KindCreateVariable,
		HumanSummary: strings.Join(parts, ", "),
		ProductData:  &d,
	}
	return prop, prop.Validate()
}

func countRules(p action.Pricing) int {
	n := len(p.ByVariation)
	for _, values := range p.ByAttribute {
		n += len(values)
	}
	return n
}

func describeData(d action.ProductData) []string {
	var parts []string
	if d.Price != nil {
		parts = append(parts, "precio "+queries.FormatPrice(*d.Price))
	}
	if d.StockQuantity != nil {
		parts = append(parts, fmt.Sprintf("stock %d", *d.StockQuantity))
	}
	if d.SKU != "" {
		parts = append(parts, "SKU "+d.SKU)
	}
	if d.Category != "" {
		parts = append(parts, "categoría "+d.Category)
	}
	return parts
}
