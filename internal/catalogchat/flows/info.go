package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bdobrica/catalogchat/common/textnorm"
	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalog"
	"github.com/bdobrica/catalogchat/internal/catalogchat/pending"
	"github.com/bdobrica/catalogchat/internal/catalogchat/queries"
	"github.com/bdobrica/catalogchat/internal/catalogchat/resolvers"
	"github.com/bdobrica/catalogchat/internal/catalogchat/response"
	"github.com/bdobrica/catalogchat/internal/catalogchat/router"
)

// HelpMessage lists what the assistant understands.
const HelpMessage = "Puedo ayudarte con tu catálogo:\n" +
	"• Consultas: «productos sin precio», «lista de agotados», «stock bajo full», «salud del catálogo».\n" +
	"• Datos de un producto: «precio del #12», «stock del sku CAM-1».\n" +
	"• Cambios: «cambia el precio del #12 a 25», «pon el stock del último producto en 10».\n" +
	"• Altas y bajas: «crea un producto llamado Gorra con precio 15», «elimina el #12».\n" +
	"Todo cambio queda pendiente hasta que pulses «Confirmar»."

var (
	helpPhrases    = []string{"ayuda", "help", "que puedes hacer", "que sabes hacer", "como funciona", "comandos", "opciones"}
	countPhrases   = []string{"cuantos productos", "total de productos", "numero de productos", "cantidad de productos", "how many products"}
	pendingPhrases = []string{"que esta pendiente", "que hay pendiente", "accion pendiente", "algo pendiente", "que falta confirmar"}
	lastPhrases    = []string{"que hiciste", "ultimo cambio", "ultima accion", "que cambiaste"}
	showPhrases    = []string{"muestra", "mostrar", "ver", "info", "informacion", "detalle", "datos", "ficha"}
)

// Queries answers catalog-health questions. A message that asks to change
// a specific product is left to the update stages even when it mentions a
// health category ("marca el #12 como sin stock").
func (f *Flows) Queries(ctx context.Context, t *router.Turn) (*response.RouteResponse, error) {
	d, ok := f.classifier.Match(t.Normalized)
	if !ok {
		return nil, nil
	}
	if mutation(t.Normalized) && !resolvers.ExtractTarget(t.Raw, t.Normalized).Empty() {
		return nil, nil
	}
	return d.Handle(ctx, queries.NewQuery(t.Raw, t.Normalized))
}

func isHelp(normalized string) bool {
	return textnorm.IsOneOf(normalized, helpPhrases...) || textnorm.ContainsAny(normalized, "que puedes hacer", "como te uso")
}

func mutation(normalized string) bool {
	return resolvers.HasUpdateVerb(normalized) || resolvers.HasCreateVerb(normalized) || resolvers.HasDeleteVerb(normalized)
}

// Info answers the other read-only questions: help, product counts, the
// pending proposal, the last executed change and the data of one product
// named explicitly. Product answers update the last referenced product.
func (f *Flows) Info(ctx context.Context, t *router.Turn) (*response.RouteResponse, error) {
	n := t.Normalized
	switch {
	case isHelp(n):
		return response.Consult(HelpMessage, route("info.help"))
	case textnorm.ContainsAny(n, countPhrases...) && !mutation(n):
		total, err := f.repo.ActiveCount(ctx)
		if err != nil {
			return nil, fmt.Errorf("flows: info: count: %w", err)
		}
		return response.Consult(fmt.Sprintf("Hay %d productos activos en el catálogo.", total), route("info.count"))
	case textnorm.ContainsAny(n, pendingPhrases...):
		if t.State.Pending == nil {
			return response.Consult(pending.NothingPendingMessage, route("info.pending"))
		}
		return response.Consult(pending.AlreadyPendingMessage(*t.State.Pending), route("info.pending"))
	case textnorm.ContainsAny(n, lastPhrases...) && !mutation(n):
		if ex := t.State.LastExecuted; ex != nil {
			return response.Consult(fmt.Sprintf("El último cambio aplicado fue: %s.", ex.Summary), route("info.last_executed"))
		}
		return response.Consult("Todavía no apliqué ningún cambio en esta conversación.", route("info.last_executed"))
	}

	if mutation(n) {
		return nil, nil
	}
	ref, ok := resolvers.ExtractExplicitTarget(t.Raw, n)
	if !ok {
		return nil, nil
	}
	field, hasField := resolvers.ExtractField(n)
	if hasField {
		if _, hasValue := resolvers.ExtractValue(t.Raw, n, field, ref); hasValue && !strings.Contains(n, "?") {
			// "precio del #12 a 25" is an update without a verb.
			return nil, nil
		}
	} else if !textnorm.ContainsAny(n, showPhrases...) && len(textnorm.Tokens(n)) > 3 {
		return nil, nil
	}

	res, err := resolvers.Resolve(ctx, f.repo, ref, t.State, false)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return notFound(ref.String(), "info.product")
	case errors.Is(err, resolvers.ErrAmbiguous):
		return response.Consult(fmt.Sprintf("Hay varios productos que coinciden con %s: %s. Indica el #id.",
			ref.String(), strings.Join(choiceLabels(res.Candidates), ", ")), route("info.product"))
	case err != nil:
		return nil, fmt.Errorf("flows: info: %w", err)
	}

	p := res.Product
	f.remember(ctx, t, p.Ref())
	if !hasField {
		return response.Consult(productCard(p), route("info.product"))
	}
	return response.Consult(fieldAnswer(p, field), route("info."+field))
}

// fieldAnswer states the current value of one field.
func fieldAnswer(p catalog.Product, field string) string {
	who := choiceLabel(p.ID, p.Name)
	switch field {
	case action.FieldPrice:
		if p.Price == nil {
			return fmt.Sprintf("%s no tiene precio.", who)
		}
		return fmt.Sprintf("El precio de %s es %s.", who, queries.FormatPrice(*p.Price))
	case action.FieldSalePrice:
		if p.SalePrice == nil {
			return fmt.Sprintf("%s no tiene precio de oferta.", who)
		}
		return fmt.Sprintf("El precio de oferta de %s es %s.", who, queries.FormatPrice(*p.SalePrice))
	case action.FieldStockQuantity, action.FieldStockStatus:
		return stockSentence(p)
	}
	v := fieldText(p, field)
	if v == "" {
		return fmt.Sprintf("%s no tiene %s.", who, resolvers.FieldLabel(field))
	}
	return fmt.Sprintf("%s de %s: %s.", capitalize(resolvers.FieldLabel(field)), who, v)
}

func stockSentence(p catalog.Product) string {
	who := choiceLabel(p.ID, p.Name)
	switch {
	case p.StockStatus == catalog.StockOutOfStock:
		return fmt.Sprintf("%s está agotado.", who)
	case p.StockStatus == catalog.StockBackorder:
		return fmt.Sprintf("%s está bajo pedido (backorder).", who)
	case p.ManageStock && p.StockQuantity != nil:
		return fmt.Sprintf("%s tiene %d unidades en stock.", who, *p.StockQuantity)
	}
	return fmt.Sprintf("%s está disponible (sin control de inventario).", who)
}

func fieldText(p catalog.Product, field string) string {
	switch field {
	case action.FieldName:
		return p.Name
	case action.FieldDescription:
		return p.Description
	case action.FieldCategory:
		return p.Category
	case action.FieldSKU:
		return p.SKU
	case action.FieldImageURL:
		return p.ImageURL
	case action.FieldStatus:
		return p.Status
	}
	return ""
}

// productCard summarises one product.
func productCard(p catalog.Product) string {
	lines := []string{choiceLabel(p.ID, p.Name)}
	if p.SKU != "" {
		lines = append(lines, "SKU: "+p.SKU)
	}
	if p.Price != nil {
		lines = append(lines, "Precio: "+queries.FormatPrice(*p.Price))
	} else {
		lines = append(lines, "Precio: sin precio")
	}
	lines = append(lines, "Stock: "+strings.TrimSuffix(strings.TrimPrefix(stockSentence(p), choiceLabel(p.ID, p.Name)+" "), "."))
	if p.Category != "" {
		lines = append(lines, "Categoría: "+p.Category)
	}
	if p.Status != "" && p.Status != catalog.StatusPublish {
		lines = append(lines, "Estado: "+p.Status)
	}
	return strings.Join(lines, "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}
