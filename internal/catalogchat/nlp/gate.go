package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalogctx"
	"github.com/bdobrica/catalogchat/internal/catalogchat/observability"
)

// MinConfidence is the lowest model confidence a proposal may carry.
const MinConfidence = 0.5

// Intent is a schema-valid model proposal.
type Intent struct {
	Proposal   action.Proposal
	Confidence float64
	// Summary is the model's own description. Callers rebuild the user
	// facing summary from catalog data rather than showing this verbatim.
	Summary string
}

type modelTarget struct {
	ProductID      int64  `json:"product_id"`
	SKU            string `json:"sku"`
	LastReferenced bool   `json:"last_referenced"`
}

type modelOutput struct {
	Intent      string              `json:"intent"`
	Kind        action.Kind         `json:"kind"`
	Confidence  float64             `json:"confidence"`
	Summary     string              `json:"summary"`
	Target      *modelTarget        `json:"target"`
	Changes     map[string]any      `json:"changes"`
	ProductData *action.ProductData `json:"product_data"`
}

// Gate asks the model for an intent and accepts only fully valid results.
type Gate struct {
	client *Client
	schema *IntentSchema
	sink   observability.Sink
}

// NewGate returns a Gate. A nil schema compiles the embedded one.
func NewGate(client *Client, schema *IntentSchema, sink observability.Sink) *Gate {
	if schema == nil {
		schema = MustCompileIntentSchema()
	}
	return &Gate{client: client, schema: schema, sink: observability.Safe(sink)}
}

// Parse sends message and lite to the model. Every failure (transport,
// parse, schema, confidence, unresolvable target) returns an error and no
// partial result.
func (g *Gate) Parse(ctx context.Context, conversationID, message string, lite catalogctx.LiteContext) (*Intent, error) {
	resp, err := g.client.complete(ctx, conversationID, IntentMessages(message, lite), true)
	if err != nil {
		return nil, err
	}
	intent, err := g.interpret(resp.Content, lite)
	if err != nil {
		reason := "rejected"
		switch {
		case errors.Is(err, ErrMalformedOutput):
			reason = "malformed"
		case errors.Is(err, ErrLowConfidence):
			reason = "low_confidence"
		case errors.Is(err, ErrNoIntent):
			reason = "no_intent"
		}
		_ = g.sink.Emit(ctx, observability.EventNLPRejected, map[string]any{
			"reason": reason,
			"error":  truncate(err.Error()),
		})
		return nil, err
	}
	return intent, nil
}

func (g *Gate) interpret(content string, lite catalogctx.LiteContext) (*Intent, error) {
	obj, err := g.schema.Check(content)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	var out modelOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	if out.Intent != "action" {
		return nil, ErrNoIntent
	}
	if out.Confidence < MinConfidence {
		return nil, fmt.Errorf("%w: %.2f", ErrLowConfidence, out.Confidence)
	}

	p := action.Proposal{
		Kind:         out.Kind,
		HumanSummary: strings.TrimSpace(out.Summary),
		Changes:      out.Changes,
		ProductData:  out.ProductData,
	}
	if out.Target != nil {
		switch {
		case out.Target.ProductID > 0:
			p.Target.ProductID = out.Target.ProductID
		case out.Target.SKU != "":
			p.Target.SKU = out.Target.SKU
		case out.Target.LastReferenced:
			if lite.LastProduct == nil {
				return nil, fmt.Errorf("%w: last_referenced without a last product", ErrSchemaRejected)
			}
			p.Target = action.Target{ProductID: lite.LastProduct.ID, SKU: lite.LastProduct.SKU, LastReferenced: true}
		}
	}
	if n, ok := action.Number(p.Changes[action.FieldStockQuantity]); ok {
		p.Changes[action.FieldStockQuantity] = int(n)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaRejected, err)
	}
	return &Intent{Proposal: p, Confidence: out.Confidence, Summary: p.HumanSummary}, nil
}
