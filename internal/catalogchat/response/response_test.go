package response_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
	"github.com/bdobrica/catalogchat/internal/catalogchat/response"
)

func validProposal() action.Proposal {
	return action.Proposal{
		Kind:         action.KindUpdateProduct,
		HumanSummary: "Cambiar precio de #12 a 120",
		Target:       action.Target{ProductID: 12},
		Changes:      map[string]any{"price": 120.0},
	}
}

func TestConsult(t *testing.T) {
	r, err := response.Consult("Hay 12 productos sin precio.", response.WithMeta(response.MetaRoute, "queries.no_price"))
	if err != nil {
		t.Fatalf("Consult: %v", err)
	}
	if !r.OK || r.Mode != response.ModeConsult {
		t.Errorf("unexpected header: %+v", r)
	}
	if r.Actions == nil || len(r.Actions) != 0 {
		t.Errorf("consult must carry an empty, non-nil action list: %#v", r.Actions)
	}
	if r.Route() != "queries.no_price" {
		t.Errorf("route: %q", r.Route())
	}
}

func TestExecute(t *testing.T) {
	r, err := response.Execute("¿Confirmas?", "p-1", "Pulsa Confirmar", validProposal())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if r.Confirmation == nil || !r.Confirmation.Required || r.Confirmation.PendingID != "p-1" {
		t.Errorf("confirmation: %+v", r.Confirmation)
	}
	if len(r.Actions) != 1 {
		t.Errorf("actions: %d", len(r.Actions))
	}
	if r.Meta[response.MetaPendingID] != "p-1" {
		t.Errorf("meta pending id: %v", r.Meta)
	}
}

func TestClarify(t *testing.T) {
	r, err := response.Clarify("¿Precio o stock?", []string{"field"}, []string{"precio", "stock"})
	if err != nil {
		t.Fatalf("Clarify: %v", err)
	}
	if r.Clarification == nil || len(r.Clarification.Choices) != 2 {
		t.Errorf("clarification: %+v", r.Clarification)
	}
}

func TestBuild_Violations(t *testing.T) {
	cases := []struct {
		name string
		mode response.Mode
		msg  string
		opts []response.Option
	}{
		{"consult with actions", response.ModeConsult, "x", []response.Option{response.WithActions(validProposal())}},
		{"clarify with actions", response.ModeClarify, "x", []response.Option{
			response.WithClarification(response.Clarification{Question: "x"}),
			response.WithActions(validProposal())}},
		{"consult with confirmation", response.ModeConsult, "x", []response.Option{
			response.WithConfirmation(response.Confirmation{Required: true})}},
		{"execute without actions", response.ModeExecute, "x", []response.Option{
			response.WithConfirmation(response.Confirmation{Required: true})}},
		{"execute without confirmation", response.ModeExecute, "x", []response.Option{
			response.WithActions(validProposal())}},
		{"execute with invalid proposal", response.ModeExecute, "x", []response.Option{
			response.WithActions(action.Proposal{Kind: action.KindDeleteProduct, HumanSummary: "x"}),
			response.WithConfirmation(response.Confirmation{Required: true})}},
		{"clarify without question", response.ModeClarify, "x", nil},
		{"empty message", response.ModeConsult, "  ", nil},
		{"unknown mode", response.Mode("answer"), "x", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := response.Build(tc.mode, tc.msg, tc.opts...)
			if !errors.Is(err, response.ErrContractViolation) {
				t.Fatalf("expected ErrContractViolation, got %v", err)
			}
		})
	}
}

func TestJSONShape(t *testing.T) {
	r, err := response.Consult("hola")
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"ok", "mode", "message_to_user", "actions", "meta"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing key %q in %s", key, b)
		}
	}
	if _, ok := m["confirmation"]; ok {
		t.Errorf("consult must omit confirmation: %s", b)
	}
}

func TestAppendMessage(t *testing.T) {
	r, _ := response.Consult("Hay 3 productos.")
	r.AppendMessage("Tienes una acción pendiente.")
	if r.MessageToUser != "Hay 3 productos.\n\nTienes una acción pendiente." {
		t.Errorf("got %q", r.MessageToUser)
	}
}
