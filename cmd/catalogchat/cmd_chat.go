package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdobrica/catalogchat/internal/catalogchat/app"
	"github.com/bdobrica/catalogchat/internal/catalogchat/pending"
)

func newAskCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one chat message",
		Long: `Sends one message through the router and prints the answer.

A proposed change prints its pending ID. It is applied only by
"catalogchat confirm <pending-id>".

Examples:
  catalogchat ask "salud del catálogo"
  catalogchat ask "productos sin precio full"
  catalogchat ask "cambia el stock del sku CAM-001 a 10"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			resp := a.Handle(cmd.Context(), app.Request{
				ConversationID: g.conversation,
				Message:        strings.Join(args, " "),
			})
			return printResponse(cmd.OutOrStdout(), g.format, resp)
		},
	}
}

// newSignalCmd builds confirm and cancel. Without an argument the signal
// names whatever is pending in the conversation.
func newSignalCmd(g *globals, name string) *cobra.Command {
	typ := pending.SignalConfirm
	short := "Confirm the pending change"
	if name == "cancel" {
		typ = pending.SignalCancel
		short = "Cancel the pending change"
	}
	return &cobra.Command{
		Use:   name + " [pending-id]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			id := ""
			if len(args) == 1 {
				id = args[0]
			} else {
				state := a.Memory().Read(ctx, g.conversation)
				if state.Pending == nil {
					return fmt.Errorf("nothing pending in conversation %q", state.ConversationID)
				}
				id = state.Pending.ID
			}
			resp := a.Handle(ctx, app.Request{
				ConversationID: g.conversation,
				Signal:         &pending.Signal{Type: typ, PendingID: id},
			})
			return printResponse(cmd.OutOrStdout(), g.format, resp)
		},
	}
}
