package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bdobrica/catalogchat/internal/catalogchat/response"
)

// render writes v as JSON or YAML. YAML goes through the JSON encoding so
// both formats use the same field names.
func render(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(generic)
	}
	return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
}

// printResponse writes a turn result. Text mode shows what a chat UI would.
func printResponse(w io.Writer, format string, resp *response.RouteResponse) error {
	if format != "" && format != "text" {
		return render(w, format, resp)
	}
	fmt.Fprintln(w, resp.MessageToUser)
	if resp.Clarification != nil && len(resp.Clarification.Choices) > 0 {
		for _, c := range resp.Clarification.Choices {
			fmt.Fprintf(w, "  - %s\n", c)
		}
	}
	if resp.Confirmation != nil && resp.Confirmation.PendingID != "" {
		fmt.Fprintf(w, "\npending_id: %s\n", resp.Confirmation.PendingID)
		fmt.Fprintf(w, "confirmar: catalogchat confirm %s\n", resp.Confirmation.PendingID)
	}
	return nil
}
