package main

import (
	"errors"
	"fmt"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bdobrica/catalogchat/internal/catalogchat/app"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalog"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalogctx"
	"github.com/bdobrica/catalogchat/internal/catalogchat/config"
)

func newDiagnoseCmd(g *globals) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Print the full diagnostic context",
		Long: `Prints the operator-facing snapshot: catalog health, per-category
counts with examples, stock breakdown and the conversation state.

This snapshot is never sent to the model.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			full, err := a.Diagnose(cmd.Context(), g.conversation, top)
			if err != nil {
				return err
			}
			format := g.format
			if format == "text" {
				format = "yaml"
			}
			return render(cmd.OutOrStdout(), format, full)
		},
	}
	cmd.Flags().IntVar(&top, "top", catalogctx.DefaultTopN, "Examples per category")
	return cmd
}

func newSeedCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <products.yaml>",
		Short: "Load products from a YAML fixture",
		Long: `Loads products into the catalog. Products with an id replace the
existing row, so re-seeding the same file is idempotent.

File layout:
  products:
    - id: 12
      name: Camiseta básica
      sku: CAM-001
      price: 19.9
      manage_stock: true
      stock_quantity: 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			products, err := catalog.LoadSeedFile(args[0])
			if err != nil {
				return err
			}
			a, err := g.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Seed(cmd.Context(), products)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d products\n", n)
			return nil
		},
	}
}

func newServeCmd(g *globals) *cobra.Command {
	var addr string
	var debug bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (/chat, /health, /status)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd, "")
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			if debug {
				cfg.Debug.Context = true
			}
			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides http_addr)")
	cmd.Flags().BoolVar(&debug, "debug-context", false, "Mount /debug/context")
	return cmd
}

func newConfigCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write runtime settings",
		Long: `Runtime settings live in the database and apply without a restart.
API keys are never stored here; use CATALOGCHAT_NLP_API_KEY.

Keys: ` + fmt.Sprint(config.KnownKeys()),
	}

	withStore := func(run func(cmd *cobra.Command, s config.Store, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return run(cmd, a.ConfigStore(), args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one setting",
			Args:  cobra.ExactArgs(1),
			RunE: withStore(func(cmd *cobra.Command, s config.Store, args []string) error {
				v, err := s.Get(cmd.Context(), args[0])
				if errors.Is(err, config.ErrNotFound) {
					return fmt.Errorf("%s is not set", args[0])
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Store a setting",
			Args:  cobra.ExactArgs(2),
			RunE: withStore(func(cmd *cobra.Command, s config.Store, args []string) error {
				if err := s.Set(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
				return nil
			}),
		},
		&cobra.Command{
			Use:   "unset <key>",
			Short: "Remove a setting",
			Args:  cobra.ExactArgs(1),
			RunE: withStore(func(cmd *cobra.Command, s config.Store, args []string) error {
				return s.Delete(cmd.Context(), args[0])
			}),
		},
		&cobra.Command{
			Use:   "list",
			Short: "Print every stored setting",
			Args:  cobra.NoArgs,
			RunE: withStore(func(cmd *cobra.Command, s config.Store, args []string) error {
				values, err := s.List(cmd.Context())
				if err != nil {
					return err
				}
				if g.format != "text" {
					return render(cmd.OutOrStdout(), g.format, values)
				}
				keys := make([]string, 0, len(values))
				for k := range values {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", k, values[k])
				}
				return nil
			}),
		},
	)
	return cmd
}
