// Command catalogchat runs the catalog chat assistant from the terminal:
// one-shot turns, confirmation signals, diagnostics, seeding, the runtime
// config table and the HTTP server.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bdobrica/catalogchat/common/version"
	"github.com/bdobrica/catalogchat/internal/catalogchat/app"
	"github.com/bdobrica/catalogchat/internal/catalogchat/observability"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configPath   string
	dbPath       string
	conversation string
	format       string
	logLevel     string
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "catalogchat",
		Short: "Catalog management chat assistant",
		Long: `catalogchat answers catalog questions and proposes catalog changes.

Changes are never applied from chat text: every mutation waits for an
explicit confirmation signal (catalogchat confirm <pending-id>).

Examples:
  catalogchat seed products.yaml
  catalogchat ask "productos sin precio"
  catalogchat ask "cambia el precio del #12 a 25"
  catalogchat confirm`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", os.Getenv(app.EnvPrefix+"_CONFIG"), "YAML config file (or set CATALOGCHAT_CONFIG)")
	pf.StringVar(&g.dbPath, "db", "", "SQLite database path (overrides config and CATALOGCHAT_DB)")
	pf.StringVar(&g.conversation, "conversation", "", "Conversation ID (default: the installation conversation)")
	pf.StringVarP(&g.format, "format", "o", "text", "Output format: text, json or yaml")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	root.AddCommand(
		newAskCmd(g),
		newSignalCmd(g, "confirm"),
		newSignalCmd(g, "cancel"),
		newDiagnoseCmd(g),
		newSeedCmd(g),
		newServeCmd(g),
		newConfigCmd(g),
		newVersionCmd(),
	)
	return root
}

// loadConfig resolves the bootstrap config and installs the logger.
// quietLevel, when set, replaces the configured level so one-shot commands
// only print their own output.
func (g *globals) loadConfig(cmd *cobra.Command, quietLevel string) (app.Config, error) {
	cfg, err := app.LoadConfig(g.configPath)
	if err != nil {
		return app.Config{}, err
	}
	if g.dbPath != "" {
		cfg.DatabasePath = g.dbPath
	}
	level := cfg.Log.Level
	if quietLevel != "" {
		level = quietLevel
	}
	if g.logLevel != "" {
		level = g.logLevel
	}
	observability.SetupWriter(cmd.ErrOrStderr(), level, cfg.Log.Format)
	return cfg, nil
}

// openApp loads the config and opens the app. Callers close it.
func (g *globals) openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := g.loadConfig(cmd, "warn")
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
			return nil
		},
	}
}
