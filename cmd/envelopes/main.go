package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"envelopes/internal/cli"
	"envelopes/internal/log"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// errToolFailed marks a call whose result was printed but not ok.
var errToolFailed = errors.New("tool call failed")

var rootCmd = &cobra.Command{
	Use:   "envelopes",
	Short: "Cash envelope budget ledger",
	Long: `Cash envelope budget ledger with local, remote and hybrid storage.

Configuration comes from the environment (and .env when present):
  DATABASE_MODE        local, remote or hybrid
  DATABASE_FILE        local SQLite file, ":memory:" allowed
  MOTHERDUCK_DATABASE  remote database name
  MOTHERDUCK_TOKEN     remote credential`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the available tools",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, false, func(ctx context.Context, app *cli.App) error {
			type entry struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			}
			var out []entry
			for _, t := range app.Registry.Tools() {
				out = append(out, entry{Name: t.Name, Description: t.Description})
			}
			return printJSON(cmd.OutOrStdout(), out)
		})
	},
}

var callCmd = &cobra.Command{
	Use:   "call <tool> [json-args|-]",
	Short: "Call one tool and print its result",
	Long: `Call one tool with JSON arguments and print the result as JSON.

Pass "-" to read the arguments from stdin. The exit status is non-zero when
the result is an error. RESET_DB_ON_START and SYNC_ON_START are ignored here;
use serve to run them once for a session.`,
	Example: `  envelopes call create_envelope '{"category":"Groceries","budgeted_amount":500}'
  echo '{"envelope_id":1}' | envelopes call get_envelope_balance -`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw json.RawMessage
		if len(args) == 2 {
			in := args[1]
			if in == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read arguments: %w", err)
				}
				in = string(b)
			}
			raw = json.RawMessage(strings.TrimSpace(in))
		}
		return runTool(cmd, args[0], raw)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mode, remote connectivity and row counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runTool(cmd, "get_cloud_status", nil)
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Copy the local ledger to the remote database (hybrid mode)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runTool(cmd, "sync_to_cloud", nil)
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Copy the remote ledger into the local database (hybrid mode)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runTool(cmd, "sync_from_cloud", nil)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer tool calls from stdin, one JSON object per line",
	Long: `Start one session and answer newline-delimited requests from stdin.

Each request is {"id": ..., "tool": "<name>", "args": {...}}; each response is
one line {"id": ..., "ok": ..., "data"|"error": ...}. RESET_DB_ON_START and
SYNC_ON_START apply once, when the session starts. The session ends at EOF.`,
	Example: `  printf '%s\n' '{"id":1,"tool":"list_envelopes"}' | envelopes serve`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, true, func(ctx context.Context, app *cli.App) error {
			return app.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		})
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd, callCmd, statusCmd, pushCmd, pullCmd, serveCmd)
}

func runTool(cmd *cobra.Command, name string, args json.RawMessage) error {
	return withApp(cmd, false, func(ctx context.Context, app *cli.App) error {
		res := app.Registry.Call(ctx, name, args)
		if err := printJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		if !res.OK {
			return errToolFailed
		}
		return nil
	})
}

// withApp loads configuration, connects the ledger, runs fn and closes
// everything again. Only a session runs the startup reset and sync.
func withApp(cmd *cobra.Command, session bool, fn func(ctx context.Context, app *cli.App) error) error {
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig()
	if err != nil {
		return err
	}
	logger := cli.SetupLogger(cfg.LogLevel)
	if !session {
		cli.DisableStartupActions(cfg, logger)
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	app, err := cli.Bootstrap(ctx, cfg, logger, cli.WithVersion(version))
	if err != nil {
		logger.Error("Startup failed", log.FieldError, err)
		return err
	}
	defer app.Close()

	return fn(ctx, app)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, errToolFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
