// Command notifier runs the notification drivers once, for external
// schedulers and operators.
//
// Usage:
//
//	hifz-notifier homework-reminders
//	hifz-notifier teacher-summaries
//	hifz-notifier event --file payload.json
//	echo '{"type":"INSERT",...}' | hifz-notifier event
//	hifz-notifier receipts TICKET_ID=TOKEN [TICKET_ID=TOKEN...]
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/hifz-notify/internal/app"
	"github.com/albapepper/hifz-notify/internal/config"
	"github.com/albapepper/hifz-notify/internal/jobs"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:          "hifz-notifier",
		Short:        "Run Hifz notification jobs once",
		SilenceUsage: true,
	}

	root.AddCommand(homeworkCmd())
	root.AddCommand(summariesCmd())
	root.AddCommand(eventCmd())
	root.AddCommand(receiptsCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// periodic drivers
// --------------------------------------------------------------------------

func homeworkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "homework-reminders",
		Short: "Send due-tomorrow homework reminders for schools at 18:00 local time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(func(ctx context.Context, a *app.App) error {
				res, err := a.Homework.Run(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func summariesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "teacher-summaries",
		Short: "Send teacher morning summaries for schools at 07:00 local time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(func(ctx context.Context, a *app.App) error {
				res, err := a.Summaries.Run(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

// --------------------------------------------------------------------------
// event replay
// --------------------------------------------------------------------------

func eventCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Process one database-change payload from a file or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open payload: %w", err)
				}
				defer f.Close()
				in = f
			}
			payload, err := decodePayload(in)
			if err != nil {
				return err
			}

			return runApp(func(ctx context.Context, a *app.App) error {
				res, err := a.Events.Handle(ctx, payload)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Payload JSON file (default stdin)")
	return cmd
}

func decodePayload(r io.Reader) (jobs.EventPayload, error) {
	var p jobs.EventPayload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}

// --------------------------------------------------------------------------
// receipts
// --------------------------------------------------------------------------

func receiptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "receipts TICKET_ID=TOKEN...",
		Short: "Check delivery receipts now and deactivate unregistered tokens",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticketTokens, err := parseTicketTokens(args)
			if err != nil {
				return err
			}
			return runApp(func(ctx context.Context, a *app.App) error {
				n, err := a.Receipts.Check(ctx, ticketTokens)
				logger.Info("receipt check finished", "tickets", len(ticketTokens), "deactivated", n)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]int{"deactivated": n})
			})
		},
	}
}

func parseTicketTokens(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		id, token, ok := strings.Cut(arg, "=")
		if !ok || id == "" || token == "" {
			return nil, fmt.Errorf("invalid pair %q: want TICKET_ID=TOKEN", arg)
		}
		out[id] = token
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// runApp handles config loading, wiring, context cancellation and a bounded
// wait for background receipt checks.
func runApp(fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = app.NewLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.WithoutCancel(ctx), app.ShutdownTimeout)
		defer closeCancel()
		a.Close(closeCtx)
	}()

	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
