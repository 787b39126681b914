package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"biteiq/internal/app"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:          "biteiq",
		Short:        "BiteIQ nutrition bot",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfgPath)
		},
	}
	cmd.PersistentFlags().StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")

	cmd.AddCommand(newServeCmd(&cfgPath))
	cmd.AddCommand(newWebhookCmd(&cfgPath))
	cmd.AddCommand(newRunCmd(&cfgPath))
	cmd.AddCommand(newGrantCmd(&cfgPath))
	cmd.AddCommand(newRevokeCmd(&cfgPath))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and the scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *cfgPath)
		},
	}
}

func serve(parent context.Context, cfgPath string) error {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfgPath)
	if err != nil {
		return fmt.Errorf("fatal: %w", err)
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return fmt.Errorf("fatal start: %w", err)
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		if a.Err() != nil {
			reason = app.StopFatalError
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	return a.Err()
}

func newWebhookCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the Telegram webhook registration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set",
		Short: "Point Telegram at telegram.webhook_url",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := app.New(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.RegisterWebhook(ctx)
		},
	})
	return cmd
}

func newRunCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run <job>",
		Short: "Run a notification job now (daily_plan, reminder:<name>)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := app.New(ctx, *cfgPath, app.WithOffline())
			if err != nil {
				return err
			}
			rep, err := a.RunJob(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "job=%s run=%s recipients=%d delivered=%d skipped=%d failed=%d took=%s\n",
				rep.Job, rep.RunID, rep.Recipients, rep.Delivered, rep.Skipped, rep.Failed, rep.Duration.Round(time.Millisecond))
			for id, reason := range rep.Failures {
				_, _ = fmt.Fprintf(out, "  failed %d: %s\n", id, reason)
			}
			if rep.Failed > 0 {
				return errors.New("some recipients failed")
			}
			return nil
		},
	}
}

func newGrantCmd(cfgPath *string) *cobra.Command {
	var until string
	cmd := &cobra.Command{
		Use:   "grant <telegram-id>",
		Short: "Activate a recipient's subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var t time.Time
			if until != "" {
				if t, err = time.Parse(time.DateOnly, until); err != nil {
					return fmt.Errorf("--until: %w", err)
				}
			}
			a, err := app.New(cmd.Context(), *cfgPath, app.WithOffline())
			if err != nil {
				return err
			}
			return a.Grant(cmd.Context(), id, t)
		},
	}
	cmd.Flags().StringVar(&until, "until", "", "expiry date YYYY-MM-DD (default: no expiry)")
	return cmd
}

func newRevokeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <telegram-id>",
		Short: "End a recipient's subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), *cfgPath, app.WithOffline())
			if err != nil {
				return err
			}
			return a.Revoke(cmd.Context(), id)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), app.Version)
		},
	}
}
