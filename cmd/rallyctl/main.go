// Command rallyctl runs operator tasks against the configured store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rallyup/backend/internal/app"
	"rallyup/backend/internal/config"
	"rallyup/backend/internal/logging"
)

var (
	backend string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "rallyctl",
	Short: "Operator tools for the RallyUp backend",
	Long: `rallyctl repairs and maintains RallyUp data directly in the store.
Configuration is read the same way as the API server (.env, RALLYUP_CONFIG,
environment).`,
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "override STORE_BACKEND (firestore|memory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(reconcileCmd, deleteSessionCmd, stubProfileCmd)

	stubProfileCmd.Flags().String("name", "", "full name (required)")
	stubProfileCmd.Flags().String("email", "", "email (required)")
	_ = stubProfileCmd.MarkFlagRequired("name")
	_ = stubProfileCmd.MarkFlagRequired("email")
}

// open loads configuration and connects the services.
func open(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load()
	if backend != "" {
		cfg.StoreBackend = backend
		err = cfg.Validate()
	}
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	log := logging.New(cmd.ErrOrStderr(), level, cfg.LogFormat)
	return app.New(cmd.Context(), cfg, log)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <uid>...",
	Short: "Repair sessionHistory and createdSessions of users",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, uid := range args {
			rep, err := a.Lifecycle.Reconcile(cmd.Context(), uid)
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", uid, err)
			}
			if err := printJSON(cmd, rep); err != nil {
				return err
			}
		}
		return nil
	},
}

var deleteSessionCmd = &cobra.Command{
	Use:   "delete-session <sessionId>",
	Short: "Cancel a session on behalf of its host",
	Long: `Notifies every guest, scrubs all references and deletes the session.
Safe to re-run after a partial failure.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		sess, err := a.Sessions.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := a.Lifecycle.DeleteSession(cmd.Context(), sess.ID, sess.HostID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok: session %s deleted\n", sess.ID)
		return nil
	},
}

var stubProfileCmd = &cobra.Command{
	Use:   "stub-profile <uid>",
	Short: "Create the signup profile for a user if missing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")

		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Profiles.CreateStubProfile(cmd.Context(), args[0], name, email); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ok: profile exists for", args[0])
		return nil
	},
}
