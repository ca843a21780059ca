package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/set-night/mindcanvas/internal/config"
	"github.com/set-night/mindcanvas/internal/repository"
)

func newMigrateCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply storage migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := cfg().StorageURL()
			if err != nil {
				return err
			}
			store, err := repository.Open(cmd.Context(), url)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✓ migrations applied"))
			return nil
		},
	}
}

func newLoginCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "login <did>",
		Short: "Sign in locally as a did:nuwa identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), cfg(), func(rt *runtime) error {
				if err := rt.app.Identity().SetDID(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", successStyle.Render("✓ signed in as"), didStyle.Render(args[0]))
				return nil
			})
		},
	}
}

func newLogoutCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the local identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), cfg(), func(rt *runtime) error {
				rt.app.Identity().Logout()
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✓ signed out"))
				return nil
			})
		},
	}
}

func newWhoamiCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the local identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), cfg(), func(rt *runtime) error {
				id := rt.app.Identity().Identity()
				if !id.Authenticated {
					fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("not signed in"))
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), didStyle.Render(id.DID))
				return nil
			})
		},
	}
}

func newClearCmd(cfg func() *config.Config) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the chats, documents and settings of the local identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), cfg(), func(rt *runtime) error {
				if all {
					if err := rt.app.ClearAllStorage(cmd.Context()); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✓ all storage cleared"))
					return nil
				}
				ws, err := rt.current(cmd.Context())
				if err != nil {
					return err
				}
				if err := rt.app.ClearWorkspace(cmd.Context(), ws.Owner); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", successStyle.Render("✓ cleared"), didStyle.Render(ws.Owner))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Wipe every identity and sign out")
	return cmd
}
