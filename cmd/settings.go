package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/research-dashboard/internal/credential"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage provider credential overrides",
	Long:  "User-entered keys override the environment defaults and are stored in the settings table.",
}

var settingsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which credential each provider uses",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "research")
		if err != nil {
			return err
		}
		defer env.Close()

		renderStatus(os.Stdout, env.Resolver.Status(ctx))
		scope, origin := env.Resolver.SearchScope(ctx)
		if scope == "" {
			scope = "-"
		}
		fmt.Fprintf(os.Stdout, "\nsearch scope: %s (%s)\n", scope, origin)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <provider> <key>",
	Short: "Store a user key for a provider",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		p, err := credential.ParseProvider(args[0])
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "research")
		if err != nil {
			return err
		}
		defer env.Close()

		if validate, _ := cmd.Flags().GetBool("validate"); validate {
			if err := env.Settings.Validate(ctx, p, args[1]); err != nil {
				return eris.Wrapf(err, "settings set %s", p)
			}
		}
		if err := env.Settings.SetOverride(ctx, p, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s key saved\n", p)
		return nil
	},
}

var settingsClearCmd = &cobra.Command{
	Use:   "clear <provider>",
	Short: "Remove a provider's user key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		p, err := credential.ParseProvider(args[0])
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "research")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Settings.ClearOverride(ctx, p); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s key cleared\n", p)
		return nil
	},
}

var settingsValidateCmd = &cobra.Command{
	Use:   "validate <provider> [key]",
	Short: "Check a key against the provider",
	Long:  "Runs a live check for the given key, or for the key currently in use when none is given.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		p, err := credential.ParseProvider(args[0])
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "research")
		if err != nil {
			return err
		}
		defer env.Close()

		key := ""
		if len(args) == 2 {
			key = args[1]
		} else {
			key = env.Resolver.Resolve(ctx, p).Value
		}
		if err := env.Settings.Validate(ctx, p, key); err != nil {
			return eris.Wrapf(err, "settings validate %s", p)
		}
		fmt.Fprintf(os.Stdout, "%s key is valid\n", p)
		return nil
	},
}

var settingsScopeCmd = &cobra.Command{
	Use:   "scope [id]",
	Short: "Set the search scope id, or clear it when omitted",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "research")
		if err != nil {
			return err
		}
		defer env.Close()

		scope := ""
		if len(args) == 1 {
			scope = args[0]
		}
		if err := env.Settings.SetSearchScope(ctx, scope); err != nil {
			return err
		}
		if scope == "" {
			fmt.Fprintln(os.Stdout, "search scope cleared")
		} else {
			fmt.Fprintln(os.Stdout, "search scope saved")
		}
		return nil
	},
}

func init() {
	settingsSetCmd.Flags().Bool("validate", false, "check the key with the provider before saving")

	settingsCmd.AddCommand(settingsStatusCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsClearCmd)
	settingsCmd.AddCommand(settingsValidateCmd)
	settingsCmd.AddCommand(settingsScopeCmd)
	rootCmd.AddCommand(settingsCmd)
}
