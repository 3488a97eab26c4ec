package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/research-dashboard/internal/monitoring"
	"github.com/sells-group/research-dashboard/internal/server"
)

var (
	servePort    int
	serveOrigins []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		monitoring.Init()

		deps := server.Deps{
			Research:    env.Recorder,
			Symbols:     env.Symbols,
			Financials:  env.Financials,
			Credentials: env.Resolver,
			Settings:    env.Settings,
			Budgets:     env.Fetch,
			Runs:        env.Store,
			Stats:       env.Stats,
		}
		// A nil *runs.Publisher must stay a nil interface.
		if env.Publisher != nil {
			deps.Publisher = env.Publisher
		}

		srv := server.New(deps, server.WithAllowedOrigins(serveOrigins...))
		return srv.ListenAndServe(ctx, cfg.Server.Port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "origin", nil, "allowed CORS origin (repeatable, default any)")
	rootCmd.AddCommand(serveCmd)
}
