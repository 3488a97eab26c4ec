package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/research-dashboard/internal/model"
)

var researchJSON bool

var researchCmd = &cobra.Command{
	Use:   "research <company>",
	Short: "Research a company and store the run",
	Long:  "Runs every topic agent for the company, printing search results as they arrive, then prints the assembled report.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "research")
		if err != nil {
			return err
		}
		defer env.Close()

		company := strings.Join(args, " ")

		var onSource func(model.WebSource)
		if !researchJSON {
			onSource = func(s model.WebSource) { printSource(os.Stderr, s) }
		}

		run, err := env.Recorder.Research(ctx, company, onSource)
		if err != nil {
			return eris.Wrap(err, "research")
		}

		if researchJSON {
			return printJSON(os.Stdout, run)
		}
		fmt.Fprintln(os.Stdout)
		renderRun(os.Stdout, run)
		return nil
	},
}

func init() {
	researchCmd.Flags().BoolVar(&researchJSON, "json", false, "print the stored run as JSON")
	rootCmd.AddCommand(researchCmd)
}
