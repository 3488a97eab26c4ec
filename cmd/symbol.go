package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var symbolSearch bool

var symbolCmd = &cobra.Command{
	Use:   "symbol <company>",
	Short: "Resolve a company name to its ticker symbol",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "research")
		if err != nil {
			return err
		}
		defer env.Close()

		query := strings.Join(args, " ")

		if symbolSearch {
			matches, err := env.Symbols.Search(ctx, query)
			if err != nil {
				return eris.Wrap(err, "symbol search")
			}
			if len(matches) == 0 {
				fmt.Fprintln(os.Stderr, "No matches.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tNAME\tREGION\tSCORE")
			for _, m := range matches {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\n", m.Symbol, m.Name, m.Region, m.MatchScore)
			}
			return w.Flush()
		}

		sym, err := env.Symbols.Resolve(ctx, query)
		if err != nil {
			return eris.Wrap(err, "symbol")
		}
		fmt.Fprintln(os.Stdout, sym)
		return nil
	},
}

func init() {
	symbolCmd.Flags().BoolVar(&symbolSearch, "search", false, "list ranked search matches instead of the best symbol")
	rootCmd.AddCommand(symbolCmd)
}
