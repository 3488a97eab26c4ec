package main

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/research-dashboard/internal/financial"
	"github.com/sells-group/research-dashboard/internal/model"
)

var (
	financialsTicker bool
	financialsXLSX   string
	financialsJSON   bool
)

var financialsCmd = &cobra.Command{
	Use:   "financials <company|ticker>",
	Short: "Show a financial snapshot for a company",
	Long:  "Resolves the company to a ticker and fetches its financial snapshot. Falls back to mock or synthetic data when the provider is unavailable.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "research")
		if err != nil {
			return err
		}
		defer env.Close()

		query := strings.Join(args, " ")

		var snap *model.FinancialSnapshot
		if financialsTicker {
			snap = env.Financials.Fetch(ctx, strings.ToUpper(query))
		} else {
			snap = env.Financials.FetchForCompany(ctx, query)
		}

		if financialsXLSX != "" {
			if err := writeSnapshotFile(financialsXLSX, snap); err != nil {
				return err
			}
			zap.L().Info("financials: workbook written", zap.String("path", financialsXLSX), zap.String("symbol", snap.Symbol))
		}

		if financialsJSON {
			return printJSON(os.Stdout, snap)
		}
		renderSnapshot(os.Stdout, snap)
		return nil
	},
}

func writeSnapshotFile(path string, snap *model.FinancialSnapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "financials: create %s", path)
	}
	if err := financial.WriteXLSX(snap, f); err != nil {
		_ = f.Close()
		return eris.Wrap(err, "financials: write workbook")
	}
	return eris.Wrap(f.Close(), "financials: close workbook")
}

func init() {
	financialsCmd.Flags().BoolVar(&financialsTicker, "ticker", false, "treat the argument as a ticker symbol")
	financialsCmd.Flags().StringVar(&financialsXLSX, "xlsx", "", "also write the snapshot to an .xlsx workbook at this path")
	financialsCmd.Flags().BoolVar(&financialsJSON, "json", false, "print the snapshot as JSON")
	rootCmd.AddCommand(financialsCmd)
}
