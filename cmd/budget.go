package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/research-dashboard/internal/credential"
	"github.com/sells-group/research-dashboard/internal/fetch"
)

// Budgets are counted inside the serving process, so these commands talk to
// a running server instead of opening the store.
var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Inspect or reset daily provider budgets on a running server",
}

var budgetStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show today's call usage per provider",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var states []fetch.BudgetState
		if err := budgetAPI(cmd.Context(), http.MethodGet, budgetAddr(cmd)+"/api/budgets", &states); err != nil {
			return eris.Wrap(err, "budget status")
		}
		renderBudgets(os.Stdout, states, time.Now())
		return nil
	},
}

var budgetResetCmd = &cobra.Command{
	Use:   "reset <provider>",
	Short: "Reset a provider's daily counter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := credential.ParseProvider(args[0])
		if err != nil {
			return err
		}
		var state fetch.BudgetState
		url := fmt.Sprintf("%s/api/budgets/%s/reset", budgetAddr(cmd), p)
		if err := budgetAPI(cmd.Context(), http.MethodPost, url, &state); err != nil {
			return eris.Wrap(err, "budget reset")
		}
		renderBudgets(os.Stdout, []fetch.BudgetState{state}, time.Now())
		return nil
	},
}

func budgetAddr(cmd *cobra.Command) string {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	return strings.TrimRight(addr, "/")
}

// budgetAPI calls the server and decodes a JSON body into out.
func budgetAPI(ctx context.Context, method, url string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return eris.Wrap(err, "build request")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return eris.Wrapf(err, "call %s", url)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return eris.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return eris.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode response")
}

func init() {
	budgetCmd.PersistentFlags().String("addr", "", "server base URL (default http://localhost:<server.port>)")

	budgetCmd.AddCommand(budgetStatusCmd)
	budgetCmd.AddCommand(budgetResetCmd)
	rootCmd.AddCommand(budgetCmd)
}
