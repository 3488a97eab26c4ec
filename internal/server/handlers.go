package server

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/research-dashboard/internal/credential"
	"github.com/sells-group/research-dashboard/internal/fetch"
	"github.com/sells-group/research-dashboard/internal/financial"
	"github.com/sells-group/research-dashboard/internal/model"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// researchResponse is the body of a finished research request.
type researchResponse struct {
	RunID   string                `json:"run_id"`
	Status  model.RunStatus       `json:"status"`
	Result  *model.ResearchResult `json:"result"`
	Sources []model.WebSource     `json:"sources"`
}

func newResearchResponse(run *model.Run) researchResponse {
	sources := run.Sources
	if sources == nil {
		sources = []model.WebSource{}
	}
	return researchResponse{RunID: run.ID, Status: run.Status, Result: run.Result, Sources: sources}
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Company string `json:"company"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	run, err := s.deps.Research.Research(r.Context(), req.Company, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newResearchResponse(run))
}

func (s *Server) handleSymbol(w http.ResponseWriter, r *http.Request) {
	company := chi.URLParam(r, "company")
	ticker, err := s.deps.Symbols.Resolve(r.Context(), company)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"company": company, "symbol": ticker})
}

func (s *Server) handleSymbolSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, r, invalid("q is required"))
		return
	}
	matches, err := s.deps.Symbols.Search(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if matches == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handleFinancials(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Financials.FetchForCompany(r.Context(), chi.URLParam(r, "company"))
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleFinancialsExport(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Financials.FetchForCompany(r.Context(), chi.URLParam(r, "company"))

	var buf bytes.Buffer
	if err := financial.WriteXLSX(snap, &buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+snap.Symbol+`.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleSettingsStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": s.deps.Credentials.Status(r.Context()),
	})
}

type valueRequest struct {
	Value string `json:"value"`
}

func providerParam(r *http.Request) (credential.Provider, error) {
	p, err := credential.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		return "", invalid(err.Error())
	}
	return p, nil
}

func (s *Server) handleSetCredential(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req valueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Value) == "" {
		writeError(w, r, invalid("value is required"))
		return
	}
	if err := s.deps.Settings.SetOverride(r.Context(), p, req.Value); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearCredential(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Settings.ClearOverride(r.Context(), p); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleValidateCredential(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req valueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	resp := map[string]any{"provider": p, "valid": true}
	if err := s.deps.Settings.Validate(r.Context(), p, req.Value); err != nil {
		resp["valid"] = false
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetSearchScope(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Settings.SetSearchScope(r.Context(), req.Value); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBudgets(w http.ResponseWriter, _ *http.Request) {
	out := make([]fetch.BudgetState, 0, len(credential.Providers))
	for _, p := range credential.Providers {
		out = append(out, s.deps.Budgets.BudgetStatus(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResetBudget(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.deps.Budgets.ResetBudget(p)
	writeJSON(w, http.StatusOK, s.deps.Budgets.BudgetStatus(p))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.RunFilter{
		Company: strings.TrimSpace(q.Get("company")),
		Status:  model.RunStatus(q.Get("status")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, invalid("limit must be a non-negative integer"))
			return
		}
		filter.Limit = n
	}

	list, err := s.deps.Runs.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Run{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.deps.Runs.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handlePublishRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Publisher == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "notion publishing is not configured"})
		return
	}
	res, err := s.deps.Publisher.Publish(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"page_id": res.PageID,
		"url":     res.URL,
		"created": res.Created,
	})
}

func (s *Server) handleRunStats(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, invalid("hours must be a positive integer"))
			return
		}
		hours = n
	}
	stats, err := s.deps.Stats.Collect(r.Context(), hours)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
