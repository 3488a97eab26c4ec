// Package research runs the topic agents for a company concurrently and
// merges their sections into one ResearchResult.
package research

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/research-dashboard/internal/evidence"
	"github.com/sells-group/research-dashboard/internal/model"
	"github.com/sells-group/research-dashboard/internal/monitoring"
	"github.com/sells-group/research-dashboard/internal/narrative"
)

// State is the phase of a single run.
type State int

const (
	StateIdle State = iota
	StateDispatching
	StateAwaiting
	StateMerging
	StateDone
	StatePartialFailure
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateAwaiting:
		return "awaiting"
	case StateMerging:
		return "merging"
	case StateDone:
		return "done"
	case StatePartialFailure:
		return "partial_failure"
	default:
		return "unknown"
	}
}

const defaultAgentTimeout = 120 * time.Second

// Searcher gathers evidence and reports each kept source. Implemented by
// *evidence.Gatherer.
type Searcher interface {
	Gather(ctx context.Context, agentID, query string, onSource func(model.WebSource)) (*evidence.Evidence, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAIInitiatives toggles the ai-initiatives agent.
func WithAIInitiatives(on bool) Option {
	return func(o *Orchestrator) { o.aiInitiatives = on }
}

// WithAgentTimeout bounds each agent. Zero or negative disables the bound.
func WithAgentTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.agentTimeout = d }
}

// WithStateHook observes state transitions of every run.
func WithStateHook(fn func(company string, s State)) Option {
	return func(o *Orchestrator) { o.onState = fn }
}

// Orchestrator fans a company out to the topic agents.
type Orchestrator struct {
	search        Searcher
	gen           narrative.Generator
	aiInitiatives bool
	agentTimeout  time.Duration
	onState       func(company string, s State)
}

// New creates an Orchestrator with the ai-initiatives agent enabled.
func New(search Searcher, gen narrative.Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		search:        search,
		gen:           gen,
		aiInitiatives: true,
		agentTimeout:  defaultAgentTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run researches company and always returns a complete result. Agent
// failures degrade their own sections to placeholder text; onSource, when
// set, is called once per source as it is found and never concurrently.
func (o *Orchestrator) Run(ctx context.Context, company string, onSource func(model.WebSource)) (result *model.ResearchResult) {
	log := zap.L().With(zap.String("company", company))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("research: run panicked", zap.Any("panic", r), zap.Stack("stack"))
			result = Placeholder(company, o.aiInitiatives, fmt.Sprintf("internal error: %v", r))
			o.setState(company, StatePartialFailure)
			monitoring.RecordRun(string(result.Status), nil)
		}
	}()

	o.setState(company, StateIdle)

	var emitMu sync.Mutex
	emit := func(src model.WebSource) {
		if onSource == nil {
			return
		}
		emitMu.Lock()
		defer emitMu.Unlock()
		onSource(src)
	}

	agents := o.agents()
	parts := &parts{}
	outcomes := make([]model.AgentOutcome, len(agents))

	o.setState(company, StateDispatching)
	var g errgroup.Group
	for i, a := range agents {
		g.Go(func() error {
			outcomes[i] = o.runAgent(ctx, a, company, parts, emit)
			return nil
		})
	}

	o.setState(company, StateAwaiting)
	_ = g.Wait()

	o.setState(company, StateMerging)
	result = parts.merge(company, o.aiInitiatives)
	result.Agents = outcomes

	status := map[string]bool{}
	result.Status = model.RunStatusDone
	for _, out := range outcomes {
		status[out.Agent] = out.OK
		if !out.OK {
			result.Status = model.RunStatusPartialFailure
		}
	}

	final := StateDone
	if result.Status == model.RunStatusPartialFailure {
		final = StatePartialFailure
	}
	o.setState(company, final)
	monitoring.RecordRun(string(result.Status), status)

	log.Info("research: run complete",
		zap.String("status", string(result.Status)),
		zap.Duration("duration", time.Since(start)),
	)
	return result
}

// runAgent contains every failure of one agent, panics included, and writes
// either the agent's sections or its placeholders into parts.
func (o *Orchestrator) runAgent(ctx context.Context, a agent, company string, p *parts, emit func(model.WebSource)) (out model.AgentOutcome) {
	out.Agent = a.id
	start := time.Now()

	defer func() {
		out.DurationMs = time.Since(start).Milliseconds()
		if r := recover(); r != nil {
			out.OK = false
			out.Error = fmt.Sprintf("panic: %v", r)
			a.degrade(p, company)
			zap.L().Error("research: agent panicked",
				zap.String("agent", a.id),
				zap.String("company", company),
				zap.Any("panic", r),
			)
		}
	}()

	if o.agentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.agentTimeout)
		defer cancel()
	}

	if err := a.run(ctx, o, p, company, emit); err != nil {
		a.degrade(p, company)
		out.Error = err.Error()
		zap.L().Warn("research: agent degraded",
			zap.String("agent", a.id),
			zap.String("company", company),
			zap.Error(err),
		)
		return out
	}
	out.OK = true
	return out
}

func (o *Orchestrator) setState(company string, s State) {
	zap.L().Debug("research: state", zap.String("company", company), zap.Stringer("state", s))
	if o.onState != nil {
		o.onState(company, s)
	}
}

// parts holds one slot per agent. Each agent writes only its own slot.
type parts struct {
	overview    model.Overview
	financial   model.FinancialAnalysis
	market      model.MarketAnalysis
	competitors model.CompetitorAnalysis
	investment  model.InvestmentAnalysis
	ai          model.AIInitiatives
}

func (p *parts) merge(company string, withAI bool) *model.ResearchResult {
	r := &model.ResearchResult{
		CompanyName: company,
		Overview:    p.overview,
		Financial:   p.financial,
		Market:      p.market,
		Competitors: p.competitors,
		Investment:  p.investment,
	}
	if withAI {
		ai := p.ai
		r.AIInitiatives = &ai
	}
	return r
}

// Placeholder returns a result made entirely of failure text.
func Placeholder(company string, withAI bool, reason string) *model.ResearchResult {
	p := &parts{}
	for _, a := range allAgents() {
		a.degrade(p, company)
	}
	r := p.merge(company, withAI)
	r.Status = model.RunStatusPartialFailure
	for _, a := range allAgents() {
		if a.id == agentAI && !withAI {
			continue
		}
		r.Agents = append(r.Agents, model.AgentOutcome{Agent: a.id, Error: reason})
	}
	return r
}
