// Package decider provides DecisionProvider implementations for
// simulation: a func adapter and a scripted provider that stands in for
// the coaching backend.
package decider

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

// Func adapts a plain function to ports.DecisionProvider.
type Func func(ctx context.Context, req ports.DecisionRequest) (ports.DecisionResponse, error)

// Decide implements ports.DecisionProvider.
func (f Func) Decide(ctx context.Context, req ports.DecisionRequest) (ports.DecisionResponse, error) {
	return f(ctx, req)
}

// Scripted replays authored responses keyed by moment ID, consuming each
// moment's queue in order and repeating the last entry once exhausted.
// Moments without a script fall through to a synthetic ADVANCE that
// mimics a cooperative backend: capture moments report the lens's
// required metrics as newly known, so scripted runs actually progress
// through their gates.
type Scripted struct {
	mu      sync.Mutex
	scripts map[string][]ports.DecisionResponse
	served  map[string]int
}

// NewScripted creates an empty scripted provider.
func NewScripted() *Scripted {
	return &Scripted{
		scripts: make(map[string][]ports.DecisionResponse),
		served:  make(map[string]int),
	}
}

// On appends a response to a moment's script.
func (s *Scripted) On(momentID string, resp ports.DecisionResponse) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[momentID] = append(s.scripts[momentID], resp)
	return s
}

// Decide implements ports.DecisionProvider.
func (s *Scripted) Decide(ctx context.Context, req ports.DecisionRequest) (ports.DecisionResponse, error) {
	if req.Moment == nil {
		return ports.DecisionResponse{}, fmt.Errorf("decision request without a moment")
	}

	s.mu.Lock()
	script, ok := s.scripts[req.Moment.ID]
	if ok {
		i := s.served[req.Moment.ID]
		if i >= len(script) {
			i = len(script) - 1
		} else {
			s.served[req.Moment.ID]++
		}
		s.mu.Unlock()
		return script[i], nil
	}
	s.mu.Unlock()

	return synthesize(req), nil
}

// synthesize builds the default cooperative answer.
func synthesize(req ports.DecisionRequest) ports.DecisionResponse {
	resp := ports.DecisionResponse{
		Decision: domain.TurnDecision{
			Decision:  domain.DecisionAdvance,
			Reasoning: fmt.Sprintf("scripted default for %s", req.Moment.ID),
		},
		AgentMessage: req.Moment.Prompt,
	}

	if req.Moment.Kind == domain.KindBaselineCapture && req.Lens != nil {
		for _, f := range req.Lens.BaselineMetrics {
			id, optional := splitOptional(f)
			if optional {
				continue
			}
			if !req.Ledger.HasFact(id) {
				resp.Decision.NewFacts = append(resp.Decision.NewFacts, id)
			}
		}
	}
	return resp
}

func splitOptional(f domain.FactID) (domain.FactID, bool) {
	const suffix = "?"
	raw := string(f)
	if len(raw) > 0 && raw[len(raw)-1:] == suffix {
		return domain.FactID(raw[:len(raw)-1]), true
	}
	return f, false
}
