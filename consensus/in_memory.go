package consensus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/conclave/core"
	"github.com/hupe1980/conclave/internal/util"
	"github.com/hupe1980/conclave/logging"
	"github.com/hupe1980/conclave/oracle"
	"github.com/hupe1980/conclave/parse"
)

const proposalPrompt = `You are %s in a consensus round on this topic:

%s

State your independent position. Respond with:

PROPOSAL: <your position in one or two sentences>`

const feedbackPrompt = `You are %s in a consensus round on this topic:

%s

Anonymized proposals from the other participants:
%s

Give constructive feedback aimed at convergence. Respond with:

FEEDBACK: <your feedback>`

const finalizePrompt = `You are the neutral facilitator of a consensus round on this topic:

%s

Converged proposals:
%s

Synthesize the final decision. Respond with:

DECISION: <the agreed decision>
IMPLEMENTATION_STEPS:
- <step>
- <step>`

// ServiceOptions configure the InMemoryService.
type ServiceOptions struct {
	// CallTimeout bounds each per-participant oracle call.
	CallTimeout time.Duration
	// Logger receives per-participant failure diagnostics.
	Logger logging.Logger
}

type round struct {
	topic        string
	participants []core.Participant
	criteria     core.ConsensusCriteria
	proposals    map[string]string
	feedback     map[string]string
	convergence  float64
}

// InMemoryService is a local, oracle-driven reference implementation of
// core.ConsensusService. Production deployments talk to a dedicated
// consensus microservice; this implementation keeps the engine fully
// functional without one and doubles as the test double for the phase.
type InMemoryService struct {
	oracle oracle.Oracle
	opts   ServiceOptions

	mu     sync.Mutex
	rounds map[string]*round
}

// NewInMemoryService constructs the local consensus service.
func NewInMemoryService(o oracle.Oracle, optFns ...func(o *ServiceOptions)) *InMemoryService {
	opts := ServiceOptions{
		CallTimeout: 30 * time.Second,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryService{oracle: o, opts: opts, rounds: make(map[string]*round)}
}

// Initiate implements core.ConsensusService.
func (s *InMemoryService) Initiate(_ context.Context, topic string, participants []core.Participant, criteria core.ConsensusCriteria) (string, error) {
	if len(participants) < 2 {
		return "", fmt.Errorf("consensus requires at least 2 participants, got %d", len(participants))
	}
	id := util.NewID()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds[id] = &round{
		topic:        topic,
		participants: participants,
		criteria:     criteria,
		proposals:    make(map[string]string),
		feedback:     make(map[string]string),
	}
	return id, nil
}

// CollectProposals implements core.ConsensusService. Each participant is
// asked independently and concurrently; a failed call drops that
// participant's proposal only.
func (s *InMemoryService) CollectProposals(ctx context.Context, consensusID string) error {
	r, err := s.round(consensusID)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, p := range r.participants {
		wg.Add(1)
		go func(p core.Participant) {
			defer wg.Done()
			text, err := s.ask(ctx, p.Role, fmt.Sprintf(proposalPrompt, p.Role, r.topic))
			if err != nil {
				s.opts.Logger.Warn("proposal call failed", "consensus_id", consensusID, "agent_id", p.AgentID, "error", err)
				return
			}
			proposal := parse.Fields(text, parse.String("PROPOSAL", text)).String("PROPOSAL")
			s.mu.Lock()
			r.proposals[p.AgentID] = proposal
			s.mu.Unlock()
		}(p)
	}
	wg.Wait()
	return nil
}

// CollectFeedback implements core.ConsensusService. Each participant sees
// the other proposals without attribution.
func (s *InMemoryService) CollectFeedback(ctx context.Context, consensusID string) error {
	r, err := s.round(consensusID)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, p := range r.participants {
		wg.Add(1)
		go func(p core.Participant) {
			defer wg.Done()
			others := s.anonymizedProposals(r, p.AgentID)
			if others == "" {
				return
			}
			text, err := s.ask(ctx, p.Role, fmt.Sprintf(feedbackPrompt, p.Role, r.topic, others))
			if err != nil {
				s.opts.Logger.Warn("feedback call failed", "consensus_id", consensusID, "agent_id", p.AgentID, "error", err)
				return
			}
			fb := parse.Fields(text, parse.String("FEEDBACK", text)).String("FEEDBACK")
			s.mu.Lock()
			r.feedback[p.AgentID] = fb
			s.mu.Unlock()
		}(p)
	}
	wg.Wait()
	return nil
}

// AnalyzeConvergence implements core.ConsensusService. Convergence is the
// mean pairwise token overlap of the collected proposals; fewer than two
// proposals score zero.
func (s *InMemoryService) AnalyzeConvergence(_ context.Context, consensusID string) (float64, error) {
	r, err := s.round(consensusID)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	proposals := make([]string, 0, len(r.proposals))
	for _, p := range r.proposals {
		proposals = append(proposals, p)
	}
	s.mu.Unlock()

	if len(proposals) < 2 {
		r.convergence = 0
		return 0, nil
	}

	var sum float64
	var n int
	for i := 0; i < len(proposals); i++ {
		for j := i + 1; j < len(proposals); j++ {
			sum += tokenOverlap(proposals[i], proposals[j])
			n++
		}
	}
	r.convergence = sum / float64(n)
	return r.convergence, nil
}

// Finalize implements core.ConsensusService. A decision is produced only
// when the round's convergence meets the criteria threshold; otherwise
// ok=false without error.
func (s *InMemoryService) Finalize(ctx context.Context, consensusID string) (string, bool, error) {
	r, err := s.round(consensusID)
	if err != nil {
		return "", false, err
	}
	if r.convergence < r.criteria.ConvergenceThreshold || len(r.proposals) == 0 {
		return "", false, nil
	}

	text, err := s.ask(ctx, "Consensus Facilitator", fmt.Sprintf(finalizePrompt, r.topic, s.anonymizedProposals(r, "")))
	if err != nil {
		return "", false, fmt.Errorf("finalize synthesis: %w", err)
	}

	parsed := parse.Fields(text,
		parse.String("DECISION", text),
		parse.Block("IMPLEMENTATION_STEPS"),
	)
	var sb strings.Builder
	sb.WriteString(parsed.String("DECISION"))
	for _, step := range parsed.Block("IMPLEMENTATION_STEPS") {
		sb.WriteString("\n- ")
		sb.WriteString(step)
	}
	return sb.String(), true, nil
}

func (s *InMemoryService) round(consensusID string) (*round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[consensusID]
	if !ok {
		return nil, fmt.Errorf("unknown consensus id %q", consensusID)
	}
	return r, nil
}

func (s *InMemoryService) ask(ctx context.Context, role, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	return s.oracle.Generate(callCtx, role, prompt)
}

func (s *InMemoryService) anonymizedProposals(r *round, excludeAgentID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sb strings.Builder
	i := 1
	for agentID, proposal := range r.proposals {
		if agentID == excludeAgentID {
			continue
		}
		fmt.Fprintf(&sb, "%d. %s\n", i, util.Truncate(proposal, 300))
		i++
	}
	return strings.TrimRight(sb.String(), "\n")
}

// tokenOverlap computes the Jaccard similarity of the lowercase word sets of
// two texts.
func tokenOverlap(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for tok := range setA {
		if setB[tok] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,;:!?\"'()")
		if tok != "" {
			out[tok] = true
		}
	}
	return out
}
