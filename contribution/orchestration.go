package contribution

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/conclave/core"
	"github.com/hupe1980/conclave/oracle"
	"github.com/hupe1980/conclave/parse"
)

const decompositionPrompt = `You are %s, the elected leader of a multi-agent team handling this request:

%s

Your team:
%s

Decompose the request into one task per team member. Respond with:

TASK_ASSIGNMENTS:
<agent id>: <task description>
<agent id>: <task description>`

const executionPrompt = `You are %s on a multi-agent team handling this request:

%s

Your leader assigned you this task:

%s

Execute it with your expertise. Respond with:

CONTRIBUTION: <your result>
CONFIDENCE: <0.0-1.0>`

// Orchestration is the centralized strategy: the elected leader is asked
// once to decompose the request into per-agent task assignments, then each
// assigned agent executes its task concurrently.
type Orchestration struct {
	oracle oracle.Oracle
	opts   Options
}

// NewOrchestration creates the leader-directed contribution strategy.
func NewOrchestration(o oracle.Oracle, optFns ...func(o *Options)) *Orchestration {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestration{oracle: o, opts: opts}
}

// Name implements Strategy.
func (s *Orchestration) Name() string { return string(core.ModeOrchestration) }

// Collect implements Strategy. When the leader's decomposition is unusable
// every agent is assigned the original request, so the phase still produces
// contributions instead of stalling on a malformed plan.
func (s *Orchestration) Collect(ctx context.Context, sess *core.Session, _ map[string][]core.Opportunity) map[string][]core.Contribution {
	assignments := s.decompose(ctx, sess)

	var assigned []core.Agent
	for _, a := range sess.Roster {
		if _, ok := assignments[a.ID]; ok {
			assigned = append(assigned, a)
		}
	}

	return fanOut(assigned, func(a core.Agent) ([]core.Contribution, error) {
		prompt := fmt.Sprintf(executionPrompt, a.Role, sess.Request, assignments[a.ID])
		c, err := askContribution(ctx, s.oracle, a, prompt, core.ModeOrchestration, 0.8, s.opts.CallTimeout)
		if err != nil {
			return nil, err
		}
		return []core.Contribution{c}, nil
	}, s.opts.Logger, s.Name())
}

// decompose asks the leader for a task-assignment plan and resolves it
// against the roster.
func (s *Orchestration) decompose(ctx context.Context, sess *core.Session) map[string]string {
	leader := s.leader(sess)
	prompt := fmt.Sprintf(decompositionPrompt, leader.Role, sess.Request, teamSummary(sess.Roster))

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	text, err := s.oracle.Generate(callCtx, leader.Role, prompt)
	if err != nil {
		s.opts.Logger.Warn("leader decomposition failed, assigning full request to all agents", "session_id", sess.ID, "error", err)
		return broadcastAssignments(sess)
	}

	r := parse.Fields(text, parse.Block("TASK_ASSIGNMENTS"))
	assignments := make(map[string]string)
	for _, line := range r.Block("TASK_ASSIGNMENTS") {
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		target := strings.TrimSpace(line[:idx])
		task := strings.TrimSpace(line[idx+1:])
		if task == "" {
			continue
		}
		for _, a := range sess.Roster {
			if strings.EqualFold(a.ID, target) || strings.EqualFold(a.Role, target) {
				assignments[a.ID] = task
				break
			}
		}
	}
	if len(assignments) == 0 {
		s.opts.Logger.Warn("no parseable task assignments, assigning full request to all agents", "session_id", sess.ID)
		return broadcastAssignments(sess)
	}
	return assignments
}

// leader resolves the active elected leader, falling back to the first
// roster agent when no election has happened.
func (s *Orchestration) leader(sess *core.Session) core.Agent {
	if record, ok := sess.ActiveLeadership(); ok {
		if a, found := sess.AgentByID(record.LeaderID); found {
			return a
		}
	}
	return sess.Roster[0]
}

func broadcastAssignments(sess *core.Session) map[string]string {
	out := make(map[string]string, len(sess.Roster))
	for _, a := range sess.Roster {
		out[a.ID] = sess.Request
	}
	return out
}

func teamSummary(roster []core.Agent) string {
	var sb strings.Builder
	for _, a := range roster {
		fmt.Fprintf(&sb, "- %s (%s)", a.ID, a.Role)
		if len(a.ExpertiseAreas) > 0 {
			fmt.Fprintf(&sb, ": %s", strings.Join(a.ExpertiseAreas, ", "))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
