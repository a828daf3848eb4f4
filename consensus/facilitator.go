// Package consensus identifies contested topics across the collected
// contributions and drives each one through a Delphi-style consensus
// service: initiate, collect independent proposals, collect anonymized
// feedback, analyze convergence, finalize.
//
// Insufficient consensus is an expected outcome, not a fault: a topic whose
// finalize step returns nothing is dropped silently and the session simply
// records no decision for it. An unreachable consensus service skips the
// whole phase; the pipeline continues with zero decisions.
package consensus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/conclave/core"
	"github.com/hupe1980/conclave/internal/util"
	"github.com/hupe1980/conclave/logging"
	"github.com/hupe1980/conclave/oracle"
	"github.com/hupe1980/conclave/parse"
)

const topicPrompt = `A multi-agent team produced the following contributions for this request:

Request: %s

Contributions:
%s

Name up to %d topics requiring consensus: conflicting recommendations,
strategic choices, or resource trade-offs. Respond with:

TOPIC 1: <topic>
TOPIC 2: <topic, optional>
TOPIC 3: <topic, optional>`

// Options configure the Facilitator.
type Options struct {
	// MaxTopics bounds how many contested topics one session pursues.
	MaxTopics int
	// Criteria is passed through to the consensus service per topic.
	Criteria core.ConsensusCriteria
	// CallTimeout bounds the topic identification oracle call.
	CallTimeout time.Duration
	// Logger receives skip and failure diagnostics.
	Logger logging.Logger
}

// Facilitator runs the consensus phase for one session.
type Facilitator struct {
	oracle oracle.Oracle
	svc    core.ConsensusService
	opts   Options
}

// NewFacilitator creates a Facilitator with at most 3 topics and a 0.75
// convergence threshold over at most 3 rounds.
func NewFacilitator(o oracle.Oracle, svc core.ConsensusService, optFns ...func(o *Options)) *Facilitator {
	opts := Options{
		MaxTopics: 3,
		Criteria: core.ConsensusCriteria{
			ConvergenceThreshold: 0.75,
			MaxRounds:            3,
		},
		CallTimeout: 30 * time.Second,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Facilitator{oracle: o, svc: svc, opts: opts}
}

// Facilitate identifies contested topics and drives each through the
// consensus service, recording finalized decisions on the session. It never
// fails the phase: every error path degrades to fewer (or zero) decisions.
func (f *Facilitator) Facilitate(ctx context.Context, sess *core.Session) []core.Decision {
	if f.svc == nil {
		f.opts.Logger.Warn("no consensus service configured, skipping consensus phase", "session_id", sess.ID)
		return nil
	}

	eligible := sess.ContributingAgents()
	if len(eligible) < 2 {
		f.opts.Logger.Info("fewer than two contributing agents, skipping consensus phase", "session_id", sess.ID)
		return nil
	}

	participants := make([]core.Participant, 0, len(eligible))
	for _, id := range eligible {
		agent, _ := sess.AgentByID(id)
		participants = append(participants, core.Participant{AgentID: id, Role: agent.Role})
	}

	var decisions []core.Decision
	for _, topic := range f.identifyTopics(ctx, sess) {
		decision, ok := f.runTopic(ctx, sess, topic, participants)
		if !ok {
			continue
		}
		sess.AddDecision(decision)
		decisions = append(decisions, decision)
	}
	return decisions
}

// identifyTopics asks the oracle to name contested topics across all
// contribution text. An oracle failure yields no topics.
func (f *Facilitator) identifyTopics(ctx context.Context, sess *core.Session) []string {
	callCtx, cancel := context.WithTimeout(ctx, f.opts.CallTimeout)
	defer cancel()

	text, err := f.oracle.Generate(callCtx, "Consensus Facilitator", fmt.Sprintf(topicPrompt, sess.Request, contributionDigest(sess), f.opts.MaxTopics))
	if err != nil {
		f.opts.Logger.Warn("topic identification failed, skipping consensus phase", "session_id", sess.ID, "error", err)
		return nil
	}

	specs := make([]parse.Spec, 0, f.opts.MaxTopics)
	for i := 1; i <= f.opts.MaxTopics; i++ {
		specs = append(specs, parse.String(fmt.Sprintf("TOPIC %d", i), ""))
	}
	r := parse.Fields(text, specs...)

	var topics []string
	for i := 1; i <= f.opts.MaxTopics; i++ {
		if topic := strings.TrimSpace(r.String(fmt.Sprintf("TOPIC %d", i))); topic != "" {
			topics = append(topics, topic)
		}
	}
	return topics
}

// runTopic drives one topic through the full service round-trip. A missing
// decision is an expected outcome; only the initiated id is retained.
func (f *Facilitator) runTopic(ctx context.Context, sess *core.Session, topic string, participants []core.Participant) (core.Decision, bool) {
	consensusID, err := f.svc.Initiate(ctx, topic, participants, f.opts.Criteria)
	if err != nil {
		f.opts.Logger.Warn("consensus initiate failed, dropping topic", "session_id", sess.ID, "topic", topic, "error", err)
		return core.Decision{}, false
	}
	sess.RecordConsensusID(consensusID)

	if err := f.svc.CollectProposals(ctx, consensusID); err != nil {
		f.opts.Logger.Warn("proposal collection failed, dropping topic", "consensus_id", consensusID, "error", err)
		return core.Decision{}, false
	}
	if err := f.svc.CollectFeedback(ctx, consensusID); err != nil {
		f.opts.Logger.Warn("feedback collection failed, dropping topic", "consensus_id", consensusID, "error", err)
		return core.Decision{}, false
	}

	score, err := f.svc.AnalyzeConvergence(ctx, consensusID)
	if err != nil {
		f.opts.Logger.Warn("convergence analysis failed, dropping topic", "consensus_id", consensusID, "error", err)
		return core.Decision{}, false
	}

	payload, ok, err := f.svc.Finalize(ctx, consensusID)
	if err != nil || !ok {
		f.opts.Logger.Info("consensus not reached for topic", "consensus_id", consensusID, "topic", topic, "convergence", score)
		return core.Decision{}, false
	}

	ids := make([]string, len(participants))
	for i, p := range participants {
		ids[i] = p.AgentID
	}
	return core.Decision{
		ConsensusID:  consensusID,
		Topic:        topic,
		Participants: ids,
		Convergence:  score,
		Payload:      payload,
		Decided:      time.Now(),
	}, true
}

func contributionDigest(sess *core.Session) string {
	var sb strings.Builder
	for agentID, list := range sess.Contributions() {
		for _, c := range list {
			if strings.TrimSpace(c.Content) == "" {
				continue
			}
			fmt.Fprintf(&sb, "- %s: %s\n", agentID, util.Truncate(c.Content, 400))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
