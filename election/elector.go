// Package election implements dynamic leadership election. One oracle call
// nominates a primary leader, a coordination style and an optional backup;
// the elector validates the nomination against the session roster and falls
// back to a configured default so a session always ends up with a usable
// leadership record, whatever the oracle returns.
package election

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/conclave/core"
	"github.com/hupe1980/conclave/logging"
	"github.com/hupe1980/conclave/oracle"
	"github.com/hupe1980/conclave/parse"
)

const electionPrompt = `You are facilitating a multi-agent coordination session.

Request:
%s

Available agents:
%s

Nominate the agent best suited to lead this session and the coordination
style to use. Respond with exactly these markers:

PRIMARY_LEADER: <agent id>
LEADERSHIP_STYLE: <orchestration|choreography|consensus|hybrid>
REASONING: <one or two sentences>
BACKUP_LEADER: <agent id, optional>`

// Options configure the Elector.
type Options struct {
	// DefaultLeaderID is used when the oracle nominates nobody usable.
	// Empty means the first roster agent.
	DefaultLeaderID string
	// DefaultStyle is used when no valid style is nominated.
	DefaultStyle core.CoordinationMode
	// CallTimeout bounds the election oracle call.
	CallTimeout time.Duration
	// Logger receives parse fallback and failure diagnostics.
	Logger logging.Logger
}

// Elector produces leadership records for coordination sessions.
type Elector struct {
	oracle oracle.Oracle
	opts   Options
}

// New creates an Elector with hybrid default style and a 30s call timeout.
func New(o oracle.Oracle, optFns ...func(o *Options)) *Elector {
	opts := Options{
		DefaultStyle: core.ModeHybrid,
		CallTimeout:  30 * time.Second,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Elector{oracle: o, opts: opts}
}

// Elect runs one leadership election and appends the resulting record to the
// session's history. It never fails: an oracle failure or unusable
// nomination yields a record built from defaults. The opportunity map gives
// the oracle a view of which agents currently have contribution openings.
func (e *Elector) Elect(ctx context.Context, sess *core.Session, opportunities map[string][]core.Opportunity) core.LeadershipRecord {
	prompt := fmt.Sprintf(electionPrompt, sess.Request, rosterSummary(sess.Roster, opportunities))

	callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()

	record := core.LeadershipRecord{
		LeaderID:  e.fallbackLeader(sess),
		Style:     e.opts.DefaultStyle,
		Reasoning: "default leadership applied",
		Elected:   time.Now(),
	}

	text, err := e.oracle.Generate(callCtx, "Coordination Facilitator", prompt)
	if err != nil {
		e.opts.Logger.Warn("election oracle call failed, using default leadership", "session_id", sess.ID, "error", err)
		sess.AppendLeadership(record)
		return record
	}

	r := parse.Fields(text,
		parse.String("PRIMARY_LEADER", ""),
		parse.Enum("LEADERSHIP_STYLE", string(e.opts.DefaultStyle), styleNames()...),
		parse.String("REASONING", "no reasoning provided"),
		parse.String("BACKUP_LEADER", ""),
	)

	record.Style = core.CoordinationMode(r.String("LEADERSHIP_STYLE"))
	record.Reasoning = r.String("REASONING")

	nominee := strings.TrimSpace(r.String("PRIMARY_LEADER"))
	if id, ok := resolveAgent(sess, nominee); ok {
		record.LeaderID = id
	} else if nominee != "" {
		e.opts.Logger.Warn("nominated leader not in roster, using default", "session_id", sess.ID, "nominee", nominee)
	}

	if backup, ok := resolveAgent(sess, r.String("BACKUP_LEADER")); ok && backup != record.LeaderID {
		record.BackupID = backup
	}

	sess.AppendLeadership(record)
	return record
}

// Reelect runs a fresh election after a stalled phase, appending to the
// leadership history without touching earlier records.
func (e *Elector) Reelect(ctx context.Context, sess *core.Session, opportunities map[string][]core.Opportunity, reason string) core.LeadershipRecord {
	e.opts.Logger.Info("re-electing session leadership", "session_id", sess.ID, "reason", reason)
	return e.Elect(ctx, sess, opportunities)
}

// fallbackLeader resolves the configured default leader, falling back to the
// first roster agent when the configured id is absent or unset.
func (e *Elector) fallbackLeader(sess *core.Session) string {
	if e.opts.DefaultLeaderID != "" && sess.HasAgent(e.opts.DefaultLeaderID) {
		return e.opts.DefaultLeaderID
	}
	if len(sess.Roster) > 0 {
		return sess.Roster[0].ID
	}
	return ""
}

// resolveAgent matches a nomination against the roster by id first, then by
// display role, both case-insensitive.
func resolveAgent(sess *core.Session, nominee string) (string, bool) {
	nominee = strings.TrimSpace(nominee)
	if nominee == "" {
		return "", false
	}
	for _, a := range sess.Roster {
		if strings.EqualFold(a.ID, nominee) || strings.EqualFold(a.Role, nominee) {
			return a.ID, true
		}
	}
	return "", false
}

func styleNames() []string {
	names := make([]string, len(core.LeadershipStyles))
	for i, s := range core.LeadershipStyles {
		names[i] = string(s)
	}
	return names
}

func rosterSummary(roster []core.Agent, opportunities map[string][]core.Opportunity) string {
	var sb strings.Builder
	for _, a := range roster {
		fmt.Fprintf(&sb, "- %s (%s)", a.ID, a.Role)
		if len(a.ExpertiseAreas) > 0 {
			fmt.Fprintf(&sb, ", expertise: %s", strings.Join(a.ExpertiseAreas, ", "))
		}
		if n := len(opportunities[a.ID]); n > 0 {
			fmt.Fprintf(&sb, ", open opportunities: %d", n)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
