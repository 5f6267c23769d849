package debate

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
)

// Report renders a completed (or in-progress) session as a full Markdown
// document: title, per-topic analyses/rebuttals/votes/consensus/action
// items, and a closing summary.
func Report(s *Session) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# TASKFORGE DEBATE REPORT\n")
	fmt.Fprintf(&b, "**Session:** %s\n", s.ID)
	fmt.Fprintf(&b, "**Started:** %s\n", s.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
	if !s.CompletedAt.IsZero() {
		fmt.Fprintf(&b, "**Completed:** %s\n", s.CompletedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	fmt.Fprintf(&b, "**Status:** %s\n", s.Status)
	fmt.Fprintf(&b, "**Topics:** %d\n", len(s.Topics))
	fmt.Fprintf(&b, "**Agents:** %d\n\n---\n\n", len(Roster))

	for i, result := range s.Results {
		fmt.Fprintf(&b, "## Topic %d: %s\n\n", i+1, result.Topic)

		b.WriteString("### Round 1: Analysis\n")
		for _, a := range result.Analyses {
			fmt.Fprintf(&b, "\n#### %s (%s) [%s]\n%s\n", a.Agent, a.Role, a.Model, a.Content)
		}

		b.WriteString("\n### Round 2: Rebuttal\n")
		for _, r := range result.Rebuttals {
			fmt.Fprintf(&b, "\n#### %s (%s)\n%s\n", r.Agent, r.Role, r.Content)
		}

		b.WriteString("\n### Round 3: Voting\n")
		for voter, ballot := range result.Votes {
			parts := make([]string, 0, len(ballot))
			for agent, score := range ballot {
				parts = append(parts, fmt.Sprintf("%s: %d/5", agent, score))
			}
			fmt.Fprintf(&b, "- **%s**: %s\n", voter, strings.Join(parts, ", "))
		}

		b.WriteString("\n### Consensus\n")
		b.WriteString(result.Consensus)
		b.WriteString("\n")

		if len(result.ActionItems) > 0 {
			b.WriteString("\n### Action Items\n")
			for _, item := range result.ActionItems {
				fmt.Fprintf(&b, "- %s\n", item)
			}
		}

		b.WriteString("\n---\n\n")
	}

	totalActions := 0
	for _, r := range s.Results {
		totalActions += len(r.ActionItems)
	}
	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- **Topics debated:** %d\n", len(s.Results))
	fmt.Fprintf(&b, "- **Total action items:** %d\n", totalActions)
	if s.Error != "" {
		fmt.Fprintf(&b, "- **Error:** %s\n", s.Error)
	}

	return b.String()
}

// ReportHTML renders the same report through goldmark, for callers that
// want to display it directly instead of raw Markdown. The server's report
// endpoint does not use it; it always returns the Markdown from Report.
func ReportHTML(s *Session) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(Report(s)), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
