package debate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corrinhale/taskforge/internal/bridge"
)

// stubOllama answers every /api/generate call with a canned response keyed
// off the request's system prompt so each agent's "voice" differs slightly,
// which is enough to exercise the round fan-out and vote parsing.
func stubOllama(t *testing.T, respond func(reqBody map[string]any) string) *bridge.OllamaBridge {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		resp := map[string]any{"response": respond(body), "eval_count": 1, "eval_duration": 1}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return bridge.NewOllamaBridge(srv.URL, "phi4-mini", 5*time.Second)
}

func TestEngineRunsFullTopicAcrossAllRounds(t *testing.T) {
	ob := stubOllama(t, func(body map[string]any) string {
		prompt, _ := body["prompt"].(string)
		if containsVoteInstruction(prompt) {
			return `{"votes": {"INZYNIER_PERF": 5, "TESTER_QA": 2}}`
		}
		return "a reasonable analysis or rebuttal"
	})

	e := NewEngine(ob, 0)
	s := e.Start(t.Context(), []string{"should we add metrics?"})

	require.Equal(t, StatusCompleted, s.Status)
	require.Len(t, s.Results, 1)

	result := s.Results[0]
	require.Len(t, result.Analyses, len(Roster))
	require.Len(t, result.Rebuttals, len(Roster))
	require.Len(t, result.Votes, len(Roster))
	require.NotEmpty(t, result.Consensus)
	require.LessOrEqual(t, len(result.ActionItems), 3)

	for _, ballot := range result.Votes {
		for agent := range ballot {
			require.NotEqual(t, "self", agent)
		}
	}
}

func containsVoteInstruction(prompt string) bool {
	return len(prompt) > 0 && stringContains(prompt, "exactly one JSON object")
}

func stringContains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestEngineDegradesGracefullyOnAgentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	ob := bridge.NewOllamaBridge(srv.URL, "phi4-mini", 5*time.Second)

	e := NewEngine(ob, 0)
	s := e.Start(t.Context(), []string{"topic under failure"})

	require.Equal(t, StatusCompleted, s.Status)
	require.Len(t, s.Results, 1)
	for _, a := range s.Results[0].Analyses {
		require.Contains(t, a.Content, "error:")
	}
}

func TestParseVotesClampsAndDiscardsSelfAndUnknown(t *testing.T) {
	roster := []string{"A", "B", "C"}
	content := `noise before {"votes": {"A": 10, "B": -3, "C": 4, "D": 5}} noise after`

	votes := parseVotes(content, "A", roster)

	require.NotContains(t, votes, "A") // self-vote discarded
	require.Equal(t, 1, votes["B"])    // clamped to 1
	require.Equal(t, 4, votes["C"])
	require.NotContains(t, votes, "D") // unknown agent discarded
}

func TestParseVotesMalformedJSONYieldsEmptyMap(t *testing.T) {
	votes := parseVotes("not json at all", "A", []string{"A", "B"})
	require.Empty(t, votes)
}

func TestCompileConsensusRanksDescendingAndCapsActionItemsAtThree(t *testing.T) {
	votes := map[string]map[string]int{
		"A": {"B": 5, "C": 1, "D": 3},
		"B": {"C": 5, "D": 4},
	}
	analyses := []AgentResponse{
		{Agent: "B", Content: "B's proposal"},
		{Agent: "C", Content: "C's proposal"},
		{Agent: "D", Content: "D's proposal"},
	}

	consensus, items := compileConsensus(votes, analyses)

	require.Contains(t, consensus, "C: 6")
	require.LessOrEqual(t, len(items), 3)
}

func TestReportRendersTopicsAndSummary(t *testing.T) {
	s := &Session{
		ID:     "sess1",
		Status: StatusCompleted,
		Topics: []string{"topic one"},
		Results: []TopicResult{
			{
				Topic:       "topic one",
				Analyses:    []AgentResponse{{Agent: "A", Role: "role", Content: "analysis", Model: "m"}},
				Rebuttals:   []AgentResponse{{Agent: "A", Role: "role", Content: "rebuttal"}},
				Votes:       map[string]map[string]int{"A": {"B": 3}},
				Consensus:   "A wins",
				ActionItems: []string{"A: do the thing"},
			},
		},
	}

	out := Report(s)
	require.Contains(t, out, "TASKFORGE DEBATE REPORT")
	require.Contains(t, out, "Topic 1: topic one")
	require.Contains(t, out, "Round 1: Analysis")
	require.Contains(t, out, "Round 3: Voting")
	require.Contains(t, out, "Total action items:")
}
