package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	unavailable map[string]bool
}

func (f *fakeRegistry) IsAvailable(name string) bool {
	return !f.unavailable[name]
}

func TestClassifyKeywordMatching(t *testing.T) {
	d := New(nil, "")
	require.Equal(t, "code_simple", d.Classify(ClassifyInput{Title: "write a fibonacci function", Description: "in python"}))
	require.Equal(t, "security_audit", d.Classify(ClassifyInput{Title: "security audit", Description: "check for OWASP injection vulnerability"}))
	require.Equal(t, "code_complex", d.Classify(ClassifyInput{Title: "refactor the auth layer for security", Description: "critical architecture change"}))
}

func TestClassifyFallsBackWhenNoMatch(t *testing.T) {
	d := New(nil, "")
	require.Equal(t, FallbackType, d.Classify(ClassifyInput{Title: "zzz", Description: "qqq"}))
}

func TestClassifyIsDeterministic(t *testing.T) {
	d := New(nil, "")
	in := ClassifyInput{Title: "review this pull request", Description: "check for bugs"}
	first := d.Classify(in)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, d.Classify(in))
	}
}

func TestDispatchNoRegistryAlwaysAvailable(t *testing.T) {
	d := New(nil, "")
	decision := d.Dispatch(ClassifyInput{Title: "write code", Description: "implement a function"})
	require.Equal(t, "code_simple", decision.TaskType)
	require.Equal(t, "OLLAMA_WORKER", decision.Agent)
	require.False(t, decision.Fallback)
	require.False(t, decision.Busy)
}

func TestDispatchFallsBackWhenPrimaryBusy(t *testing.T) {
	reg := &fakeRegistry{unavailable: map[string]bool{"CLAUDE_LUSTRO": true}}
	d := New(reg, "")
	decision := d.Dispatch(ClassifyInput{Title: "refactor the auth layer for security", Description: "critical architecture bug fix"})
	require.Equal(t, "code_complex", decision.TaskType)
	require.True(t, decision.Fallback)
	require.Equal(t, "OLLAMA_WORKER", decision.Agent)
}

func TestDispatchBusyWhenNoAlternative(t *testing.T) {
	reg := &fakeRegistry{unavailable: map[string]bool{"CLAUDE_LUSTRO": true, "OLLAMA_WORKER": true}}
	d := New(reg, "")
	decision := d.Dispatch(ClassifyInput{Title: "refactor the auth layer for security", Description: "critical architecture bug fix"})
	require.True(t, decision.Busy)
	require.False(t, decision.Fallback)
}

func TestConfidenceLevels(t *testing.T) {
	require.Equal(t, 0.5, confidenceFor(FallbackType, 0))
	require.Equal(t, 1.0, confidenceFor("code_simple", 3))
	require.Equal(t, 0.7, confidenceFor("code_simple", 1))
}
