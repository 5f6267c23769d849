package watcher

import "testing"

func TestParseResultFilename(t *testing.T) {
	taskID, agent, ok := ParseResultFilename("RESULT_a1b2c3d4e5f6_FROM_CLAUDE.md")
	if !ok || taskID != "a1b2c3d4e5f6" || agent != "CLAUDE" {
		t.Fatalf("got (%q, %q, %v)", taskID, agent, ok)
	}
}

func TestParseResultFilenameRejectsOther(t *testing.T) {
	if _, _, ok := ParseResultFilename("TASK_a1b2c3d4e5f6_FOR_CLAUDE.md"); ok {
		t.Fatal("expected no match for a TASK_ filename")
	}
	if _, _, ok := ParseResultFilename("RESULT_short_FROM_CLAUDE.md"); ok {
		t.Fatal("expected no match for a non-12-hex task id")
	}
}

func TestIsCodexResultFilename(t *testing.T) {
	if !IsCodexResultFilename("CODEX_RESULT_20260731_120000.md") {
		t.Fatal("expected match")
	}
	if IsCodexResultFilename("RESULT_abc_FROM_CODEX.md") {
		t.Fatal("expected no match")
	}
}

func TestRegistryAgentName(t *testing.T) {
	cases := map[string]string{
		"CLAUDE": "CLAUDE_LUSTRO",
		"GEMINI": "GEMINI_ARCHITECT",
		"CODEX":  "CODEX",
	}
	for in, want := range cases {
		if got := registryAgentName(in); got != want {
			t.Fatalf("registryAgentName(%q) = %q, want %q", in, got, want)
		}
	}
}
