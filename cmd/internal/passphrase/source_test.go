package passphrase

import (
	"bytes"
	"strings"
	"testing"
)

func scripted(answers ...string) func(int) ([]byte, error) {
	return func(int) ([]byte, error) {
		next := answers[0]
		answers = answers[1:]
		return []byte(next), nil
	}
}

func TestEnvironmentWins(t *testing.T) {
	t.Setenv("VAULT_TEST_PASS", "from-env")
	src := NewSource("VAULT_TEST_PASS", "operator")
	src.isTerminal = func(int) bool { t.Fatalf("terminal must not be consulted"); return false }
	got, err := src.Get()
	if err != nil || got != "from-env" {
		t.Fatalf("expected env passphrase, got %q %v", got, err)
	}
}

func TestEmptyEnvironmentRejected(t *testing.T) {
	t.Setenv("VAULT_TEST_PASS", "  ")
	if _, err := NewSource("VAULT_TEST_PASS", "operator").Get(); err == nil {
		t.Fatalf("expected empty env passphrase to be rejected")
	}
}

func TestNoTerminal(t *testing.T) {
	src := NewSource("VAULT_TEST_UNSET_PASS", "operator")
	src.isTerminal = func(int) bool { return false }
	_, err := src.Get()
	if err == nil || !strings.Contains(err.Error(), "VAULT_TEST_UNSET_PASS") {
		t.Fatalf("expected hint about env var, got %v", err)
	}
}

func TestPromptWithConfirmation(t *testing.T) {
	var out bytes.Buffer
	src := NewSource("", "wallet").WithConfirmation()
	src.isTerminal = func(int) bool { return true }
	src.readSecret = scripted("hunter2", "hunter2")
	src.prompt = &out
	got, err := src.Get()
	if err != nil || got != "hunter2" {
		t.Fatalf("expected prompted passphrase, got %q %v", got, err)
	}
	if !strings.Contains(out.String(), "Repeat wallet passphrase") {
		t.Fatalf("expected confirmation prompt, got %q", out.String())
	}
	// Cached; a second read would exhaust the script.
	if again, err := src.Get(); err != nil || again != "hunter2" {
		t.Fatalf("expected cached passphrase, got %q %v", again, err)
	}
}

func TestPromptMismatch(t *testing.T) {
	src := NewSource("", "wallet").WithConfirmation()
	src.isTerminal = func(int) bool { return true }
	src.readSecret = scripted("one", "two")
	src.prompt = &bytes.Buffer{}
	if _, err := src.Get(); err == nil {
		t.Fatalf("expected mismatch error")
	}
}
