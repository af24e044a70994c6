package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"stakevault/core"
	"stakevault/crypto"
	"stakevault/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveGenesisPathPrecedence(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key != genesisPathEnv {
			t.Fatalf("unexpected lookup key: %s", key)
		}
		return "env-path", true
	}
	if path, err := resolveGenesisPath("cli-path", "cfg-path", lookup); err != nil || path != "cli-path" {
		t.Fatalf("flag must win: %q %v", path, err)
	}
	if path, err := resolveGenesisPath("", "cfg-path", lookup); err != nil || path != "env-path" {
		t.Fatalf("env must override config: %q %v", path, err)
	}
	empty := func(string) (string, bool) { return "", false }
	if path, err := resolveGenesisPath("", "cfg-path", empty); err != nil || path != "cfg-path" {
		t.Fatalf("config fallback: %q %v", path, err)
	}
	if _, err := resolveGenesisPath("", "", empty); err == nil {
		t.Fatalf("expected error without any genesis source")
	}
}

func TestEnsureGenesisAppliesOnce(t *testing.T) {
	owner := crypto.DeriveAddress(crypto.AccountPrefix, "owner")
	validator := crypto.DeriveAddress(crypto.ValidatorPrefix, "validator")
	doc := fmt.Sprintf("genesisTime: \"2024-01-01T00:00:00Z\"\nowner: %s\nvalidators:\n  - address: %s\n", owner, validator)
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write genesis: %v", err)
	}

	node, err := core.NewNode(storage.NewMemDB())
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	defer node.Close()
	noEnv := func(string) (string, bool) { return "", false }

	operator := crypto.DeriveAddress(crypto.AccountPrefix, "operator")
	if err := ensureGenesis(node, path, "", noEnv, operator, discardLogger()); err != nil {
		t.Fatalf("ensure genesis: %v", err)
	}
	got, err := node.Owner()
	if err != nil || !got.Equal(owner) {
		t.Fatalf("expected owner %s, got %s %v", owner, got, err)
	}
	root, _ := node.StateRoot()

	// A second start with a missing document must not fail or re-apply.
	if err := ensureGenesis(node, "/does/not/exist.yaml", "", noEnv, operator, discardLogger()); err != nil {
		t.Fatalf("initialised store must skip genesis: %v", err)
	}
	if again, _ := node.StateRoot(); string(again) != string(root) {
		t.Fatalf("state root changed on restart")
	}
}

func TestEnsureGenesisDefaultsOwnerToOperator(t *testing.T) {
	validator := crypto.DeriveAddress(crypto.ValidatorPrefix, "validator")
	doc := fmt.Sprintf("genesisTime: \"2024-01-01T00:00:00Z\"\nvalidators:\n  - address: %s\n", validator)
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write genesis: %v", err)
	}
	node, err := core.NewNode(storage.NewMemDB())
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	defer node.Close()

	operator := crypto.DeriveAddress(crypto.AccountPrefix, "operator")
	noEnv := func(string) (string, bool) { return "", false }
	if err := ensureGenesis(node, path, "", noEnv, operator, discardLogger()); err != nil {
		t.Fatalf("ensure genesis: %v", err)
	}
	got, err := node.Owner()
	if err != nil || !got.Equal(operator) {
		t.Fatalf("expected operator %s as owner, got %s %v", operator, got, err)
	}
}

type countingTicker struct{ calls atomic.Int32 }

func (c *countingTicker) Tick(context.Context) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

func TestRunTickerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tk := &countingTicker{}
	done := make(chan struct{})
	go func() {
		runTicker(ctx, tk, 5*time.Millisecond, discardLogger())
		close(done)
	}()
	deadline := time.After(2 * time.Second)
	for tk.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("ticker did not fire")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("ticker did not stop")
	}
}
