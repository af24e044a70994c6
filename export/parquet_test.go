package export

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"stakevault/core"
)

func testSnapshot() *core.Snapshot {
	return &core.Snapshot{
		TakenAt:   time.Date(2025, 5, 2, 8, 30, 0, 0, time.UTC),
		StateRoot: []byte{0xbe, 0xef},
		Accounts: []core.AccountView{
			{Address: "vault1alice", Base: "100", Shares: "90", Assets: "100"},
			{Address: "vault1bob", Base: "50", Shares: "45", Assets: "50"},
		},
		Validators: []core.ValidatorView{{Address: "valoper1a", Status: "active", Delegated: "150", Unbonding: "0"}},
		Allocations: []core.AllocationView{{
			Distributor: "vault1alice",
			Recipient:   "vault1bob",
			Amount:      "10",
			Price:       core.PriceView{Wad: "1000000000000000000"},
			Reward:      "0",
		}},
		Claims: []core.UnbondingView{{ID: 1, Owner: "vault1bob", Validator: "valoper1a", Amount: "5", Owed: "5", ReleaseAt: 1746178200}},
	}
}

func readAccounts(t *testing.T, path string) []accountRow {
	t.Helper()
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		t.Fatalf("open parquet: %v", err)
	}
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(accountRow), 1)
	if err != nil {
		t.Fatalf("parquet reader: %v", err)
	}
	defer pr.ReadStop()
	rows := make([]accountRow, pr.GetNumRows())
	if err := pr.Read(&rows); err != nil {
		t.Fatalf("read rows: %v", err)
	}
	return rows
}

func TestWriteSnapshot(t *testing.T) {
	base := t.TempDir()
	manifest, err := WriteSnapshot(base, testSnapshot())
	if err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	if manifest.Dir != filepath.Join(base, "20250502T083000Z") {
		t.Fatalf("unexpected export dir: %s", manifest.Dir)
	}
	if manifest.StateRoot != "beef" {
		t.Fatalf("unexpected state root: %s", manifest.StateRoot)
	}
	want := map[string]int{AccountsFile: 2, ValidatorsFile: 1, AllocationsFile: 1, ClaimsFile: 1}
	for name, count := range want {
		if manifest.Files[name] != count {
			t.Fatalf("%s: expected %d rows, got %d", name, count, manifest.Files[name])
		}
	}

	rows := readAccounts(t, filepath.Join(manifest.Dir, AccountsFile))
	if len(rows) != 2 {
		t.Fatalf("expected 2 account rows, got %d", len(rows))
	}
	if rows[0].Address != "vault1alice" || rows[0].Shares != "90" || rows[0].TakenAt != "2025-05-02T08:30:00Z" {
		t.Fatalf("unexpected account row: %+v", rows[0])
	}
}

func TestWriteSnapshotEmptyTables(t *testing.T) {
	snap := &core.Snapshot{TakenAt: time.Unix(0, 0)}
	manifest, err := WriteSnapshot(t.TempDir(), snap)
	if err != nil {
		t.Fatalf("write empty snapshot: %v", err)
	}
	if rows := readAccounts(t, filepath.Join(manifest.Dir, AccountsFile)); len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
}

type staticSource struct{ snap *core.Snapshot }

func (s staticSource) Snapshot(context.Context) (*core.Snapshot, error) { return s.snap, nil }

func TestSchedulerRunOnce(t *testing.T) {
	s := NewScheduler(staticSource{snap: testSnapshot()}, t.TempDir(), time.Hour, nil)
	manifest, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if manifest.Files[ValidatorsFile] != 1 {
		t.Fatalf("unexpected manifest: %+v", manifest)
	}
	// A cancelled context stops Start immediately.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Start(ctx)
}
