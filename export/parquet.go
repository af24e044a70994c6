// Package export writes point-in-time ledger snapshots as parquet files for
// offline reconciliation.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"stakevault/core"
)

const (
	AccountsFile    = "accounts.parquet"
	ValidatorsFile  = "validators.parquet"
	AllocationsFile = "allocations.parquet"
	ClaimsFile      = "claims.parquet"
)

// Amounts are decimal strings.

type accountRow struct {
	Address string `parquet:"name=address, type=BYTE_ARRAY, convertedtype=UTF8"`
	Base    string `parquet:"name=base, type=BYTE_ARRAY, convertedtype=UTF8"`
	Shares  string `parquet:"name=shares, type=BYTE_ARRAY, convertedtype=UTF8"`
	Assets  string `parquet:"name=assets, type=BYTE_ARRAY, convertedtype=UTF8"`
	TakenAt string `parquet:"name=taken_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type validatorRow struct {
	Address   string `parquet:"name=address, type=BYTE_ARRAY, convertedtype=UTF8"`
	Status    string `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	Delegated string `parquet:"name=delegated, type=BYTE_ARRAY, convertedtype=UTF8"`
	Unbonding string `parquet:"name=unbonding, type=BYTE_ARRAY, convertedtype=UTF8"`
	TakenAt   string `parquet:"name=taken_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type allocationRow struct {
	Distributor string `parquet:"name=distributor, type=BYTE_ARRAY, convertedtype=UTF8"`
	Recipient   string `parquet:"name=recipient, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount      string `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	PriceWad    string `parquet:"name=price_wad, type=BYTE_ARRAY, convertedtype=UTF8"`
	Reward      string `parquet:"name=reward, type=BYTE_ARRAY, convertedtype=UTF8"`
	TakenAt     string `parquet:"name=taken_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type claimRow struct {
	ID        int64  `parquet:"name=id, type=INT64"`
	Owner     string `parquet:"name=owner, type=BYTE_ARRAY, convertedtype=UTF8"`
	Validator string `parquet:"name=validator, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount    string `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	Owed      string `parquet:"name=owed, type=BYTE_ARRAY, convertedtype=UTF8"`
	ReleaseAt int64  `parquet:"name=release_at, type=INT64"`
	Matured   bool   `parquet:"name=matured, type=BOOLEAN"`
	TakenAt   string `parquet:"name=taken_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// Manifest lists the files produced by one export.
type Manifest struct {
	Dir       string
	StateRoot string
	Files     map[string]int
}

// WriteSnapshot writes snap into a new directory under baseDir named after
// the snapshot time. Each table gets its own file; the row count per file is
// returned in the manifest.
func WriteSnapshot(baseDir string, snap *core.Snapshot) (*Manifest, error) {
	if snap == nil {
		return nil, fmt.Errorf("export: snapshot required")
	}
	dir := filepath.Join(baseDir, snap.TakenAt.UTC().Format("20060102T150405Z"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create dir: %w", err)
	}
	takenAt := snap.TakenAt.UTC().Format(time.RFC3339)
	manifest := &Manifest{Dir: dir, StateRoot: fmt.Sprintf("%x", snap.StateRoot), Files: make(map[string]int)}

	accounts := make([]interface{}, 0, len(snap.Accounts))
	for _, a := range snap.Accounts {
		accounts = append(accounts, &accountRow{Address: a.Address, Base: a.Base, Shares: a.Shares, Assets: a.Assets, TakenAt: takenAt})
	}
	validators := make([]interface{}, 0, len(snap.Validators))
	for _, v := range snap.Validators {
		validators = append(validators, &validatorRow{Address: v.Address, Status: v.Status, Delegated: v.Delegated, Unbonding: v.Unbonding, TakenAt: takenAt})
	}
	allocations := make([]interface{}, 0, len(snap.Allocations))
	for _, a := range snap.Allocations {
		allocations = append(allocations, &allocationRow{
			Distributor: a.Distributor,
			Recipient:   a.Recipient,
			Amount:      a.Amount,
			PriceWad:    a.Price.Wad,
			Reward:      a.Reward,
			TakenAt:     takenAt,
		})
	}
	claims := make([]interface{}, 0, len(snap.Claims))
	for _, c := range snap.Claims {
		claims = append(claims, &claimRow{
			ID:        int64(c.ID),
			Owner:     c.Owner,
			Validator: c.Validator,
			Amount:    c.Amount,
			Owed:      c.Owed,
			ReleaseAt: c.ReleaseAt,
			Matured:   c.Matured,
			TakenAt:   takenAt,
		})
	}

	tables := []struct {
		name   string
		schema interface{}
		rows   []interface{}
	}{
		{AccountsFile, new(accountRow), accounts},
		{ValidatorsFile, new(validatorRow), validators},
		{AllocationsFile, new(allocationRow), allocations},
		{ClaimsFile, new(claimRow), claims},
	}
	for _, table := range tables {
		if err := writeParquet(filepath.Join(dir, table.name), table.schema, table.rows); err != nil {
			return nil, err
		}
		manifest.Files[table.name] = len(table.rows)
	}
	return manifest, nil
}

func writeParquet(path string, schema interface{}, rows []interface{}) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, schema, 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("export: parquet schema: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("export: parquet write %s: %w", filepath.Base(path), err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("export: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("export: close parquet file: %w", err)
	}
	return nil
}
