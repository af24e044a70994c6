package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stakevault/core"
)

const defaultLimit = 100

// Open connects to the index database. Driver is sqlite or postgres.
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	return db, nil
}

// Store persists receipts published by the node so they can be searched
// without replaying the ledger.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New migrates db and returns a store over it.
func New(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Record stores a receipt and its events in one transaction. Recording the
// same receipt twice is a no-op.
func (s *Store) Record(ctx context.Context, receipt *core.Receipt) error {
	if receipt == nil {
		return nil
	}
	record, err := toRecord(receipt)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ReceiptRecord{}).Where("id = ?", record.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		return tx.Create(record).Error
	})
}

func toRecord(receipt *core.Receipt) (*ReceiptRecord, error) {
	record := &ReceiptRecord{
		ID:          receipt.ID,
		Instruction: receipt.Instruction,
		Sender:      receipt.Sender,
		Success:     receipt.Success,
		Code:        receipt.Code,
		Class:       receipt.Class,
		Error:       receipt.Error,
		Matured:     receipt.Matured,
		StateRoot:   receipt.StateRoot,
		AppliedAt:   receipt.AppliedAt.UTC(),
	}
	if receipt.Result != nil {
		raw, err := json.Marshal(receipt.Result)
		if err != nil {
			return nil, fmt.Errorf("indexer: encode result: %w", err)
		}
		record.Result = string(raw)
	}
	for i, evt := range receipt.Events {
		if evt == nil {
			continue
		}
		attrs, err := json.Marshal(evt.Attributes)
		if err != nil {
			return nil, fmt.Errorf("indexer: encode event: %w", err)
		}
		record.Events = append(record.Events, EventRecord{
			ReceiptID:  receipt.ID,
			Seq:        i,
			Type:       evt.Type,
			Attributes: string(attrs),
			AppliedAt:  record.AppliedAt,
		})
	}
	return record, nil
}

// ReceiptFilter narrows Receipts. Zero fields match everything.
type ReceiptFilter struct {
	Sender      string
	Instruction string
	FailedOnly  bool
	Limit       int
}

// Receipts returns matching receipts, newest first, with their events.
func (s *Store) Receipts(ctx context.Context, filter ReceiptFilter) ([]ReceiptRecord, error) {
	q := s.db.WithContext(ctx).Model(&ReceiptRecord{}).Preload("Events", func(db *gorm.DB) *gorm.DB {
		return db.Order("seq ASC")
	})
	if filter.Sender != "" {
		q = q.Where("sender = ?", filter.Sender)
	}
	if filter.Instruction != "" {
		q = q.Where("instruction = ?", filter.Instruction)
	}
	if filter.FailedOnly {
		q = q.Where("success = ?", false)
	}
	var out []ReceiptRecord
	err := q.Order("applied_at DESC").Limit(limitOf(filter.Limit)).Find(&out).Error
	return out, err
}

// Events returns events of the given type, newest first. An empty type
// matches all.
func (s *Store) Events(ctx context.Context, eventType string, limit int) ([]EventRecord, error) {
	q := s.db.WithContext(ctx).Model(&EventRecord{})
	if eventType != "" {
		q = q.Where("type = ?", eventType)
	}
	var out []EventRecord
	err := q.Order("applied_at DESC").Order("seq DESC").Limit(limitOf(limit)).Find(&out).Error
	return out, err
}

// Run records receipts from the stream until ctx ends or the stream closes.
// Failures are logged and do not stop the loop.
func (s *Store) Run(ctx context.Context, receipts <-chan *core.Receipt) {
	for {
		select {
		case <-ctx.Done():
			return
		case receipt, ok := <-receipts:
			if !ok {
				return
			}
			if err := s.Record(ctx, receipt); err != nil {
				s.logger.Warn("indexer record failed",
					slog.String("receipt", receipt.ID.String()),
					slog.String("instruction", receipt.Instruction),
					slog.Any("error", err))
			}
		}
	}
}

func limitOf(limit int) int {
	if limit <= 0 || limit > 1000 {
		return defaultLimit
	}
	return limit
}
