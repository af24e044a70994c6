package rpc

import (
	"context"
	"time"

	"stakevault/core"
	"stakevault/crypto"
	"stakevault/export"
	"stakevault/indexer"
)

// Backend is the vault node surface served over HTTP.
type Backend interface {
	Apply(ctx context.Context, instr core.Instruction) (*core.Receipt, error)
	Query(ctx context.Context, name string, params map[string]string) (interface{}, error)
	Subscribe(buffer int) (<-chan *core.Receipt, func())
	Owner() (crypto.Address, error)
}

// ReceiptIndex stores and searches receipts.
type ReceiptIndex interface {
	Record(ctx context.Context, receipt *core.Receipt) error
	Receipts(ctx context.Context, filter indexer.ReceiptFilter) ([]indexer.ReceiptRecord, error)
}

// Exporter writes a ledger snapshot on demand.
type Exporter interface {
	RunOnce(ctx context.Context) (*export.Manifest, error)
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Class   string `json:"class,omitempty"`
	Message string `json:"message"`
}

// QueryResult wraps a query response.
type QueryResult struct {
	Query  string      `json:"query"`
	Result interface{} `json:"result"`
}

// StreamMessage is one websocket frame of the receipt stream.
type StreamMessage struct {
	Receipt *core.Receipt `json:"receipt"`
}

// ExportResult reports an on-demand export.
type ExportResult struct {
	Dir       string         `json:"dir"`
	StateRoot string         `json:"stateRoot"`
	Files     map[string]int `json:"files"`
}

// ReceiptSummary is an indexed receipt as returned by /v1/receipts.
type ReceiptSummary struct {
	ID          string            `json:"id"`
	Instruction string            `json:"instruction"`
	Sender      string            `json:"sender,omitempty"`
	Success     bool              `json:"success"`
	Code        string            `json:"code,omitempty"`
	StateRoot   string            `json:"stateRoot,omitempty"`
	AppliedAt   string            `json:"appliedAt"`
	Events      []ReceiptEventLog `json:"events,omitempty"`
}

// ReceiptEventLog is an indexed event with its raw JSON attributes.
type ReceiptEventLog struct {
	Type       string `json:"type"`
	Attributes string `json:"attributes"`
}

func summarizeReceipt(rec indexer.ReceiptRecord) ReceiptSummary {
	out := ReceiptSummary{
		ID:          rec.ID.String(),
		Instruction: rec.Instruction,
		Sender:      rec.Sender,
		Success:     rec.Success,
		Code:        rec.Code,
		StateRoot:   rec.StateRoot,
		AppliedAt:   rec.AppliedAt.UTC().Format(time.RFC3339),
	}
	for _, evt := range rec.Events {
		out.Events = append(out.Events, ReceiptEventLog{Type: evt.Type, Attributes: evt.Attributes})
	}
	return out
}
