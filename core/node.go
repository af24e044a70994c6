package core

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"stakevault/core/events"
	"stakevault/core/genesis"
	"stakevault/core/state"
	"stakevault/crypto"
	nativecommon "stakevault/native/common"
	"stakevault/native/vault"
	"stakevault/native/whitelist"
	"stakevault/observability"
	"stakevault/storage"
)

const tracerName = "stakevault/core"

// Node owns the vault state and serialises every instruction against it.
// Each Apply runs inside a state journal that is committed in one batch on
// success and discarded on failure.
type Node struct {
	mu        sync.Mutex
	db        storage.Database
	state     *state.Manager
	vault     *vault.Engine
	whitelist *whitelist.Engine
	recorder  *events.Recorder

	quota        nativecommon.Quota
	now          func() time.Time
	allowMigrate bool

	logger       *slog.Logger
	tracer       trace.Tracer
	metrics      *observability.VaultMetrics
	eventMetrics eventSink
	applied      metric.Int64Counter

	subsMu  sync.RWMutex
	subs    map[uint64]chan *Receipt
	nextSub uint64
}

type eventSink interface {
	RecordEvent(eventType string)
	RecordDrop()
}

// Option customises a Node.
type Option func(*Node)

// WithClock overrides the wall clock used for unbonding maturity and quotas.
func WithClock(now func() time.Time) Option {
	return func(n *Node) {
		if now != nil {
			n.now = now
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithQuota enforces per-sender request and volume limits on user
// instructions.
func WithQuota(q nativecommon.Quota) Option {
	return func(n *Node) { n.quota = q }
}

// WithAllowMigrate tolerates an on-disk schema version mismatch.
func WithAllowMigrate(allow bool) Option {
	return func(n *Node) { n.allowMigrate = allow }
}

// WithMetrics enables the prometheus collectors.
func WithMetrics() Option {
	return func(n *Node) {
		n.metrics = observability.Vault()
		n.eventMetrics = observability.Events()
	}
}

// NewNode opens the vault state held in db.
func NewNode(db storage.Database, opts ...Option) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database must not be nil")
	}
	n := &Node{
		db:       db,
		state:    state.NewManager(db),
		recorder: &events.Recorder{},
		now:      time.Now,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		subs:     make(map[uint64]chan *Receipt),
	}
	for _, opt := range opts {
		opt(n)
	}
	if err := state.EnsureStateVersion(n.state, n.allowMigrate); err != nil {
		return nil, err
	}
	counter, err := otel.Meter(tracerName).Int64Counter("stakevault.instructions.applied",
		metric.WithDescription("Instructions applied by the node, by type and outcome."))
	if err != nil {
		return nil, fmt.Errorf("core: instruction counter: %w", err)
	}
	n.applied = counter

	n.vault = vault.NewEngine()
	n.vault.SetState(n.state)
	n.vault.SetPauses(n.state)
	n.vault.SetEmitter(n.recorder)
	n.vault.SetNowFunc(n.now)

	n.whitelist = whitelist.NewEngine()
	n.whitelist.SetState(n.state)
	n.whitelist.SetOwner(n.vault)
	n.whitelist.SetEmitter(n.recorder)
	n.vault.SetWhitelist(n.whitelist)
	return n, nil
}

// Initialized reports whether genesis has been applied.
func (n *Node) Initialized() (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	st, err := n.state.VaultState()
	if err != nil {
		return false, err
	}
	return !st.Owner.IsZero(), nil
}

// InitGenesis writes the genesis document into an empty store and returns the
// resulting state root.
func (n *Node) InitGenesis(spec *genesis.GenesisSpec) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	root, err := genesis.BuildGenesisFromSpec(spec, n.state)
	if err != nil {
		return nil, err
	}
	// Genesis events describe setup, not activity; nobody is subscribed yet.
	n.recorder.Drain()
	n.recordLedger()
	n.logger.Info("genesis applied", slog.String("root", hex.EncodeToString(root)))
	return root, nil
}

// StateRoot returns the digest of the last commit.
func (n *Node) StateRoot() ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.Root()
}

// Apply executes one instruction. Matured unbonding is released first so the
// instruction sees current liquidity. The returned receipt is non-nil unless
// ctx was already done; for a rejected instruction the error is returned as
// well and state is left untouched.
func (n *Node) Apply(ctx context.Context, instr Instruction) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := n.tracer.Start(ctx, "vault.apply", trace.WithAttributes(
		attribute.String("vault.instruction", instr.Type),
	))
	defer span.End()

	start := time.Now()
	n.mu.Lock()
	receipt, err := n.applyLocked(instr)
	n.mu.Unlock()

	code := ""
	if err != nil {
		code = receipt.Code
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
		n.logger.InfoContext(ctx, "instruction rejected",
			slog.String("instruction", instr.Type),
			slog.String("sender", receipt.Sender),
			slog.String("code", code),
			slog.String("error", err.Error()))
	} else {
		span.SetAttributes(attribute.String("vault.receipt", receipt.ID.String()))
		n.logger.DebugContext(ctx, "instruction applied",
			slog.String("instruction", instr.Type),
			slog.String("sender", receipt.Sender),
			slog.String("receipt", receipt.ID.String()),
			slog.Int("events", len(receipt.Events)))
		n.publish(receipt)
	}
	n.metrics.ObserveInstruction(instr.Type, time.Since(start), code, err)
	n.applied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("instruction", instr.Type),
		attribute.Bool("success", err == nil),
	))
	return receipt, err
}

func (n *Node) applyLocked(instr Instruction) (*Receipt, error) {
	receipt := &Receipt{ID: uuid.New(), Instruction: instr.Type, AppliedAt: n.now().UTC()}
	if !instr.Sender.IsZero() {
		receipt.Sender = instr.Sender.String()
	}
	n.recorder.Drain()

	matured, err := n.vault.ProcessUnbonding()
	if err == nil {
		err = n.chargeQuota(instr)
	}
	var result interface{}
	if err == nil {
		result, err = n.dispatch(instr)
	}
	if err == nil {
		var root []byte
		if root, err = n.state.Commit(); err == nil {
			receipt.Success = true
			receipt.Result = result
			receipt.Matured = matured
			receipt.Events = n.recorder.Drain()
			receipt.StateRoot = hex.EncodeToString(root)
			n.metrics.RecordMatured(matured)
			n.recordLedger()
			return receipt, nil
		}
		err = fmt.Errorf("core: commit: %w", err)
	}
	n.state.Discard()
	n.recorder.Drain()
	failReceipt(receipt, err)
	return receipt, err
}

// Tick releases matured unbonding outside of any instruction and publishes
// the result when anything matured.
func (n *Node) Tick(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n.mu.Lock()
	n.recorder.Drain()
	matured, err := n.vault.ProcessUnbonding()
	if err != nil || matured == 0 {
		n.state.Discard()
		n.recorder.Drain()
		n.mu.Unlock()
		return 0, err
	}
	root, err := n.state.Commit()
	if err != nil {
		n.state.Discard()
		n.recorder.Drain()
		n.mu.Unlock()
		return 0, fmt.Errorf("core: commit: %w", err)
	}
	receipt := &Receipt{
		ID:          uuid.New(),
		Instruction: InstrProcessUnbonding,
		Success:     true,
		Matured:     matured,
		Events:      n.recorder.Drain(),
		StateRoot:   hex.EncodeToString(root),
		AppliedAt:   n.now().UTC(),
	}
	n.metrics.RecordMatured(matured)
	n.recordLedger()
	n.mu.Unlock()

	n.logger.InfoContext(ctx, "unbonding matured", slog.Int("entries", matured))
	n.publish(receipt)
	return matured, nil
}

// userInstructions are gated by the quota; owner and agent instructions are
// not.
var userInstructions = map[string]bool{
	InstrDeposit:           true,
	InstrWithdraw:          true,
	InstrWithdrawAssets:    true,
	InstrClaim:             true,
	InstrTransfer:          true,
	InstrAllocate:          true,
	InstrDeallocate:        true,
	InstrDistributeRewards: true,
	InstrDistributeAll:     true,
}

func (n *Node) chargeQuota(instr Instruction) error {
	if !n.quota.Enabled() || !userInstructions[instr.Type] || instr.Sender.IsZero() {
		return nil
	}
	module := vault.ModuleName()
	prev, err := n.state.QuotaCounter(module, instr.Sender)
	if err != nil {
		return err
	}
	next, err := nativecommon.CheckQuota(n.quota, n.quota.Epoch(n.now().Unix()), prev, 1, quotaVolume(instr))
	if err != nil {
		return err
	}
	return n.state.PutQuotaCounter(module, instr.Sender, next)
}

// quotaVolume is the base-asset amount an instruction moves, in whole tokens
// rounded up. Malformed payloads count as zero and fail in dispatch.
func quotaVolume(instr Instruction) uint64 {
	if instr.Type != InstrDeposit && instr.Type != InstrWithdrawAssets {
		return 0
	}
	var payload struct {
		Amount Amount `json:"amount"`
	}
	if err := json.Unmarshal(instr.Payload, &payload); err != nil {
		return 0
	}
	tokens := new(big.Int).Add(payload.Amount.Value(), new(big.Int).Sub(vault.OneUnit, big.NewInt(1)))
	tokens.Quo(tokens, vault.OneUnit)
	if !tokens.IsUint64() {
		return ^uint64(0)
	}
	return tokens.Uint64()
}

func (n *Node) recordLedger() {
	if n.metrics == nil {
		return
	}
	info, err := n.vault.Info()
	if err != nil {
		return
	}
	n.metrics.RecordLedger(observability.LedgerSnapshot{
		TotalStaked:    info.TotalStaked,
		TotalShares:    info.TotalShares,
		Buffer:         info.Buffer,
		ClaimPool:      info.ClaimPool,
		PendingClaims:  info.PendingClaims,
		Reserve:        info.Reserve,
		UnassignedLoss: info.UnassignedLoss,
		PriceWad:       info.Price.Wad(),
		Paused:         info.Paused,
	})
}

// Subscribe registers a receiver for committed receipts. Receipts are dropped
// for a subscriber whose buffer is full. The cancel func must be called to
// release the subscription.
func (n *Node) Subscribe(buffer int) (<-chan *Receipt, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan *Receipt, buffer)
	n.subsMu.Lock()
	id := n.nextSub
	n.nextSub++
	n.subs[id] = ch
	n.subsMu.Unlock()

	return ch, func() {
		n.subsMu.Lock()
		defer n.subsMu.Unlock()
		if _, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(ch)
		}
	}
}

func (n *Node) publish(receipt *Receipt) {
	if n.eventMetrics != nil {
		for _, evt := range receipt.Events {
			n.eventMetrics.RecordEvent(evt.Type)
		}
	}
	n.subsMu.RLock()
	defer n.subsMu.RUnlock()
	for _, ch := range n.subs {
		select {
		case ch <- receipt:
		default:
			if n.eventMetrics != nil {
				n.eventMetrics.RecordDrop()
			}
		}
	}
}

// Owner returns the current vault owner.
func (n *Node) Owner() (crypto.Address, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	st, err := n.state.VaultState()
	if err != nil {
		return crypto.Address{}, err
	}
	return st.Owner, nil
}

// Close ends every subscription and releases the underlying store.
func (n *Node) Close() {
	n.subsMu.Lock()
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
	n.subsMu.Unlock()
	n.mu.Lock()
	defer n.mu.Unlock()
	n.db.Close()
}
