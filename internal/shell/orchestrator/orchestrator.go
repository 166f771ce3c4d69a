// Package orchestrator sequences publish transactions for a resolved module
// set: dependency-gated concurrent submission, bounded retries, sequence
// number discipline, and exactly one terminal result per module.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sota-zk-labs/jayce/internal/core/domain"
	"github.com/sota-zk-labs/jayce/internal/core/resolve"
	"github.com/sota-zk-labs/jayce/internal/shell/chain"
	"github.com/sota-zk-labs/jayce/internal/shell/report"
)

// =============================================================================
// Orchestrator Errors
// =============================================================================

var (
	// ErrCancelled marks modules whose submission was cut short by run
	// cancellation or timeout.
	ErrCancelled = errors.New("run cancelled")

	// ErrDependencyNotConfirmed marks modules skipped because a dependency
	// did not reach the confirmed state.
	ErrDependencyNotConfirmed = errors.New("dependency not confirmed")

	// ErrAborted marks modules skipped under the abort policy after an
	// earlier failure.
	ErrAborted = errors.New("aborted after earlier failure")

	// ErrRetriesExhausted wraps the last transient error once the attempt
	// budget is spent.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// Transport submits transactions and polls for their confirmation.
type Transport interface {
	Submit(ctx context.Context, tx *chain.Transaction) (*chain.PendingTransaction, error)
	Confirm(ctx context.Context, txHash string) (*chain.TransactionInfo, error)
}

// Signer signs transactions for the deployer account.
type Signer interface {
	Address() domain.Address
	PublicKeyHex() string
	Sign(msg []byte) string
}

// Sequencer owns the deployer's sequence counter.
type Sequencer interface {
	Next(ctx context.Context) (uint64, error)
	Resync(ctx context.Context) error
}

// Recorder persists confirmed publications for later runs.
type Recorder interface {
	Record(ctx context.Context, network domain.Network, name string, addr domain.Address, txHash string, modType domain.ModuleType) error
}

// =============================================================================
// Orchestrator
// =============================================================================

// Config holds the orchestrator's tunables.
type Config struct {
	Network       domain.Network
	ModuleType    domain.ModuleType
	FailurePolicy domain.FailurePolicy

	// PublishCode asks the node to store package source on chain.
	PublishCode bool

	// MaxAttempts bounds submissions per module, including the first.
	MaxAttempts int

	// Concurrency bounds parallel in-flight modules.
	Concurrency int

	// BackoffBase and BackoffCap shape the exponential retry delay.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// Gas parameters applied to every publish transaction.
	MaxGasAmount uint64
	GasUnitPrice uint64

	// ExpirationWindow is how long a submitted transaction stays valid.
	ExpirationWindow time.Duration
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		FailurePolicy:    domain.PolicyAbort,
		MaxAttempts:      5,
		Concurrency:      4,
		BackoffBase:      500 * time.Millisecond,
		BackoffCap:       8 * time.Second,
		MaxGasAmount:     200_000,
		GasUnitPrice:     100,
		ExpirationWindow: 2 * time.Minute,
	}
}

// Orchestrator drives one deployment run.
type Orchestrator struct {
	transport Transport
	signer    Signer
	sequencer Sequencer
	recorder  Recorder // nil when the registry is disabled
	collector *report.Collector
	config    Config
	logger    *slog.Logger

	mu      sync.Mutex
	binding *domain.Binding
	failed  bool // any module reached Failed; read by the abort policy
}

// New creates an orchestrator. recorder may be nil.
func New(transport Transport, signer Signer, sequencer Sequencer, recorder Recorder, collector *report.Collector, config Config, logger *slog.Logger) *Orchestrator {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = 500 * time.Millisecond
	}
	if config.BackoffCap <= 0 {
		config.BackoffCap = 8 * time.Second
	}
	if config.ExpirationWindow <= 0 {
		config.ExpirationWindow = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		transport: transport,
		signer:    signer,
		sequencer: sequencer,
		recorder:  recorder,
		collector: collector,
		config:    config,
		logger:    logger.With("component", "orchestrator"),
	}
}

// =============================================================================
// Run
// =============================================================================

// Run publishes every module in the resolution plan. Workers run
// concurrently up to the configured bound, but a dependent module never
// starts before all of its dependencies are confirmed. Every module ends in
// exactly one terminal state; Run itself only fails on bookkeeping errors.
func (o *Orchestrator) Run(ctx context.Context, modules []domain.Module, res *resolve.Resolution) error {
	o.binding = res.Binding

	// Modules resolved before the run keep their prior address and are not
	// republished.
	for _, slot := range res.AlreadyDeployed {
		addr, _ := res.Binding.Get(modules[slot].AddressName)
		addrCopy := addr
		if err := o.collector.Finalize(slot, domain.DeploymentResult{
			ModulePath:  modules[slot].Path,
			AddressName: modules[slot].AddressName,
			Status:      domain.StatusSkipped,
			Address:     &addrCopy,
			Error:       "already deployed",
		}); err != nil {
			return err
		}
	}

	// done[slot] closes once the module at slot reaches a terminal state.
	done := make(map[int]chan struct{}, len(res.Order))
	for _, slot := range res.Order {
		done[slot] = make(chan struct{})
	}

	// deps[slot] lists the slots that must confirm before slot may start.
	owner := make(map[string]int, len(modules))
	for i, mod := range modules {
		owner[mod.AddressName] = i
	}
	deps := make(map[int][]int, len(res.Order))
	for _, slot := range res.Order {
		for _, req := range modules[slot].Requires {
			depSlot, ok := owner[req]
			if !ok || depSlot == slot {
				continue
			}
			if _, publishing := done[depSlot]; publishing {
				deps[slot] = append(deps[slot], depSlot)
			}
		}
	}

	sem := make(chan struct{}, o.config.Concurrency)
	var wg sync.WaitGroup
	for _, slot := range res.Order {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			defer close(done[slot])
			o.runModule(ctx, modules[slot], slot, deps[slot], done, sem, modules)
		}(slot)
	}
	wg.Wait()
	return nil
}

// runModule drives one module to a terminal state.
func (o *Orchestrator) runModule(ctx context.Context, mod domain.Module, slot int, deps []int, done map[int]chan struct{}, sem chan struct{}, modules []domain.Module) {
	logger := o.logger.With("module", mod.Name, "address_name", mod.AddressName)

	// Wait for every dependency to reach a terminal state.
	for _, depSlot := range deps {
		select {
		case <-done[depSlot]:
		case <-ctx.Done():
			o.finalizeSkipped(slot, mod, fmt.Errorf("%w: %v", ErrCancelled, context.Cause(ctx)))
			return
		}
		if result, ok := o.collector.Result(depSlot); !ok || result.Status != domain.StatusConfirmed {
			o.finalizeSkipped(slot, mod, fmt.Errorf("%w: %s", ErrDependencyNotConfirmed, modules[depSlot].AddressName))
			return
		}
	}

	// Acquire a worker slot.
	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-ctx.Done():
		o.finalizeSkipped(slot, mod, fmt.Errorf("%w: %v", ErrCancelled, context.Cause(ctx)))
		return
	}

	if o.config.FailurePolicy == domain.PolicyAbort && o.anyFailed() {
		o.finalizeSkipped(slot, mod, ErrAborted)
		return
	}

	result := o.publish(ctx, logger, mod)
	result.ModulePath = mod.Path
	result.AddressName = mod.AddressName

	if result.Status == domain.StatusConfirmed {
		addr := o.publicationAddress(mod)
		result.Address = &addr
		o.bindConfirmed(ctx, logger, mod, addr, result.TxHash)
	} else {
		o.markFailed()
	}

	if err := o.collector.Finalize(slot, result); err != nil {
		logger.Error("failed to finalize result", "error", err)
	}
}

// publish runs the submit/confirm attempt loop for one module and returns
// its terminal result (confirmed or failed, never skipped).
//
// The module holds a single sequence number across retries: a new number is
// drawn only after a mismatch-driven resync, never just because an attempt
// failed. Once a submission is accepted, later attempts re-poll its hash
// instead of submitting a competing transaction, so at most one transaction
// per module can ever execute on chain.
func (o *Orchestrator) publish(ctx context.Context, logger *slog.Logger, mod domain.Module) domain.DeploymentResult {
	result := domain.DeploymentResult{Status: domain.StatusFailed}

	binding := o.substitution(mod)

	var (
		seq     uint64
		haveSeq bool
		pending string // hash of the accepted, not yet confirmed submission
		lastErr error
	)

	for attempt := 1; attempt <= o.config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if ctx.Err() != nil {
			result.Error = fmt.Sprintf("%v: %v", ErrCancelled, context.Cause(ctx))
			return result
		}

		if pending == "" {
			if !haveSeq {
				var err error
				seq, err = o.sequencer.Next(ctx)
				if err != nil {
					lastErr = err
					if !chain.IsTransient(err) {
						result.Error = err.Error()
						return result
					}
					if !o.backoff(ctx, attempt) {
						break
					}
					continue
				}
				haveSeq = true
			}

			tx, err := o.buildTransaction(mod, binding, seq)
			if err != nil {
				result.Error = err.Error()
				return result
			}

			logger.Info("submitting publish transaction",
				"attempt", attempt,
				"sequence_number", seq,
				"idempotency_key", tx.IdempotencyKey,
			)

			accepted, err := o.transport.Submit(ctx, tx)
			if err != nil {
				lastErr = err
				if errors.Is(err, chain.ErrSequenceMismatch) {
					// Local counter drifted from the chain; re-read it and
					// draw a fresh number for the next attempt.
					if rerr := o.sequencer.Resync(ctx); rerr != nil {
						logger.Warn("sequence resync failed", "error", rerr)
					}
					haveSeq = false
				}
				if !chain.IsTransient(err) {
					result.Error = err.Error()
					return result
				}
				logger.Warn("transient submission error", "attempt", attempt, "error", err)
				if !o.backoff(ctx, attempt) {
					break
				}
				continue
			}

			pending = accepted.Hash
			result.Status = domain.StatusSubmitted
			result.TxHash = pending
		}

		info, err := o.transport.Confirm(ctx, pending)
		if err != nil {
			lastErr = err
			if !chain.IsTransient(err) {
				result.Status = domain.StatusFailed
				result.Error = err.Error()
				return result
			}
			logger.Warn("transient confirmation error", "attempt", attempt, "tx_hash", pending, "error", err)
			if !o.backoff(ctx, attempt) {
				break
			}
			continue
		}

		result.Status = domain.StatusConfirmed
		result.TxHash = info.Hash
		result.GasUsed = uint64(info.GasUsed)
		result.Error = ""
		logger.Info("publish confirmed", "tx_hash", info.Hash, "gas_used", result.GasUsed, "attempts", attempt)
		return result
	}

	// The submitted transaction, if any, may still execute; result.TxHash
	// keeps naming it so the report stays traceable.
	result.Status = domain.StatusFailed
	switch {
	case ctx.Err() != nil:
		result.Error = fmt.Sprintf("%v: %v", ErrCancelled, context.Cause(ctx))
	case pending != "" && lastErr != nil:
		result.Error = fmt.Sprintf("%v: %v (transaction %s may still execute)", ErrRetriesExhausted, lastErr, pending)
	case lastErr != nil:
		result.Error = fmt.Sprintf("%v: %v", ErrRetriesExhausted, lastErr)
	default:
		result.Error = ErrRetriesExhausted.Error()
	}
	return result
}

// =============================================================================
// Helpers
// =============================================================================

// substitution returns the name -> address map a module's payload needs:
// everything it requires that is already bound, under one lock acquisition.
func (o *Orchestrator) substitution(mod domain.Module) map[string]domain.Address {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[string]domain.Address, len(mod.Requires))
	for _, req := range mod.Requires {
		if addr, ok := o.binding.Get(req); ok {
			out[req] = addr
		}
	}
	return out
}

// buildTransaction constructs and signs one submission attempt. The
// idempotency key is fresh per attempt so the node can deduplicate replays
// of the same attempt without conflating distinct attempts.
func (o *Orchestrator) buildTransaction(mod domain.Module, binding map[string]domain.Address, seq uint64) (*chain.Transaction, error) {
	ptype := chain.PayloadObjectPublish
	if o.config.ModuleType == domain.ModuleTypeAccount {
		ptype = chain.PayloadAccountPublish
	}

	// The module publishes under its own name: object mode derives the
	// object address up front, account mode substitutes the deployer.
	named := make(map[string]domain.Address, len(binding)+1)
	for name, addr := range binding {
		named[name] = addr
	}
	named[mod.AddressName] = o.publicationAddress(mod)

	payload := chain.NewPublishPayload(ptype, mod, named)
	payload.PublishCode = o.config.PublishCode

	tx := &chain.Transaction{
		Sender:                  o.signer.Address().Hex(),
		SequenceNumber:          chain.Uint64Str(seq),
		MaxGasAmount:            chain.Uint64Str(o.config.MaxGasAmount),
		GasUnitPrice:            chain.Uint64Str(o.config.GasUnitPrice),
		ExpirationTimestampSecs: chain.Uint64Str(uint64(time.Now().Add(o.config.ExpirationWindow).Unix())),
		Payload:                 payload,
		IdempotencyKey:          uuid.New().String(),
	}

	msg, err := tx.SigningMessage()
	if err != nil {
		return nil, err
	}
	tx.PublicKey = o.signer.PublicKeyHex()
	tx.Signature = o.signer.Sign(msg)
	return tx, nil
}

// publicationAddress is where the module will live once confirmed.
func (o *Orchestrator) publicationAddress(mod domain.Module) domain.Address {
	if o.config.ModuleType == domain.ModuleTypeAccount {
		return o.signer.Address()
	}
	return chain.DeriveObjectAddress(o.signer.Address(), mod.AddressName)
}

// bindConfirmed binds the module's name for dependents and records the
// publication in the registry.
func (o *Orchestrator) bindConfirmed(ctx context.Context, logger *slog.Logger, mod domain.Module, addr domain.Address, txHash string) {
	o.mu.Lock()
	err := o.binding.Bind(mod.AddressName, addr)
	o.mu.Unlock()
	if err != nil {
		logger.Error("failed to bind confirmed address", "error", err)
	}

	if o.recorder != nil {
		// Registry failures do not affect the deployment outcome.
		if err := o.recorder.Record(ctx, o.config.Network, mod.AddressName, addr, txHash, o.config.ModuleType); err != nil {
			logger.Warn("failed to record publication in registry", "error", err)
		}
	}
}

func (o *Orchestrator) finalizeSkipped(slot int, mod domain.Module, reason error) {
	if err := o.collector.Finalize(slot, domain.DeploymentResult{
		ModulePath:  mod.Path,
		AddressName: mod.AddressName,
		Status:      domain.StatusSkipped,
		Error:       reason.Error(),
	}); err != nil {
		o.logger.Error("failed to finalize skipped result", "module", mod.Name, "error", err)
	}
}

func (o *Orchestrator) markFailed() {
	o.mu.Lock()
	o.failed = true
	o.mu.Unlock()
}

func (o *Orchestrator) anyFailed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.failed
}

// backoff sleeps for the capped exponential delay of the given attempt.
// Returns false when the context ended first.
func (o *Orchestrator) backoff(ctx context.Context, attempt int) bool {
	delay := o.config.BackoffBase << uint(attempt-1)
	if delay > o.config.BackoffCap {
		delay = o.config.BackoffCap
	}
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}
