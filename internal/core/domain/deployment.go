package domain

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// Deployment Errors
// =============================================================================

var (
	// ErrInvalidTransition is returned on a status transition outside the
	// per-module state machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrUnknownPolicy is returned for a failure policy outside the known set.
	ErrUnknownPolicy = errors.New("unknown failure policy")
)

// =============================================================================
// Failure Policy
// =============================================================================

// FailurePolicy decides what happens to not-yet-submitted modules once any
// module fails.
type FailurePolicy string

const (
	// PolicyAbort marks every not-yet-submitted module skipped after the
	// first failure.
	PolicyAbort FailurePolicy = "abort"

	// PolicyContinue keeps deploying modules whose own dependencies are
	// still satisfied.
	PolicyContinue FailurePolicy = "continue"
)

// Validate checks that the policy is one of the known variants.
func (p FailurePolicy) Validate() error {
	switch p {
	case PolicyAbort, PolicyContinue:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, string(p))
	}
}

func (p FailurePolicy) String() string {
	return string(p)
}

// =============================================================================
// Deployment Status
// =============================================================================

// DeploymentStatus is the per-module state. Modules move
// pending -> submitted -> confirmed on success, pending -> submitted ->
// failed on error, and pending -> skipped when a prerequisite failed.
type DeploymentStatus string

const (
	StatusPending   DeploymentStatus = "pending"
	StatusSubmitted DeploymentStatus = "submitted"
	StatusConfirmed DeploymentStatus = "confirmed"
	StatusFailed    DeploymentStatus = "failed"
	StatusSkipped   DeploymentStatus = "skipped"
)

// Terminal reports whether the status is an end state.
func (s DeploymentStatus) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is a legal step in the
// module state machine.
func (s DeploymentStatus) CanTransition(next DeploymentStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusSubmitted || next == StatusSkipped || next == StatusFailed
	case StatusSubmitted:
		return next == StatusConfirmed || next == StatusFailed
	default:
		return false
	}
}

// =============================================================================
// Deployment Result
// =============================================================================

// DeploymentResult is the final record for one module. The orchestrator
// creates exactly one per module and never mutates it after finalizing.
type DeploymentResult struct {
	// ModulePath is the package directory the module came from.
	ModulePath string `json:"module_path"`

	// AddressName is the symbolic name the module publishes under.
	AddressName string `json:"address_name"`

	// Status is the terminal status of the module.
	Status DeploymentStatus `json:"status"`

	// TxHash identifies the publish transaction, when one was submitted.
	TxHash string `json:"tx_hash,omitempty"`

	// Address is the resolved publication address, set on confirmation.
	Address *Address `json:"address,omitempty"`

	// Attempts is the number of submission attempts made.
	Attempts int `json:"attempts,omitempty"`

	// GasUsed is the gas consumed by the confirmed transaction.
	GasUsed uint64 `json:"gas_used,omitempty"`

	// Error holds the failure detail for failed or skipped modules.
	Error string `json:"error,omitempty"`
}

// =============================================================================
// Report
// =============================================================================

// Report is the durable artifact for one deployment run: the ordered
// per-module results plus run-level metadata. Written once, atomically.
type Report struct {
	RunID      string             `json:"run_id"`
	Network    Network            `json:"network"`
	Account    Address            `json:"account"`
	ModuleType ModuleType         `json:"module_type"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Success    bool               `json:"success"`
	Results    []DeploymentResult `json:"results"`
}

// AllConfirmed reports whether every module either reached the confirmed
// state or was already deployed before the run started (skipped with its
// address bound, nothing left to publish).
func (r *Report) AllConfirmed() bool {
	for _, res := range r.Results {
		if res.Status == StatusConfirmed {
			continue
		}
		if res.Status == StatusSkipped && res.Address != nil {
			continue
		}
		return false
	}
	return true
}
