// Package report accumulates per-module deployment results and writes the
// run report atomically.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sota-zk-labs/jayce/internal/core/domain"
)

// =============================================================================
// Report Errors
// =============================================================================

var (
	// ErrWriteFailed is returned on unrecoverable filesystem failure. It
	// never alters already-computed deployment outcomes.
	ErrWriteFailed = errors.New("report write failed")

	// ErrAlreadyWritten is returned when the report is written twice.
	ErrAlreadyWritten = errors.New("report already written")

	// ErrSlotFinalized is returned when a result slot is finalized twice.
	ErrSlotFinalized = errors.New("result already finalized")
)

// WriteError wraps a report write failure with the target path.
type WriteError struct {
	Path    string
	Message string
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write report %s: %s", e.Path, e.Message)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Collector
// =============================================================================

// Collector accumulates one DeploymentResult per module as the run proceeds,
// then writes the report exactly once. Results keep the resolution order no
// matter what order they finalize in. Safe for concurrent use.
type Collector struct {
	mu        sync.Mutex
	path      string
	runID     string
	network   domain.Network
	account   domain.Address
	modType   domain.ModuleType
	startedAt time.Time
	results   []domain.DeploymentResult
	finalized []bool
	written   bool
}

// NewCollector creates a collector for a run over size modules, writing to
// path when finalized.
func NewCollector(path, runID string, network domain.Network, account domain.Address, modType domain.ModuleType, size int) *Collector {
	return &Collector{
		path:      path,
		runID:     runID,
		network:   network,
		account:   account,
		modType:   modType,
		startedAt: time.Now().UTC(),
		results:   make([]domain.DeploymentResult, size),
		finalized: make([]bool, size),
	}
}

// Finalize records the terminal result for the module at slot. A slot can be
// finalized once; the record is immutable afterwards.
func (c *Collector) Finalize(slot int, result domain.DeploymentResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if slot < 0 || slot >= len(c.results) {
		return fmt.Errorf("result slot %d out of range", slot)
	}
	if c.finalized[slot] {
		return fmt.Errorf("%w: slot %d", ErrSlotFinalized, slot)
	}
	c.results[slot] = result
	c.finalized[slot] = true
	return nil
}

// Result returns a copy of the result at slot and whether it is finalized.
func (c *Collector) Result(slot int) (domain.DeploymentResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if slot < 0 || slot >= len(c.results) {
		return domain.DeploymentResult{}, false
	}
	return c.results[slot], c.finalized[slot]
}

// Write assembles the report and writes it atomically: marshal, write to a
// temporary file in the same directory, fsync, rename. A reader can never
// observe a partially written report. Write succeeds at most once.
func (c *Collector) Write() (*domain.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.written {
		return nil, &WriteError{Path: c.path, Message: "already written", Err: ErrAlreadyWritten}
	}

	rep := &domain.Report{
		RunID:      c.runID,
		Network:    c.network,
		Account:    c.account,
		ModuleType: c.modType,
		StartedAt:  c.startedAt,
		FinishedAt: time.Now().UTC(),
		Results:    append([]domain.DeploymentResult(nil), c.results...),
	}
	rep.Success = rep.AllConfirmed()

	if err := writeAtomic(c.path, rep); err != nil {
		return nil, err
	}
	c.written = true
	return rep, nil
}

// =============================================================================
// Atomic Write
// =============================================================================

func writeAtomic(path string, rep *domain.Report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return &WriteError{Path: path, Message: err.Error(), Err: ErrWriteFailed}
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return &WriteError{Path: path, Message: err.Error(), Err: ErrWriteFailed}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &WriteError{Path: path, Message: err.Error(), Err: ErrWriteFailed}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &WriteError{Path: path, Message: err.Error(), Err: ErrWriteFailed}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &WriteError{Path: path, Message: err.Error(), Err: ErrWriteFailed}
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &WriteError{Path: path, Message: err.Error(), Err: ErrWriteFailed}
	}
	return nil
}
