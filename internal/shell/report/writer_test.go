package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sota-zk-labs/jayce/internal/core/domain"
)

func newCollector(t *testing.T, size int) (*Collector, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deploy-report.json")
	account, err := domain.ParseAddress("0xa11ce")
	require.NoError(t, err)
	c := NewCollector(path, "run-1", domain.NetworkDevnet, account, domain.ModuleTypeObject, size)
	return c, path
}

func confirmed(name string) domain.DeploymentResult {
	return domain.DeploymentResult{
		AddressName: name,
		Status:      domain.StatusConfirmed,
		TxHash:      "0xfeed",
		Attempts:    1,
	}
}

// =============================================================================
// Collector Tests
// =============================================================================

func TestCollector_KeepsResolutionOrder(t *testing.T) {
	c, _ := newCollector(t, 3)

	// Finalize out of order.
	require.NoError(t, c.Finalize(2, confirmed("verifier_addr")))
	require.NoError(t, c.Finalize(0, confirmed("lib_addr")))
	require.NoError(t, c.Finalize(1, confirmed("cpu_addr")))

	rep, err := c.Write()
	require.NoError(t, err)
	assert.Equal(t, "lib_addr", rep.Results[0].AddressName)
	assert.Equal(t, "cpu_addr", rep.Results[1].AddressName)
	assert.Equal(t, "verifier_addr", rep.Results[2].AddressName)
}

func TestCollector_FinalizeTwiceRejected(t *testing.T) {
	c, _ := newCollector(t, 1)

	require.NoError(t, c.Finalize(0, confirmed("lib_addr")))
	err := c.Finalize(0, domain.DeploymentResult{Status: domain.StatusFailed})
	assert.ErrorIs(t, err, ErrSlotFinalized)

	// The first record is immutable.
	got, ok := c.Result(0)
	require.True(t, ok)
	assert.Equal(t, domain.StatusConfirmed, got.Status)
}

func TestCollector_FinalizeOutOfRange(t *testing.T) {
	c, _ := newCollector(t, 1)
	assert.Error(t, c.Finalize(5, confirmed("x")))
	assert.Error(t, c.Finalize(-1, confirmed("x")))
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWrite_CompleteReport(t *testing.T) {
	c, path := newCollector(t, 2)
	require.NoError(t, c.Finalize(0, confirmed("lib_addr")))
	require.NoError(t, c.Finalize(1, confirmed("cpu_addr")))

	rep, err := c.Write()
	require.NoError(t, err)
	assert.True(t, rep.Success)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var onDisk domain.Report
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, "run-1", onDisk.RunID)
	assert.Equal(t, domain.NetworkDevnet, onDisk.Network)
	assert.Len(t, onDisk.Results, 2)
	assert.True(t, onDisk.Success)
}

func TestWrite_MixedOutcomesNotSuccessful(t *testing.T) {
	c, path := newCollector(t, 2)
	require.NoError(t, c.Finalize(0, confirmed("lib_addr")))
	require.NoError(t, c.Finalize(1, domain.DeploymentResult{
		AddressName: "cpu_addr",
		Status:      domain.StatusFailed,
		Error:       "transaction rejected",
	}))

	rep, err := c.Write()
	require.NoError(t, err)
	assert.False(t, rep.Success)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk domain.Report
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.False(t, onDisk.Success)
	assert.Equal(t, domain.StatusFailed, onDisk.Results[1].Status)
}

func TestWrite_ExactlyOnce(t *testing.T) {
	c, _ := newCollector(t, 1)
	require.NoError(t, c.Finalize(0, confirmed("lib_addr")))

	_, err := c.Write()
	require.NoError(t, err)

	_, err = c.Write()
	assert.ErrorIs(t, err, ErrAlreadyWritten)
}

func TestWrite_NoTempFileLeftBehind(t *testing.T) {
	c, path := newCollector(t, 1)
	require.NoError(t, c.Finalize(0, confirmed("lib_addr")))

	_, err := c.Write()
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.Contains(entry.Name(), ".tmp-"), "leftover temp file %s", entry.Name())
	}
}

func TestWrite_MissingDirectoryFails(t *testing.T) {
	account, err := domain.ParseAddress("0xa11ce")
	require.NoError(t, err)
	c := NewCollector(filepath.Join(t.TempDir(), "missing", "r.json"), "run-1",
		domain.NetworkDevnet, account, domain.ModuleTypeObject, 0)

	_, err = c.Write()
	assert.ErrorIs(t, err, ErrWriteFailed)
}

func TestWrite_ConcurrentFinalizeThenWrite(t *testing.T) {
	const n = 8
	c, path := newCollector(t, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			assert.NoError(t, c.Finalize(slot, confirmed("addr")))
		}(i)
	}
	wg.Wait()

	_, err := c.Write()
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk domain.Report
	require.NoError(t, json.Unmarshal(raw, &onDisk), "report must always be syntactically complete")
	assert.Len(t, onDisk.Results, n)
}
