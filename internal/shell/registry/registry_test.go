package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sota-zk-labs/jayce/internal/core/domain"
)

func openRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func mustAddr(t *testing.T, s string) domain.Address {
	t.Helper()
	addr, err := domain.ParseAddress(s)
	require.NoError(t, err)
	return addr
}

// =============================================================================
// Registry Tests
// =============================================================================

func TestRegistry_RecordAndLookup(t *testing.T) {
	r := openRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, domain.NetworkDevnet, "lib_addr", mustAddr(t, "0x42"), "0xfeed", domain.ModuleTypeObject))
	require.NoError(t, r.Record(ctx, domain.NetworkDevnet, "cpu_addr", mustAddr(t, "0x43"), "0xbeef", domain.ModuleTypeObject))

	bound, err := r.Lookup(ctx, domain.NetworkDevnet)
	require.NoError(t, err)
	assert.Len(t, bound, 2)
	assert.Equal(t, mustAddr(t, "0x42"), bound["lib_addr"])
	assert.Equal(t, mustAddr(t, "0x43"), bound["cpu_addr"])
}

func TestRegistry_NetworksAreIsolated(t *testing.T) {
	r := openRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, domain.NetworkDevnet, "lib_addr", mustAddr(t, "0x42"), "", domain.ModuleTypeObject))

	bound, err := r.Lookup(ctx, domain.NetworkTestnet)
	require.NoError(t, err)
	assert.Empty(t, bound)
}

func TestRegistry_RecordUpserts(t *testing.T) {
	r := openRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, domain.NetworkDevnet, "lib_addr", mustAddr(t, "0x42"), "0x1", domain.ModuleTypeObject))
	require.NoError(t, r.Record(ctx, domain.NetworkDevnet, "lib_addr", mustAddr(t, "0x99"), "0x2", domain.ModuleTypeAccount))

	bound, err := r.Lookup(ctx, domain.NetworkDevnet)
	require.NoError(t, err)
	assert.Len(t, bound, 1)
	assert.Equal(t, mustAddr(t, "0x99"), bound["lib_addr"])
}

func TestRegistry_Forget(t *testing.T) {
	r := openRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, domain.NetworkDevnet, "lib_addr", mustAddr(t, "0x42"), "", domain.ModuleTypeObject))
	require.NoError(t, r.Forget(ctx, domain.NetworkDevnet, "lib_addr"))

	bound, err := r.Lookup(ctx, domain.NetworkDevnet)
	require.NoError(t, err)
	assert.Empty(t, bound)
}

func TestRegistry_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	ctx := context.Background()

	r, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, r.Record(ctx, domain.NetworkDevnet, "lib_addr", mustAddr(t, "0x42"), "", domain.ModuleTypeObject))
	require.NoError(t, r.Close())

	r, err = Open(path)
	require.NoError(t, err)
	defer r.Close()

	bound, err := r.Lookup(ctx, domain.NetworkDevnet)
	require.NoError(t, err)
	assert.Equal(t, mustAddr(t, "0x42"), bound["lib_addr"])
}
