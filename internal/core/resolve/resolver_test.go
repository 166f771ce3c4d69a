package resolve

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sota-zk-labs/jayce/internal/core/domain"
	"github.com/sota-zk-labs/jayce/internal/core/graph"
)

func mod(name, addrName string, requires ...string) domain.Module {
	return domain.Module{
		Name:        name,
		AddressName: addrName,
		Path:        "contracts/" + name,
		Requires:    requires,
	}
}

func addr(t *testing.T, s string) domain.Address {
	t.Helper()
	a, err := domain.ParseAddress(s)
	require.NoError(t, err)
	return a
}

// =============================================================================
// Resolve Tests
// =============================================================================

func TestResolve_NoDependencies(t *testing.T) {
	modules := []domain.Module{
		mod("libs", "lib_addr"),
		mod("cpu", "cpu_addr"),
	}

	res, err := Resolve(modules, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, res.Order)
	assert.Empty(t, res.AlreadyDeployed)
	assert.Equal(t, 0, res.Binding.Len())
}

func TestResolve_DependencyOrder(t *testing.T) {
	// verifier requires cpu and lib; cpu requires lib.
	modules := []domain.Module{
		mod("verifier", "verifier_addr", "cpu_addr", "lib_addr"),
		mod("cpu", "cpu_addr", "lib_addr"),
		mod("libs", "lib_addr"),
	}

	res, err := Resolve(modules, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 0}, res.Order)
}

func TestResolve_DeclarationOrderBreaksTies(t *testing.T) {
	modules := []domain.Module{
		mod("cpu", "cpu_addr", "lib_addr"),
		mod("memory", "memory_addr", "lib_addr"),
		mod("libs", "lib_addr"),
	}

	res, err := Resolve(modules, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 1}, res.Order)
}

func TestResolve_Deterministic(t *testing.T) {
	modules := []domain.Module{
		mod("verifier", "verifier_addr", "cpu_addr", "memory_addr"),
		mod("cpu", "cpu_addr", "lib_addr"),
		mod("memory", "memory_addr", "lib_addr"),
		mod("libs", "lib_addr"),
	}

	first, err := Resolve(modules, nil)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Resolve(modules, nil)
		require.NoError(t, err)
		assert.Equal(t, first.Order, again.Order)
	}
}

func TestResolve_PreBoundDependencySkipsEdge(t *testing.T) {
	// cpu requires lib_addr, but lib_addr was deployed in a previous run.
	modules := []domain.Module{
		mod("cpu", "cpu_addr", "lib_addr"),
	}
	preBound := map[string]domain.Address{
		"lib_addr": addr(t, "0x42"),
	}

	res, err := Resolve(modules, preBound)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, res.Order)

	bound, ok := res.Binding.Get("lib_addr")
	require.True(t, ok)
	assert.Equal(t, addr(t, "0x42"), bound)
}

func TestResolve_AlreadyDeployedModuleExcluded(t *testing.T) {
	modules := []domain.Module{
		mod("libs", "lib_addr"),
		mod("cpu", "cpu_addr", "lib_addr"),
	}
	preBound := map[string]domain.Address{
		"lib_addr": addr(t, "0x42"),
	}

	res, err := Resolve(modules, preBound)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Order)
	assert.Equal(t, []int{0}, res.AlreadyDeployed)
}

func TestResolve_UnknownAddress(t *testing.T) {
	modules := []domain.Module{
		mod("cpu", "cpu_addr", "lib_addr"),
	}

	res, err := Resolve(modules, nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrUnknownAddress)

	var unknownErr *UnknownAddressError
	require.True(t, errors.As(err, &unknownErr))
	assert.Equal(t, "cpu", unknownErr.Module)
	assert.Equal(t, "lib_addr", unknownErr.Name)
}

func TestResolve_CycleFailsWithoutPartialPlan(t *testing.T) {
	modules := []domain.Module{
		mod("a", "a_addr", "b_addr"),
		mod("b", "b_addr", "a_addr"),
	}

	res, err := Resolve(modules, nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, graph.ErrCycle)
}

func TestResolve_DuplicateAddressName(t *testing.T) {
	modules := []domain.Module{
		mod("a", "shared_addr"),
		mod("b", "shared_addr"),
	}

	res, err := Resolve(modules, nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestResolve_SelfReferenceIgnored(t *testing.T) {
	// A package commonly names its own address in its manifest.
	modules := []domain.Module{
		mod("libs", "lib_addr", "lib_addr"),
	}

	res, err := Resolve(modules, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, res.Order)
}
