package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Address Parsing Tests
// =============================================================================

func TestParseAddress_ValidForms(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"with prefix", "0x42"},
		{"without prefix", "42"},
		{"full width", "0x" + "00000000000000000000000000000000000000000000000000000000000000ff"},
		{"mixed case", "0xAbCd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := ParseAddress(tt.input)
			require.NoError(t, err)
			assert.False(t, addr.IsZero() && tt.input != "0x0")
		})
	}
}

func TestParseAddress_LeftPadsShortInput(t *testing.T) {
	addr, err := ParseAddress("0x42")
	require.NoError(t, err)
	assert.Equal(t, "0x0000000000000000000000000000000000000000000000000000000000000042", addr.Hex())
}

func TestParseAddress_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"bare prefix", "0x"},
		{"not hex", "0xzz"},
		{"too long", "0x" + "11111111111111111111111111111111111111111111111111111111111111111"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAddress(tt.input)
			assert.ErrorIs(t, err, ErrInvalidAddress)
		})
	}
}

func TestAddress_JSONRoundTrip(t *testing.T) {
	addr, err := ParseAddress("0xdeadbeef")
	require.NoError(t, err)

	data, err := json.Marshal(addr)
	require.NoError(t, err)

	var back Address
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, addr, back)
}

// =============================================================================
// Binding Tests
// =============================================================================

func TestBinding_BindAndGet(t *testing.T) {
	b := NewBinding()
	addr, err := ParseAddress("0x1")
	require.NoError(t, err)

	require.NoError(t, b.Bind("lib_addr", addr))

	got, ok := b.Get("lib_addr")
	assert.True(t, ok)
	assert.Equal(t, addr, got)
	assert.True(t, b.Has("lib_addr"))
	assert.Equal(t, 1, b.Len())
}

func TestBinding_RebindFails(t *testing.T) {
	b := NewBinding()
	addr, err := ParseAddress("0x1")
	require.NoError(t, err)

	require.NoError(t, b.Bind("lib_addr", addr))
	assert.ErrorIs(t, b.Bind("lib_addr", addr), ErrAlreadyBound)
}

func TestBinding_SnapshotIsDetached(t *testing.T) {
	b := NewBinding()
	addr, err := ParseAddress("0x1")
	require.NoError(t, err)
	require.NoError(t, b.Bind("lib_addr", addr))

	snap := b.Snapshot()
	delete(snap, "lib_addr")
	assert.True(t, b.Has("lib_addr"))
}
