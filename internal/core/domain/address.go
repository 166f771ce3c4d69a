package domain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Address Errors
// =============================================================================

var (
	// ErrInvalidAddress is returned when an address literal cannot be parsed.
	ErrInvalidAddress = errors.New("invalid account address")

	// ErrAlreadyBound is returned when a named address is bound twice.
	ErrAlreadyBound = errors.New("named address is already bound")
)

// =============================================================================
// Account Address
// =============================================================================

// AddressLength is the byte length of an account address.
const AddressLength = 32

// Address is a 32-byte account or object address on the target network.
type Address [AddressLength]byte

// ParseAddress parses a hex address literal, with or without the 0x prefix.
// Short literals are left-padded with zeros, matching on-chain conventions
// (so "0x1" and "0x01" denote the same address).
func ParseAddress(s string) (Address, error) {
	var addr Address

	h := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if h == "" {
		return addr, fmt.Errorf("%w: empty literal", ErrInvalidAddress)
	}
	if len(h)%2 == 1 {
		h = "0" + h
	}
	raw, err := hex.DecodeString(h)
	if err != nil {
		return addr, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	if len(raw) > AddressLength {
		return addr, fmt.Errorf("%w: %q is longer than %d bytes", ErrInvalidAddress, s, AddressLength)
	}

	copy(addr[AddressLength-len(raw):], raw)
	return addr, nil
}

// Hex returns the full-width 0x-prefixed hex form of the address.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) String() string {
	return a.Hex()
}

// MarshalText implements encoding.TextMarshaler so addresses serialize as
// hex strings in JSON reports.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// =============================================================================
// Named Address Binding
// =============================================================================

// Binding maps symbolic address names to concrete addresses. Names are bound
// incrementally as packages publish; once bound, a name is immutable for the
// rest of the run.
type Binding struct {
	addrs map[string]Address
}

// NewBinding creates an empty binding.
func NewBinding() *Binding {
	return &Binding{addrs: make(map[string]Address)}
}

// Bind associates a name with an address. Rebinding an existing name is an
// error, even to the same address.
func (b *Binding) Bind(name string, addr Address) error {
	if _, ok := b.addrs[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyBound, name)
	}
	b.addrs[name] = addr
	return nil
}

// Get returns the address bound to name, if any.
func (b *Binding) Get(name string) (Address, bool) {
	addr, ok := b.addrs[name]
	return addr, ok
}

// Has reports whether name is bound.
func (b *Binding) Has(name string) bool {
	_, ok := b.addrs[name]
	return ok
}

// Len returns the number of bound names.
func (b *Binding) Len() int {
	return len(b.addrs)
}

// Snapshot returns a copy of the current name->address map.
func (b *Binding) Snapshot() map[string]Address {
	out := make(map[string]Address, len(b.addrs))
	for name, addr := range b.addrs {
		out[name] = addr
	}
	return out
}
