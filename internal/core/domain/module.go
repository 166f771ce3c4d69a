package domain

import (
	"errors"
	"fmt"
)

// =============================================================================
// Module Errors
// =============================================================================

var (
	// ErrUnknownModuleType is returned for a publication mode outside the
	// closed set of variants.
	ErrUnknownModuleType = errors.New("unknown module type")

	// ErrUnknownNetwork is returned for a network name outside the known set.
	ErrUnknownNetwork = errors.New("unknown network")
)

// =============================================================================
// Module Type
// =============================================================================

// ModuleType selects how a compiled package is published. It is a closed
// variant: every value outside the constants below is rejected up front.
type ModuleType string

const (
	// ModuleTypeObject publishes the package under a newly created object
	// address owned by the deployer.
	ModuleTypeObject ModuleType = "object"

	// ModuleTypeAccount publishes the package directly under the deployer's
	// own account address.
	ModuleTypeAccount ModuleType = "account"
)

// Validate checks that the module type is one of the known variants.
func (t ModuleType) Validate() error {
	switch t {
	case ModuleTypeObject, ModuleTypeAccount:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownModuleType, string(t))
	}
}

func (t ModuleType) String() string {
	return string(t)
}

// =============================================================================
// Network
// =============================================================================

// Network identifies the target chain environment.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
	NetworkDevnet  Network = "devnet"
	NetworkLocal   Network = "local"
)

// Validate checks that the network is one of the known environments.
func (n Network) Validate() error {
	switch n {
	case NetworkMainnet, NetworkTestnet, NetworkDevnet, NetworkLocal:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownNetwork, string(n))
	}
}

// RestURL returns the built-in REST endpoint for the network. Local networks
// have no built-in endpoint and must be configured explicitly.
func (n Network) RestURL() string {
	switch n {
	case NetworkMainnet:
		return "https://api.mainnet.aptoslabs.com/v1"
	case NetworkTestnet:
		return "https://api.testnet.aptoslabs.com/v1"
	case NetworkDevnet:
		return "https://api.devnet.aptoslabs.com/v1"
	default:
		return ""
	}
}

// FaucetURL returns the built-in faucet endpoint for the network, empty when
// the network has none (mainnet, local).
func (n Network) FaucetURL() string {
	switch n {
	case NetworkTestnet:
		return "https://faucet.testnet.aptoslabs.com"
	case NetworkDevnet:
		return "https://faucet.devnet.aptoslabs.com"
	default:
		return ""
	}
}

func (n Network) String() string {
	return string(n)
}

// =============================================================================
// Module
// =============================================================================

// Module is one compiled package ready for publication: its byte payload and
// the symbolic addresses it requires before it can be published.
type Module struct {
	// Name is the package name from the manifest.
	Name string `json:"name"`

	// AddressName is the symbolic name this module's own address is published
	// under, as declared in the run configuration.
	AddressName string `json:"address_name"`

	// Path is the package directory the module was loaded from.
	Path string `json:"path"`

	// Bytecode is the compiled payload.
	Bytecode []byte `json:"-"`

	// Requires lists the symbolic address names that must be bound before
	// this module can be published.
	Requires []string `json:"requires,omitempty"`
}
