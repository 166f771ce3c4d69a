// Package resolve computes the named-address binding and publish order for a
// set of loaded modules. This is part of the Functional Core - no I/O, no
// network calls; it only decides what a run would do.
package resolve

import (
	"errors"
	"fmt"

	"github.com/sota-zk-labs/jayce/internal/core/domain"
	"github.com/sota-zk-labs/jayce/internal/core/graph"
)

// =============================================================================
// Resolver Errors
// =============================================================================

var (
	// ErrUnknownAddress is returned when a module requires a symbolic name
	// that is neither pre-bound nor published by any module in the run.
	ErrUnknownAddress = errors.New("unknown named address")

	// ErrDuplicateName is returned when two modules publish under the same
	// symbolic name.
	ErrDuplicateName = errors.New("duplicate address name")
)

// UnknownAddressError reports which module required an unresolvable name.
type UnknownAddressError struct {
	Module string
	Name   string
}

func (e *UnknownAddressError) Error() string {
	return fmt.Sprintf("module %s requires named address %q which is not configured, previously deployed, or published by this run", e.Module, e.Name)
}

func (e *UnknownAddressError) Unwrap() error {
	return ErrUnknownAddress
}

// =============================================================================
// Resolution
// =============================================================================

// Resolution is the plan for a run: which modules to publish in what order,
// which are already deployed, and the seed binding for substitution.
type Resolution struct {
	// Order holds indices into the input module slice, in publish order.
	Order []int

	// AlreadyDeployed holds indices of modules whose address name was bound
	// before the run started (via configuration or the registry); they are
	// not published again.
	AlreadyDeployed []int

	// Binding is seeded with every pre-bound name. Modules published during
	// the run bind their names as they confirm.
	Binding *domain.Binding
}

// =============================================================================
// Resolve
// =============================================================================

// Resolve validates that every required named address is resolvable and
// computes a deterministic publish order honoring inter-module dependencies.
//
// An edge from module A to module B exists when A requires B's address name
// and that name is not already bound; B must then confirm before A starts.
// Ties are broken by the declaration order of the modules, so repeated runs
// over identical input produce identical plans. A dependency cycle fails the
// whole resolution with graph.ErrCycle; no partial plan is returned.
func Resolve(modules []domain.Module, preBound map[string]domain.Address) (*Resolution, error) {
	binding := domain.NewBinding()
	for name, addr := range preBound {
		if err := binding.Bind(name, addr); err != nil {
			return nil, err
		}
	}

	// Index the names owned by this run and reject duplicates.
	owner := make(map[string]int, len(modules))
	for i, mod := range modules {
		if prev, ok := owner[mod.AddressName]; ok {
			return nil, fmt.Errorf("%w: %q claimed by both %s and %s",
				ErrDuplicateName, mod.AddressName, modules[prev].Path, mod.Path)
		}
		owner[mod.AddressName] = i
	}

	// Partition out modules that are already deployed.
	var deployed []int
	toPublish := make([]int, 0, len(modules))
	for i, mod := range modules {
		if binding.Has(mod.AddressName) {
			deployed = append(deployed, i)
		} else {
			toPublish = append(toPublish, i)
		}
	}

	// Build the dependency graph over the modules to publish. Graph node k
	// corresponds to modules[toPublish[k]], so declaration order is the tie
	// breaker.
	g := graph.New()
	nodeOf := make(map[int]int, len(toPublish))
	for _, i := range toPublish {
		nodeOf[i] = g.AddNode(modules[i].AddressName)
	}
	for _, i := range toPublish {
		for _, req := range modules[i].Requires {
			if req == modules[i].AddressName || binding.Has(req) {
				continue
			}
			j, ok := owner[req]
			if !ok {
				return nil, &UnknownAddressError{Module: modules[i].Name, Name: req}
			}
			if _, publishing := nodeOf[j]; !publishing {
				// Owner is already deployed, so the name is bound.
				continue
			}
			if err := g.AddEdge(nodeOf[i], nodeOf[j]); err != nil {
				return nil, err
			}
		}
	}

	sorted, err := g.Sort()
	if err != nil {
		return nil, err
	}

	order := make([]int, len(sorted))
	for k, node := range sorted {
		order[k] = toPublish[node]
	}

	return &Resolution{
		Order:           order,
		AlreadyDeployed: deployed,
		Binding:         binding,
	}, nil
}
