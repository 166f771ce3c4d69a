// Package loader reads compiled Move packages from disk: the package
// manifest with its named-address placeholders, and the compiled bytecode.
package loader

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/sota-zk-labs/jayce/internal/core/domain"
)

// =============================================================================
// Loader Errors
// =============================================================================

var (
	// ErrManifestNotFound is returned when a package directory has no
	// Move.toml.
	ErrManifestNotFound = errors.New("package manifest not found")

	// ErrBadManifest is returned when the manifest cannot be parsed.
	ErrBadManifest = errors.New("malformed package manifest")

	// ErrNoBytecode is returned when a package has no compiled modules.
	ErrNoBytecode = errors.New("no compiled bytecode found, build the package first")
)

// LoadError wraps a load failure with the package path it concerns.
type LoadError struct {
	Path    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %s", e.Path, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Manifest
// =============================================================================

// manifestFile mirrors the parts of Move.toml the loader needs.
type manifestFile struct {
	Package struct {
		Name string `toml:"name"`
	} `toml:"package"`
	Addresses map[string]string `toml:"addresses"`
}

// unboundPlaceholder marks a named address the manifest leaves for the
// deployment run to bind.
const unboundPlaceholder = "_"

// manifestName is the package manifest filename.
const manifestName = "Move.toml"

// bytecodeDir is the per-package directory holding compiled modules,
// relative to build/<PackageName>/.
const bytecodeDir = "bytecode_modules"

// =============================================================================
// Loader
// =============================================================================

// Loader reads module sets from package directories.
type Loader struct {
	logger *slog.Logger
}

// New creates a loader.
func New(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger.With("component", "loader")}
}

// LoadSet loads one module per package directory. addressNames supplies the
// symbolic name each package publishes under, in the same order as paths.
// The returned modules are in declaration order.
func (l *Loader) LoadSet(paths []string, addressNames []string) ([]domain.Module, error) {
	if len(paths) != len(addressNames) {
		return nil, &LoadError{
			Path:    "",
			Message: fmt.Sprintf("%d paths but %d address names", len(paths), len(addressNames)),
			Err:     ErrBadManifest,
		}
	}

	modules := make([]domain.Module, 0, len(paths))
	for i, path := range paths {
		mod, err := l.Load(path, addressNames[i])
		if err != nil {
			return nil, err
		}
		modules = append(modules, *mod)
	}
	return modules, nil
}

// Load reads a single package: its manifest and compiled bytecode.
func (l *Loader) Load(path, addressName string) (*domain.Module, error) {
	manifest, err := l.readManifest(path)
	if err != nil {
		return nil, err
	}

	bytecode, err := l.readBytecode(path, manifest.Package.Name)
	if err != nil {
		return nil, err
	}

	// Unbound placeholders in the manifest are the addresses this module
	// requires at publish time. Sorted so the requirement list is stable.
	var requires []string
	for name, value := range manifest.Addresses {
		if value == unboundPlaceholder {
			requires = append(requires, name)
		}
	}
	sort.Strings(requires)

	l.logger.Debug("loaded package",
		"path", path,
		"package", manifest.Package.Name,
		"address_name", addressName,
		"bytecode_bytes", len(bytecode),
		"requires", requires,
	)

	return &domain.Module{
		Name:        manifest.Package.Name,
		AddressName: addressName,
		Path:        path,
		Bytecode:    bytecode,
		Requires:    requires,
	}, nil
}

func (l *Loader) readManifest(path string) (*manifestFile, error) {
	raw, err := os.ReadFile(filepath.Join(path, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{Path: path, Message: manifestName + " is missing", Err: ErrManifestNotFound}
		}
		return nil, &LoadError{Path: path, Message: err.Error(), Err: ErrManifestNotFound}
	}

	var manifest manifestFile
	if err := toml.Unmarshal(raw, &manifest); err != nil {
		return nil, &LoadError{Path: path, Message: err.Error(), Err: ErrBadManifest}
	}
	if manifest.Package.Name == "" {
		return nil, &LoadError{Path: path, Message: "manifest has no package name", Err: ErrBadManifest}
	}
	return &manifest, nil
}

// readBytecode concatenates the compiled modules under
// build/<PackageName>/bytecode_modules, in filename order so the payload is
// deterministic.
func (l *Loader) readBytecode(path, packageName string) ([]byte, error) {
	dir := filepath.Join(path, "build", packageName, bytecodeDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{Path: path, Message: dir + " is missing", Err: ErrNoBytecode}
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) == ".mv" {
			files = append(files, entry.Name())
		}
	}
	if len(files) == 0 {
		return nil, &LoadError{Path: path, Message: "no .mv modules under " + dir, Err: ErrNoBytecode}
	}
	sort.Strings(files)

	var payload []byte
	for _, name := range files {
		chunk, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, &LoadError{Path: path, Message: err.Error(), Err: ErrNoBytecode}
		}
		payload = append(payload, chunk...)
	}
	return payload, nil
}
