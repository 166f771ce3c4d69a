// Package registry persists the addresses of previously deployed packages,
// so later runs can resolve references to them without redeploying.
package registry

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sota-zk-labs/jayce/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Registry Errors
// =============================================================================

var (
	// ErrConnectionFailed is returned when the database cannot be opened.
	ErrConnectionFailed = errors.New("registry connection failed")

	// ErrMigrationFailed is returned when schema migration fails.
	ErrMigrationFailed = errors.New("registry migration failed")

	// ErrQueryFailed is returned on a failed read or write.
	ErrQueryFailed = errors.New("registry query failed")
)

// RegistryError wraps errors with the operation that failed.
type RegistryError struct {
	Op      string
	Message string
	Err     error
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Registry
// =============================================================================

// Registry is a SQLite-backed record of confirmed publications per network.
type Registry struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the registry database and runs migrations.
func Open(path string) (*Registry, error) {
	db, err := sqlx.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, &RegistryError{Op: "Open", Message: err.Error(), Err: ErrConnectionFailed}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &RegistryError{Op: "Open", Message: err.Error(), Err: ErrConnectionFailed}
	}
	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, &RegistryError{Op: "Open", Message: err.Error(), Err: ErrMigrationFailed}
	}
	return &Registry{db: db}, nil
}

// Close closes the database connection.
func (r *Registry) Close() error {
	return r.db.Close()
}

func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// =============================================================================
// Rows
// =============================================================================

// Entry is one recorded publication.
type Entry struct {
	Network     string    `db:"network"`
	AddressName string    `db:"address_name"`
	Address     string    `db:"address"`
	TxHash      string    `db:"tx_hash"`
	ModuleType  string    `db:"module_type"`
	CreatedAt   time.Time `db:"created_at"`
}

// =============================================================================
// Operations
// =============================================================================

// Lookup returns every recorded name -> address binding for a network.
func (r *Registry) Lookup(ctx context.Context, network domain.Network) (map[string]domain.Address, error) {
	var rows []Entry
	err := r.db.SelectContext(ctx, &rows,
		`SELECT network, address_name, address, tx_hash, module_type, created_at
		   FROM deployments WHERE network = ? ORDER BY address_name`, string(network))
	if err != nil {
		return nil, &RegistryError{Op: "Lookup", Message: err.Error(), Err: ErrQueryFailed}
	}

	out := make(map[string]domain.Address, len(rows))
	for _, row := range rows {
		addr, err := domain.ParseAddress(row.Address)
		if err != nil {
			return nil, &RegistryError{Op: "Lookup",
				Message: fmt.Sprintf("corrupt address for %s: %v", row.AddressName, err),
				Err:     ErrQueryFailed}
		}
		out[row.AddressName] = addr
	}
	return out, nil
}

// Record upserts a confirmed publication. Re-recording a name on the same
// network replaces the previous row, keeping the registry current after a
// forced redeploy.
func (r *Registry) Record(ctx context.Context, network domain.Network, name string, addr domain.Address, txHash string, modType domain.ModuleType) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO deployments (network, address_name, address, tx_hash, module_type)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (network, address_name)
		 DO UPDATE SET address = excluded.address,
		               tx_hash = excluded.tx_hash,
		               module_type = excluded.module_type,
		               created_at = CURRENT_TIMESTAMP`,
		string(network), name, addr.Hex(), txHash, string(modType))
	if err != nil {
		return &RegistryError{Op: "Record", Message: err.Error(), Err: ErrQueryFailed}
	}
	return nil
}

// Forget removes a recorded publication, forcing the next run to redeploy.
func (r *Registry) Forget(ctx context.Context, network domain.Network, name string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM deployments WHERE network = ? AND address_name = ?`, string(network), name)
	if err != nil {
		return &RegistryError{Op: "Forget", Message: err.Error(), Err: ErrQueryFailed}
	}
	return nil
}
