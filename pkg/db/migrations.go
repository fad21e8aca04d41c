package db

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Package db owns the pagecraft schema. Migrations live as numbered SQL
// files under migrations/ and are embedded into the binary; Initialize
// brings any database up to the latest version on open.

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration is one embedded schema step.
type Migration struct {
	Version   int
	Name      string
	SQL       string
	AppliedAt *time.Time
}

// MigrationStatus splits the embedded migrations into applied and pending.
type MigrationStatus struct {
	Applied []Migration
	Pending []Migration
}

// Manager applies embedded migrations to a database handle.
type Manager struct {
	db *sql.DB
}

// NewManager creates a migration manager for db.
func NewManager(db *sql.DB) *Manager {
	return &Manager{db: db}
}

// Initialize brings a database up to the current schema.
func Initialize(db *sql.DB) error {
	if err := NewManager(db).ApplyPending(); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// ApplyPending applies every not-yet-applied migration in version order.
// Each migration runs in its own transaction together with its bookkeeping
// row, so a failure leaves the schema at the last completed version.
func (m *Manager) ApplyPending() error {
	status, err := m.Status()
	if err != nil {
		return err
	}

	for _, mig := range status.Pending {
		if err := m.apply(mig); err != nil {
			return fmt.Errorf("migration %d (%s): %w", mig.Version, mig.Name, err)
		}
	}
	return nil
}

// Status reports which embedded migrations have run and which are pending.
func (m *Manager) Status() (*MigrationStatus, error) {
	if err := m.ensureTable(); err != nil {
		return nil, err
	}

	available, err := loadEmbedded()
	if err != nil {
		return nil, err
	}
	applied, err := m.appliedVersions()
	if err != nil {
		return nil, err
	}

	status := &MigrationStatus{}
	for _, mig := range available {
		if at, ok := applied[mig.Version]; ok {
			when := at
			mig.AppliedAt = &when
			status.Applied = append(status.Applied, mig)
		} else {
			status.Pending = append(status.Pending, mig)
		}
	}
	return status, nil
}

func (m *Manager) ensureTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}
	return nil
}

func (m *Manager) appliedVersions() (map[int]time.Time, error) {
	rows, err := m.db.Query("SELECT version, applied_at FROM migrations")
	if err != nil {
		return nil, fmt.Errorf("querying applied migrations: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			fmt.Printf("Warning: failed to close rows: %v\n", err)
		}
	}()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

func (m *Manager) apply(mig Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				fmt.Printf("Warning: failed to rollback migration transaction: %v\n", err)
			}
		}
	}()

	if _, err := tx.Exec(mig.SQL); err != nil {
		return fmt.Errorf("executing: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", mig.Version); err != nil {
		return fmt.Errorf("recording: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	committed = true
	return nil
}

// loadEmbedded parses the migrations directory. Filenames are NNN_name.sql;
// anything else is skipped.
func loadEmbedded() ([]Migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		version, name, ok := parseFilename(entry.Name())
		if !ok {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}
		migrations = append(migrations, Migration{
			Version: version,
			Name:    name,
			SQL:     string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func parseFilename(filename string) (version int, name string, ok bool) {
	base, found := strings.CutSuffix(filename, ".sql")
	if !found {
		return 0, "", false
	}
	prefix, rest, found := strings.Cut(base, "_")
	if !found {
		return 0, "", false
	}
	version, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, "", false
	}
	return version, rest, true
}
