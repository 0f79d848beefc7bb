package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationStatus describes the versioned schema of a postgres store.
type MigrationStatus struct {
	CurrentVersion uint
	LatestVersion  uint
	Dirty          bool
	Pending        bool
}

// Migrate applies every pending postgres migration.
func (r *Repository) Migrate() error {
	m, err := r.migrator()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// MigrationStatus reports the applied and available schema versions.
func (r *Repository) MigrationStatus() (*MigrationStatus, error) {
	m, err := r.migrator()
	if err != nil {
		return nil, err
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, err
	}

	latest, err := latestMigration()
	if err != nil {
		return nil, err
	}

	return &MigrationStatus{
		CurrentVersion: version,
		LatestVersion:  latest,
		Dirty:          dirty,
		Pending:        version < latest,
	}, nil
}

func latestMigration() (uint, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, err
	}
	defer source.Close()

	latest, err := source.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := source.Next(latest)
		if err != nil {
			break
		}
		latest = next
	}
	return latest, nil
}

// The migrator is never closed; closing it closes the pool shared with GORM.
func (r *Repository) migrator() (*migrate.Migrate, error) {
	sqlDB, err := r.db.DB()
	if err != nil {
		return nil, err
	}
	driver, err := pgxmigrate.WithInstance(sqlDB, &pgxmigrate.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	return migrate.NewWithInstance("iofs", source, "pgx5", driver)
}
