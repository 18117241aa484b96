package sqlstore

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.up.sql
var migrationsFS embed.FS

// Migrate applies every embedded .up.sql file in name order. Migrations use
// IF NOT EXISTS so running them again is harmless.
func (s *Store) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	if err != nil {
		return fmt.Errorf("listing migrations: %w", err)
	}
	sort.Strings(files)
	for _, name := range files {
		if err := s.executeMigration(ctx, name); err != nil {
			return err
		}
		s.logger.Debug("migration applied", "file", name)
	}
	s.logger.Info("store migrations complete", "count", len(files))
	return nil
}

func (s *Store) executeMigration(ctx context.Context, name string) error {
	content, err := fs.ReadFile(migrationsFS, name)
	if err != nil {
		return fmt.Errorf("reading migration %s: %w", name, err)
	}
	for _, stmt := range strings.Split(string(content), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}
	return nil
}
