// Package migrations embeds the schema migrations and applies them with
// goose, the migration runner already carried in the module's dependency
// set.
package migrations

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"

	apperrors "github.com/openpolicylabs/govintel/internal/errors"
)

//go:embed *.sql
var files embed.FS

// Apply runs every pending migration against db, in lexical filename
// order, tracked in goose's own version table.
func Apply(db *sql.DB) error {
	goose.SetBaseFS(files)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to set migration dialect")
	}
	if err := goose.Up(db, "."); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to apply migrations")
	}
	return nil
}

// Down rolls back the most recently applied migration.
func Down(db *sql.DB) error {
	goose.SetBaseFS(files)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to set migration dialect")
	}
	return goose.Down(db, ".")
}

// Status reports the current applied-migration version.
func Status(db *sql.DB) (int64, error) {
	goose.SetBaseFS(files)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to set migration dialect")
	}
	return goose.GetDBVersion(db)
}
