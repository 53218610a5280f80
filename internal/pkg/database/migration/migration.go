package migration

import (
	"database/sql"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/anicoll/smartcontrol/migrations"
)

const (
	pgDriverName    = "postgres"
	migrationsTable = "smartcontrol_schema_migrations"
)

// Migrate applies every pending migration; an up-to-date schema is not an
// error. Migrations are read from folderPath when set, otherwise from the set
// built into the binary.
func Migrate(dsn, folderPath string) error {
	src, err := openSource(folderPath)
	if err != nil {
		return err
	}
	return migrateWith(src, dsn)
}

// migrateWith takes ownership of src and closes it on every path.
func migrateWith(src source.Driver, dsn string) error {
	db, err := sql.Open(pgDriverName, dsn)
	if err != nil {
		_ = src.Close()
		return err
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		_ = src.Close()
		_ = db.Close()
		return err
	}
	m, err := migrate.NewWithInstance("migrations", src, pgDriverName, driver)
	if err != nil {
		_ = src.Close()
		_ = driver.Close()
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	zap.L().Info("database schema up to date", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

func openSource(folderPath string) (source.Driver, error) {
	if folderPath == "" {
		return iofs.New(migrations.FS, ".")
	}
	return (&file.File{}).Open("file://" + folderPath)
}
