package infra

import (
	"sync"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

var migrateMu sync.Mutex

// Migrate runs all pending schema migrations from source against connStr.
// A dirty version is forced back one step and retried. Panics on failure so
// the migrate command exits non-zero.
func Migrate(source string, connStr string) {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	zap.S().Infof("migrating from %s", source)

	mg, err := migrate.New(source, connStr)
	if err != nil {
		zap.S().Errorf("create migration fail with err: %v", err)
		panic(err)
	}
	defer mg.Close()

	version, dirty, err := mg.Version()
	if err != nil && err != migrate.ErrNilVersion {
		panic(err)
	}

	if dirty {
		mg.Force(int(version) - 1) // nolint
	}

	err = mg.Up()
	if err != nil && err != migrate.ErrNoChange {
		panic(err)
	}

	zap.S().Info("migration done")
}
