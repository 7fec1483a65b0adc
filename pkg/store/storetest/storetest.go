// Package storetest opens throwaway in-memory databases for tests.
package storetest

import (
	"regexp"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/commutealarm/commutealarm/pkg/store/postgres"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Open returns a migrated store backed by an in-memory sqlite database
// private to the calling test.
func Open(t testing.TB) *postgres.Store {
	t.Helper()

	dsn := "file:" + unsafeName.ReplaceAllString(t.Name(), "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store := postgres.Wrap(db)
	require.NoError(t, store.AutoMigrate())

	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
