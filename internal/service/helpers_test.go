package service

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kontakthub/kontakthub-back/internal/db"
)

// testDB opens a fresh in-memory database per test. The shared-cache name is
// derived from the test name so parallel tests never collide.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func strp(s string) *string {
	return &s
}

func boolp(b bool) *bool {
	return &b
}
