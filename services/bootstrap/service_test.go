package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/services/stamp"
	"smallbiznis-rewards/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestMigrateCreatesTables(t *testing.T) {
	db := testutil.NewTestDB(t)
	cfg := &config.Config{}
	cfg.Database.AutoMigrate = true

	require.NoError(t, NewService(ServiceParams{DB: db, Config: cfg}).Migrate(context.Background()))

	for _, m := range Models() {
		require.True(t, db.Migrator().HasTable(m))
	}
	require.True(t, db.Migrator().HasIndex(&stamp.Collection{}, "idx_stamp_collections_active"))
}

func TestMigrateDisabled(t *testing.T) {
	db := testutil.NewTestDB(t)

	require.NoError(t, NewService(ServiceParams{DB: db, Config: &config.Config{}}).Migrate(context.Background()))
	require.False(t, db.Migrator().HasTable(&stamp.Collection{}))
}
