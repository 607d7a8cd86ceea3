package database

import (
	"path/filepath"
	"testing"

	"cortexa-go/internal/config"
	"cortexa-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := Init(config.DatabaseConfig{Driver: "sqlite", Path: path}, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, db.Migrator().HasTable(&models.Submission{}))
	assert.True(t, db.Migrator().HasIndex(&models.Submission{}, "RunID"))
}

func TestInitUnknownDriver(t *testing.T) {
	_, err := Init(config.DatabaseConfig{Driver: "oracle"}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}
