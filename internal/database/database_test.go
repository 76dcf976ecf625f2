package database

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsAndOverrides(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("REQUEST_TIMEOUT", "3s")
	t.Setenv("DB_MAX_CONNS", "25")
	t.Setenv("STORAGE_USE_SSL", "false")
	t.Setenv("AUTH_URL", "https://auth.example.com/")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 25, cfg.MaxConns)
	assert.False(t, cfg.StorageUseSSL)
	assert.Equal(t, "https://auth.example.com", cfg.AuthURL)
	assert.Equal(t, "5432", cfg.Port)
	assert.Equal(t, "@every 5s", cfg.OutboxSchedule)
	assert.Contains(t, cfg.DSN(), "pool_max_conns=25")
}

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "AUTH_JWT_SECRET")
}

func TestConfigValidateTimeout(t *testing.T) {
	cfg := Config{AuthJWTSecret: "s", RequestTimeout: 0, MaxConns: 1}
	assert.ErrorContains(t, cfg.Validate(), "REQUEST_TIMEOUT")
}

func TestMigrateAppliesPendingInOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	files := fstest.MapFS{
		"m/0002_b.up.sql":   {Data: []byte("CREATE TABLE b (id INT)")},
		"m/0001_a.up.sql":   {Data: []byte("CREATE TABLE a (id INT)")},
		"m/0001_a.down.sql": {Data: []byte("DROP TABLE a")},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	mock.ExpectQuery("SELECT EXISTS").WithArgs("0001_a.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	mock.ExpectQuery("SELECT EXISTS").WithArgs("0002_b.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("CREATE TABLE b").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("0002_b.up.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	applied, err := migrate(context.Background(), mock, files, "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_b.up.sql"}, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := migrationFiles.ReadDir("migrations")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 4)
}
