package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// =============================================================================
// 🧪 PoolManager 测试
// =============================================================================

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *gorm.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	require.NoError(t, err)
	return mockDB, mock, gormDB
}

func newTestManager(t *testing.T, gormDB *gorm.DB, retries int) *PoolManager {
	t.Helper()
	cfg := PoolConfig{MaxOpenConns: 4, MaxIdleConns: 2, MaxRetries: retries}
	pm, err := NewPoolManager(gormDB, cfg, zap.NewNop())
	require.NoError(t, err)
	return pm
}

func TestNewPoolManager_NilDB(t *testing.T) {
	_, err := NewPoolManager(nil, DefaultPoolConfig(), nil)
	assert.Error(t, err)
}

func TestNewPoolManager_AppliesConfig(t *testing.T) {
	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	pm := newTestManager(t, gormDB, 0)
	assert.Equal(t, 1, pm.config.MaxRetries, "non-positive retries fall back to a single attempt")
	assert.Equal(t, gormDB, pm.DB())
	assert.Equal(t, 4, pm.Stats().MaxOpenConnections)
}

func TestPoolManager_Ping(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	pm := newTestManager(t, gormDB, 1)
	mock.ExpectPing()
	require.NoError(t, pm.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_CloseIsIdempotent(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	pm := newTestManager(t, gormDB, 1)
	mock.ExpectClose()
	require.NoError(t, pm.Close())
	require.NoError(t, pm.Close())

	assert.ErrorIs(t, pm.Ping(context.Background()), ErrPoolClosed)
	assert.ErrorIs(t, pm.WithTransaction(context.Background(), func(*gorm.DB) error { return nil }), ErrPoolClosed)
}

func TestPoolManager_WithTransaction_Commit(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	pm := newTestManager(t, gormDB, 3)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE knowledge_concepts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := pm.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return tx.Exec("UPDATE knowledge_concepts SET usage_count = usage_count + 1").Error
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransaction_RollbackOnError(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	pm := newTestManager(t, gormDB, 3)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("constraint violated")
	err := pm.WithTransaction(context.Background(), func(*gorm.DB) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet(), "non-retryable errors are not retried")
}

func TestPoolManager_WithTransaction_RetriesDeadlock(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	pm := newTestManager(t, gormDB, 3)
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	attempts := 0
	err := pm.WithTransaction(context.Background(), func(*gorm.DB) error {
		attempts++
		if attempts == 1 {
			return errors.New("ERROR: deadlock detected")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransaction_GivesUp(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	pm := newTestManager(t, gormDB, 2)
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	err := pm.WithTransaction(context.Background(), func(*gorm.DB) error {
		return errors.New("database is locked")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestPoolManager_WithTransaction_ContextCancelledDuringBackoff(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	pm := newTestManager(t, gormDB, 5)
	mock.ExpectBegin()
	mock.ExpectRollback()

	ctx, cancel := context.WithCancel(context.Background())
	err := pm.WithTransaction(ctx, func(*gorm.DB) error {
		cancel()
		return errors.New("serialization failure")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("Deadlock found when trying to get lock"), true},
		{errors.New("pq: could not serialize access (SQLSTATE 40001)"), true},
		{errors.New("driver: bad connection"), true},
		{errors.New("duplicate key value"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryableError(tt.err), "%v", tt.err)
	}
}

func TestDialector(t *testing.T) {
	for _, driver := range []string{DriverPostgres, DriverMySQL, DriverSQLite, DriverSQLite3} {
		d, err := Dialector(driver, "dsn")
		require.NoError(t, err, driver)
		assert.NotNil(t, d)
	}
	_, err := Dialector("oracle", "dsn")
	assert.Error(t, err)
}

func TestOpen_SQLiteMemory(t *testing.T) {
	db, err := Open(DriverSQLite, ":memory:", nil)
	require.NoError(t, err)

	pm, err := NewPoolManager(db, PoolConfig{MaxOpenConns: 1, HealthCheckInterval: time.Hour, MaxRetries: 1}, nil)
	require.NoError(t, err)
	defer pm.Close()

	require.NoError(t, pm.Ping(context.Background()))
	var n int
	require.NoError(t, pm.DB().Raw("SELECT 1").Scan(&n).Error)
	assert.Equal(t, 1, n)
}
