package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"spatial-hub-go/internal/consistency"
	"spatial-hub-go/internal/model"
)

var noSuchTable = &mysqldriver.MySQLError{Number: 1146, Message: "Table 'spatial.consistency_check_logs' doesn't exist"}

func TestConsistencyLogRepositoryInsert(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("INSERT INTO `consistency_check_logs`").
			WillReturnResult(sqlmock.NewResult(7, 1))

		entry := &model.ConsistencyLog{CheckType: model.CheckTypeFull, Status: model.CheckStatusSuccess}
		require.NoError(t, NewConsistencyLogRepository(db).Insert(ctx, entry))
		assert.Equal(t, uint(7), entry.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MissingTable", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("INSERT INTO `consistency_check_logs`").WillReturnError(noSuchTable)

		err := NewConsistencyLogRepository(db).Insert(ctx, &model.ConsistencyLog{CheckType: model.CheckTypeFull})
		assert.ErrorIs(t, err, consistency.ErrLogSinkMissing)
	})

	t.Run("OtherFailure", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("INSERT INTO `consistency_check_logs`").WillReturnError(errors.New("read-only"))

		err := NewConsistencyLogRepository(db).Insert(ctx, &model.ConsistencyLog{CheckType: model.CheckTypeFull})
		require.Error(t, err)
		assert.NotErrorIs(t, err, consistency.ErrLogSinkMissing)
	})
}

func TestConsistencyLogRepositoryRecent(t *testing.T) {
	ctx := context.Background()
	columns := []string{"id", "check_type", "status", "orphaned_records", "orphaned_files", "valid_files", "details", "created_at"}

	t.Run("NewestFirst", func(t *testing.T) {
		db, mock := newMockDB(t)
		now := time.Now()
		mock.ExpectQuery("SELECT \\* FROM `consistency_check_logs` ORDER BY created_at DESC").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(2, "full", "warning", 1, 0, 3, "{}", now).
				AddRow(1, "single", "success", 0, 0, 1, "{}", now.Add(-time.Minute)))

		entries, err := NewConsistencyLogRepository(db).Recent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, uint(2), entries[0].ID)
		assert.Equal(t, model.CheckStatusWarning, entries[0].Status)
	})

	t.Run("MissingTable", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery("SELECT").WillReturnError(noSuchTable)

		_, err := NewConsistencyLogRepository(db).Recent(ctx, 10)
		assert.ErrorIs(t, err, consistency.ErrLogSinkMissing)
	})
}
