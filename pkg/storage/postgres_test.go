package storage

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adarsh-shaw/MedScriptAI/pkg/database"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/logger"
)

func setupPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db := database.Wrap(sqlDB, logger.Discard())
	store, err := NewPostgresStore(db, "medscript_kv")
	require.NoError(t, err)
	return store, mock
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := setupPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM medscript_kv WHERE key = $1")).
		WithArgs("medscript_users").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`[]`)))

	got, err := store.Get(context.Background(), "medscript_users")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(got))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMissing(t *testing.T) {
	store, mock := setupPostgresStore(t)

	mock.ExpectQuery("SELECT value FROM medscript_kv").
		WithArgs("medscript_users").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "medscript_users")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetFailure(t *testing.T) {
	store, mock := setupPostgresStore(t)

	mock.ExpectQuery("SELECT value FROM medscript_kv").
		WithArgs("medscript_users").
		WillReturnError(errors.New("connection reset"))

	_, err := store.Get(context.Background(), "medscript_users")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrKeyNotFound)
}

func TestPostgresStore_SetUpserts(t *testing.T) {
	store, mock := setupPostgresStore(t)

	mock.ExpectExec("INSERT INTO medscript_kv").
		WithArgs("medscript_prescriptions", []byte(`[]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Set(context.Background(), "medscript_prescriptions", []byte(`[]`)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Remove(t *testing.T) {
	store, mock := setupPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM medscript_kv WHERE key = $1")).
		WithArgs("medscript_user").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Remove(context.Background(), "medscript_user"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgresStore_RejectsUnsafeTable(t *testing.T) {
	_, err := NewPostgresStore(&database.DB{}, "kv; DROP TABLE users")
	assert.Error(t, err)
}
