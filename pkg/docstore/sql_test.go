package docstore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLStore_Rebind(t *testing.T) {
	pg := &SQLStore{driver: "postgres"}
	assert.Equal(t,
		`UPDATE documents SET rev = $1, body = $2 WHERE id = $3 AND rev = $4`,
		pg.rebind(`UPDATE documents SET rev = ?, body = ? WHERE id = ? AND rev = ?`))

	lite := &SQLStore{driver: "sqlite3"}
	assert.Equal(t, `SELECT rev, body FROM documents WHERE id = ?`,
		lite.rebind(`SELECT rev, body FROM documents WHERE id = ?`))
}

func TestSQLStore_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db, "postgres")

	mock.ExpectExec("INSERT INTO documents").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), `{"type":"user"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, rev, err := store.Create(context.Background(), json.RawMessage(`{"type":"user"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Regexp(t, `^1-`, rev)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_UpdateConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db, "postgres")

	// Zero rows affected, document still present: stale revision.
	mock.ExpectExec("UPDATE documents SET").
		WithArgs(sqlmock.AnyArg(), `{"n":2}`, "doc-1", "1-aaa").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1 FROM documents").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	_, err = store.Update(context.Background(), "doc-1", json.RawMessage(`{"n":2}`), "1-aaa")
	assert.True(t, IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_UpdateMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db, "postgres")

	mock.ExpectExec("UPDATE documents SET").
		WithArgs(sqlmock.AnyArg(), `{"n":2}`, "doc-gone", "1-aaa").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1 FROM documents").
		WithArgs("doc-gone").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	_, err = store.Update(context.Background(), "doc-gone", json.RawMessage(`{"n":2}`), "1-aaa")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db, "postgres")

	mock.ExpectQuery("SELECT rev, body FROM documents").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"rev", "body"}).AddRow("2-bbb", `{"type":"user"}`))

	doc, err := store.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "2-bbb", doc.Rev)
	assert.JSONEq(t, `{"type":"user"}`, string(doc.Body))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_QueryByEquality_Postgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db, "postgres")

	mock.ExpectQuery("SELECT id, rev, body FROM documents WHERE body::jsonb").
		WithArgs(`{"googleId":"123"}`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "rev", "body"}).
			AddRow("doc-1", "1-aaa", `{"type":"user","googleId":"123"}`))

	docs, err := store.QueryByEquality(context.Background(), map[string]any{"googleId": "123"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-1", docs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_QueryByEquality_SQLiteFiltersInProcess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db, "sqlite3")

	mock.ExpectQuery("SELECT id, rev, body FROM documents").
		WillReturnRows(sqlmock.NewRows([]string{"id", "rev", "body"}).
			AddRow("doc-1", "1-aaa", `{"type":"user","googleId":"123"}`).
			AddRow("doc-2", "1-bbb", `{"type":"user","googleId":"456"}`))

	docs, err := store.QueryByEquality(context.Background(), map[string]any{"googleId": "456"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-2", docs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
