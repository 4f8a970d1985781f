package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func TestListDocumentIDs(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewDocumentStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id FROM document_by_connector_credential_pair").
		WithArgs(int64(7), int64(9)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).
			AddRow("https://example.com/a").
			AddRow("https://example.com/b"))

	ids, err := store.ListDocumentIDs(context.Background(), 7, 9)
	require.NoError(t, err)
	require.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListDocumentIDsQueryError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewDocumentStoreWithPool(mock, "docs_by_pair")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id FROM docs_by_pair").
		WithArgs(int64(1), int64(2)).
		WillReturnError(errors.New("connection reset"))

	_, err = store.ListDocumentIDs(context.Background(), 1, 2)
	require.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewDocumentStoreWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewDocumentStoreWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewDocumentStoreWithPool(mock, "bad;drop table")
	require.ErrorContains(t, err, "invalid table name")
}

func TestNewDocumentStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewDocumentStore(context.Background(), DocumentStoreConfig{})
	require.ErrorContains(t, err, "dsn")
}

func TestNilStore(t *testing.T) {
	t.Parallel()

	var store *DocumentStore
	store.Close()
	_, err := store.ListDocumentIDs(context.Background(), 1, 1)
	require.Error(t, err)
}
