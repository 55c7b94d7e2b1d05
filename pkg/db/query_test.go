package db

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryReturnsRowMaps(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT id, name FROM produtos").
		WithArgs("JP").
		WillReturnRows(mock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), "Camiseta").
			AddRow(int64(2), "Bermuda"))

	rows, err := Query(context.Background(), mock, "SELECT id, name FROM produtos WHERE empresa = $1", "JP")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Camiseta", rows[0]["name"])
	assert.Equal(t, int64(2), rows[1]["id"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryEmptyResultIsEmptySlice(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT 1").WillReturnRows(mock.NewRows([]string{"x"}))

	rows, err := Query(context.Background(), mock, "SELECT 1 WHERE false")
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestQueryPropagatesError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("relation does not exist")
	mock.ExpectQuery("SELECT").WillReturnError(boom)

	_, err = Query(context.Background(), mock, "SELECT * FROM nope")
	require.ErrorIs(t, err, boom)
}

func TestListSchemas(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM pg_namespace").
		WillReturnRows(mock.NewRows([]string{"nspname", "rolname"}).
			AddRow("public", "postgres").
			AddRow("tokens", "ops"))

	schemas, err := ListSchemas(context.Background(), mock)
	require.NoError(t, err)
	assert.Equal(t, []Schema{{Name: "public", Owner: "postgres"}, {Name: "tokens", Owner: "ops"}}, schemas)
}

func TestListTablesBySchemaIsParameterized(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM information_schema.tables").
		WithArgs("tokens").
		WillReturnRows(mock.NewRows([]string{"table_name"}).AddRow("tiny").AddRow("chatwoot"))

	tables, err := ListTablesBySchema(context.Background(), mock, "tokens")
	require.NoError(t, err)
	assert.Equal(t, []string{"tiny", "chatwoot"}, tables)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHelpersWithoutDatabase(t *testing.T) {
	ctx := context.Background()
	require.ErrorIs(t, Ping(ctx, nil), ErrNoDatabase)
	_, err := Query(ctx, nil, "SELECT 1")
	require.ErrorIs(t, err, ErrNoDatabase)
	_, err = ListSchemas(ctx, nil)
	require.ErrorIs(t, err, ErrNoDatabase)
}

func TestBeginTxWithTenantSetsConfig(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("set_config").WithArgs("JP").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectCommit()

	tx, err := BeginTxWithTenant(context.Background(), mock, "JP")
	require.NoError(t, err)
	require.NoError(t, tx.Commit(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedactDSNQuery(t *testing.T) {
	assert.Equal(t, "***@db:5432/ops", redactDSN("postgres://u:secret@db:5432/ops"))
	assert.Equal(t, "nodsn", redactDSN("nodsn"))
}
