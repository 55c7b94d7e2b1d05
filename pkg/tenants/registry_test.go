package tenants

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() []Tenant {
	return []Tenant{
		{ID: "JP", DisplayName: "Loja Jardim Paulista", TokenDescriptor: "q-jp"},
		{ID: "SP", DisplayName: "Loja Sao Paulo Centro", TokenDescriptor: "q-sp"},
		{ID: "RJ", DisplayName: "Loja Rio", TokenDescriptor: "q-rj"},
	}
}

func TestResolveExactIDWins(t *testing.T) {
	reg, err := NewMemoryRegistry(sample(), false, nil)
	require.NoError(t, err)

	got, err := reg.Resolve(context.Background(), "SP")
	require.NoError(t, err)
	assert.Equal(t, "SP", got.ID)
}

func TestResolveSubstringFirstMatch(t *testing.T) {
	reg, err := NewMemoryRegistry(sample(), false, nil)
	require.NoError(t, err)

	got, err := reg.Resolve(context.Background(), "Paulista")
	require.NoError(t, err)
	assert.Equal(t, "JP", got.ID)

	// "Loja" matches every tenant; registry order decides.
	got, err = reg.Resolve(context.Background(), "Loja")
	require.NoError(t, err)
	assert.Equal(t, "JP", got.ID)
}

func TestResolveExactIDBeatsEarlierSubstring(t *testing.T) {
	list := []Tenant{
		{ID: "A", DisplayName: "contains RJ in name"},
		{ID: "RJ", DisplayName: "Rio"},
	}
	reg, err := NewMemoryRegistry(list, false, nil)
	require.NoError(t, err)

	got, err := reg.Resolve(context.Background(), "RJ")
	require.NoError(t, err)
	assert.Equal(t, "RJ", got.ID)
}

func TestResolveUnknownAndEmpty(t *testing.T) {
	reg, err := NewMemoryRegistry(sample(), false, nil)
	require.NoError(t, err)

	_, err = reg.Resolve(context.Background(), "MG")
	require.ErrorIs(t, err, ErrUnknownTenant)

	_, err = reg.Resolve(context.Background(), "")
	require.ErrorIs(t, err, ErrUnknownTenant)
}

func TestResolveStrictDisablesSubstring(t *testing.T) {
	reg, err := NewMemoryRegistry(sample(), true, nil)
	require.NoError(t, err)

	_, err = reg.Resolve(context.Background(), "Paulista")
	require.ErrorIs(t, err, ErrUnknownTenant)

	got, err := reg.Resolve(context.Background(), "JP")
	require.NoError(t, err)
	assert.Equal(t, "JP", got.ID)
}

func TestGetIsExactOnly(t *testing.T) {
	reg, err := NewMemoryRegistry(sample(), false, nil)
	require.NoError(t, err)

	_, err = reg.Get(context.Background(), "Rio")
	require.ErrorIs(t, err, ErrUnknownTenant)

	got, err := reg.Get(context.Background(), "RJ")
	require.NoError(t, err)
	assert.Equal(t, "q-rj", got.TokenDescriptor)
}

func TestNewMemoryRegistryRejectsBadIDs(t *testing.T) {
	_, err := NewMemoryRegistry([]Tenant{{ID: ""}}, false, nil)
	require.Error(t, err)

	_, err = NewMemoryRegistry([]Tenant{{ID: "JP"}, {ID: "JP"}}, false, nil)
	require.Error(t, err)
}

func TestListPreservesOrderAndCopies(t *testing.T) {
	reg, err := NewMemoryRegistry(sample(), false, nil)
	require.NoError(t, err)

	list, err := reg.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)
	list[0].ID = "mutated"

	again, _ := reg.List(context.Background())
	assert.Equal(t, []string{"JP", "SP", "RJ"}, []string{again[0].ID, again[1].ID, again[2].ID})
}

func TestFromEnvJSON(t *testing.T) {
	seed := `[{"id":"JP","display_name":"Loja JP","token_query":"SELECT access_token FROM t"}]`
	reg, err := NewMemoryRegistryFromEnv(seed, "", false, nil)
	require.NoError(t, err)

	got, err := reg.Resolve(context.Background(), "JP")
	require.NoError(t, err)
	assert.Equal(t, "SELECT access_token FROM t", got.TokenDescriptor)
}

func TestFromEnvYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenants.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`tenants:
  - id: JP
    display_name: Loja JP
    token_query: SELECT 1
  - id: SP
    display_name: Loja SP
    token_query: SELECT 2
`), 0o600))

	reg, err := NewMemoryRegistryFromEnv("", path, false, nil)
	require.NoError(t, err)
	list, err := reg.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "SELECT 2", list[1].TokenDescriptor)
}

func TestFromEnvBadJSON(t *testing.T) {
	_, err := NewMemoryRegistryFromEnv("{", "", false, nil)
	require.Error(t, err)
}

func TestPostgresRegistryLoadsInOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM erp_tenants ORDER BY position").
		WillReturnRows(mock.NewRows([]string{"id", "display_name", "token_query"}).
			AddRow("JP", "Loja JP", "q1").
			AddRow("SP", "Loja SP", "q2"))

	reg, err := NewPostgresRegistry(context.Background(), mock, false, nil)
	require.NoError(t, err)
	got, err := reg.Resolve(context.Background(), "SP")
	require.NoError(t, err)
	assert.Equal(t, "q2", got.TokenDescriptor)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedFromEnvUpserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO erp_tenants").
		WithArgs("JP", "Loja JP", "q1", 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO erp_tenants").
		WithArgs("SP", "Loja SP", "q2", 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	seed := `[{"id":"JP","display_name":"Loja JP","token_query":"q1"},{"id":"SP","display_name":"Loja SP","token_query":"q2"}]`
	require.NoError(t, SeedFromEnv(context.Background(), mock, seed))
	require.NoError(t, mock.ExpectationsWereMet())
}
