package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"opsbridge/internal/app"
	"opsbridge/internal/executor"
	"opsbridge/pkg/config"
	"opsbridge/pkg/tenants"
)

func testConfig(baseURL string) config.Config {
	return config.Config{
		Env:               "test",
		TenantSeedJSON:    `[{"id":"JP","display_name":"Loja JP","token_query":"jp"},{"id":"SP","display_name":"Loja SP","token_query":"sp"}]`,
		StaticTokensJSON:  `{"jp":"tok-jp","sp":"tok-sp"}`,
		TinyBaseURL:       baseURL,
		TinyHTTPTimeout:   5 * time.Second,
		TinyAuthRetries:   3,
		RetrySchedule:     []time.Duration{time.Millisecond},
		TokenSingleFlight: true,
	}
}

func run(t *testing.T, cfg config.Config, args ...string) (string, error) {
	t.Helper()
	var built int
	root := NewRootCmd(func(ctx context.Context, verbose bool) (*app.App, error) {
		built++
		return app.New(ctx, cfg, zap.NewNop().Sugar())
	})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	assert.LessOrEqual(t, built, 1)
	return out.String(), err
}

func TestProductGetWithQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-sp", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"itens":[{"id":901,"codigo":"SP 0001"}]}`)
	}))
	defer srv.Close()

	out, err := run(t, testConfig(srv.URL), "product", "get", "SP", "codigo", "SP 0001", "--query", "itens[0].codigo")
	require.NoError(t, err)
	assert.Equal(t, "SP 0001\n", out)

	out, err = run(t, testConfig(srv.URL), "product", "get", "Loja SP", "codigo", "SP 0001")
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Len(t, doc["itens"], 1)
}

func TestUnknownTenantExitsOne(t *testing.T) {
	_, err := run(t, testConfig("http://127.0.0.1:1"), "stock", "deposits", "MG")
	require.ErrorIs(t, err, tenants.ErrUnknownTenant)
	assert.Equal(t, 1, ExitCode(err))
}

func TestStockMove(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/estoque/555", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = io.WriteString(w, `{"idLancamento":1}`)
	}))
	defer srv.Close()

	out, err := run(t, testConfig(srv.URL), "stock", "move", "--from", "JP", "--to", "SP", "--product", "555",
		"--type", "s", "--qty", "2", "--deposit", "42", "-q", "idLancamento")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)
	assert.Equal(t, "S", body["tipo"])

	_, err = run(t, testConfig(srv.URL), "stock", "move", "--from", "JP", "--product", "555", "--type", "Q", "--qty", "2", "--deposit", "42")
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestRateLimitedExitCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := run(t, testConfig(srv.URL), "stock", "deposits", "JP")
	require.ErrorIs(t, err, executor.ErrRateLimitExhausted)
	assert.Equal(t, ExitRateLimited, ExitCode(err))
}

func TestTokenRefresh(t *testing.T) {
	out, err := run(t, testConfig("http://127.0.0.1:1"), "token", "refresh", "JP", "-q", "refreshed")
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)
}

func TestDBWithoutDatabase(t *testing.T) {
	_, err := run(t, testConfig("http://127.0.0.1:1"), "db", "ping")
	require.Error(t, err)
}

func TestSheetFilterNeedsNoApp(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Código", "Estoque"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"A1", 5}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"A2", 0}))
	path := filepath.Join(t.TempDir(), "inv.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	root := NewRootCmd(func(context.Context, bool) (*app.App, error) {
		t.Fatal("app must not be built")
		return nil, nil
	})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"sheet", "filter", path, "Estoque", ">0", "-q", "[].codigo"})
	require.NoError(t, root.Execute())
	assert.JSONEq(t, `["A1"]`, out.String())
}

func TestInventoryClean(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.xls"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("x"), 0o644))

	root := NewRootCmd(nil)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"inventory", "clean", dir, "-q", "length(removed)"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "1\n", out.String())
}
