package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"opsbridge/pkg/config"
	"opsbridge/pkg/db"
	"opsbridge/pkg/tenants"
)

func baseConfig() config.Config {
	return config.Config{
		Env:               "test",
		TenantSeedJSON:    `[{"id":"JP","display_name":"Loja JP","token_query":"jp"}]`,
		StaticTokensJSON:  `{"jp":"tok-jp"}`,
		TinyBaseURL:       "http://127.0.0.1:1",
		TinyHTTPTimeout:   time.Second,
		TinyAuthRetries:   3,
		RetrySchedule:     config.DefaultRetrySchedule,
		TokenSingleFlight: true,
		TokenCachePrefix:  "test:token:",
	}
}

func TestNewInMemory(t *testing.T) {
	a, err := New(context.Background(), baseConfig(), zap.NewNop().Sugar())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Pool)
	assert.Equal(t, config.DefaultRetrySchedule, []time.Duration(a.Executor.Policy()))

	tn, err := a.Registry.Resolve(context.Background(), "Loja")
	require.NoError(t, err)
	tok, err := a.Tokens.ForceRefresh(context.Background(), tn)
	require.NoError(t, err)
	assert.Equal(t, "tok-jp", tok)

	_, err = a.Querier()
	require.ErrorIs(t, err, db.ErrNoDatabase)

	_, err = a.Chatwoot()
	assert.Error(t, err)
	assert.NotNil(t, a.Inventory())
}

func TestNewWithRedisSharesTokens(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.RedisURL = "redis://" + mr.Addr()

	a, err := New(context.Background(), cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Tokens.ForceRefresh(context.Background(), tenants.Tenant{ID: "JP", TokenDescriptor: "jp"})
	require.NoError(t, err)
	v, err := mr.Get("test:token:JP")
	require.NoError(t, err)
	assert.Equal(t, "tok-jp", v)
}

func TestNewRejectsBadStaticTokens(t *testing.T) {
	cfg := baseConfig()
	cfg.StaticTokensJSON = "{"
	_, err := New(context.Background(), cfg, zap.NewNop().Sugar())
	require.Error(t, err)
}
