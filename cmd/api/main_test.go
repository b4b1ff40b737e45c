package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhouzirui/companion-academy/backend/internal/config"
	"github.com/zhouzirui/companion-academy/backend/internal/model/companion"
)

func TestLoadTiersDefaults(t *testing.T) {
	tiers, err := loadTiers(config.QuotaConfig{UnlimitedPlan: "premium"})
	require.NoError(t, err)
	assert.Equal(t, "premium", tiers.UnlimitedPlan)
	assert.Len(t, tiers.Rules, 2)
}

func TestOpenMemoryStore(t *testing.T) {
	store, closer, err := openStore(context.Background(), config.StoreConfig{
		Driver:     config.DriverMemory,
		SeedAuthor: "system",
	}, zap.NewNop())
	require.NoError(t, err)
	defer closer.Close()

	items, err := store.ListCompanions(context.Background(), companion.ListQuery{Limit: -1})
	require.NoError(t, err)
	assert.Len(t, items, len(companion.Seed()))
}

func TestNewIdentityProviderDisabled(t *testing.T) {
	provider, err := newIdentityProvider(config.AuthConfig{Provider: config.AuthJWT}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, provider)
}

func TestRunServerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- runServer(ctx, srv) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
