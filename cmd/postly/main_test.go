package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"postly/internal/config"
	"postly/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	return &config.Config{
		APIBaseURL:       baseURL,
		Env:              "test",
		RequestTimeout:   5 * time.Second,
		SessionNamespace: "postly-test",
		SessionFile:      filepath.Join(t.TempDir(), "session.json"),
		TracingExporter:  "stdout",
	}
}

func TestNewApp_SessionSurvivesRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := testutil.NewFakeAPI()
	t.Cleanup(fake.Close)
	user := fake.SeedUser()
	cfg := testConfig(t, fake.BaseURL())

	first, err := newApp(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, first.login(ctx, []string{user.Email, testutil.DefaultPassword}))
	first.close()

	second, err := newApp(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(second.close)

	assert.True(t, second.session.IsAuthenticated())
	assert.Equal(t, user.ID, second.session.UserID())
	assert.NotEmpty(t, second.session.RefreshToken())

	profile, err := second.client.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, user.Email, profile.Email)
}

func TestNewApp_LogoutForgetsSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := testutil.NewFakeAPI()
	t.Cleanup(fake.Close)
	user := fake.SeedUser()
	cfg := testConfig(t, fake.BaseURL())

	first, err := newApp(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, first.login(ctx, []string{user.Email, testutil.DefaultPassword}))
	require.NoError(t, first.logout(ctx))
	first.close()

	second, err := newApp(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(second.close)
	assert.False(t, second.session.IsAuthenticated())
}

func TestFormatFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		flags map[string]bool
		want  string
	}{
		{"none", nil, ""},
		{"sorted", map[string]bool{"view_registration": false, "cache_buster": true}, "cache_buster=on view_registration=off"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatFlags(tt.flags))
		})
	}
}

func TestMe_ShowsEvaluatedFlags(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := testutil.NewFakeAPI()
	t.Cleanup(fake.Close)
	user := fake.SeedUser()
	cfg := testConfig(t, fake.BaseURL())
	cfg.FeatureFlags = "cache_buster=on,view_registration=off"

	a, err := newApp(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(a.close)
	require.NoError(t, a.login(ctx, []string{user.Email, testutil.DefaultPassword}))

	assert.Equal(t, "cache_buster=on view_registration=off", formatFlags(a.flags.Snapshot(a.session.UserID())))
	require.NoError(t, a.me(ctx))
}
