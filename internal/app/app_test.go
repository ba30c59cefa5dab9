package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gnest/internal/config"
	"gnest/internal/infra/gnest"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Log.File = false
	cfg.Jwt.Secret = "test-secret"
	cfg.PgSQL.Host = "127.0.0.1"
	cfg.PgSQL.Port = 1
	return cfg
}

func TestSetup_requires_jwt_secret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Jwt.Secret = ""

	_, err := Setup(cfg)
	assert.Error(t, err)
}

func TestSetup_compiles_routes_before_connecting(t *testing.T) {
	server, err := Setup(testConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// nothing listens on the database port, startup stops at its first hook
	err = server.Init(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PGSQL")
	assert.Equal(t, gnest.StateDestroyed, server.State())

	var routes []string
	for _, r := range server.Routes() {
		routes = append(routes, r.Descriptor.Method+" "+r.Descriptor.Path)
	}
	for _, want := range []string{
		"GET /health",
		"POST /users",
		"POST /users/login",
		"GET /users/me",
		"GET /users/:id",
		"POST /files",
		"GET /files/:name",
		"DELETE /files/:name",
	} {
		assert.Contains(t, routes, want)
	}
}
