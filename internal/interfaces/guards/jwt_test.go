package guards

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gnest/internal/infra/gnest"
	"gnest/internal/infra/gnest/gnesttest"
	"gnest/internal/pkg/token"
)

func newAuthApp(t *testing.T) (*gnest.App, *token.Service) {
	t.Helper()
	tokens, err := token.NewService(token.Config{Secret: "test-secret"})
	require.NoError(t, err)

	app := gnest.New()
	api := app.Group("/", NewJwtAuthGuard(tokens), RolesGuard{})
	api.GET("/me", func(email string) (string, error) { return email, nil }, gnest.User(0, "Email"))
	api.GET("/admin", ok, Roles("admin"))
	api.GET("/open", ok, Public())
	return app, tokens
}

func TestJwtAuthGuard(t *testing.T) {
	t.Parallel()

	app, tokens := newAuthApp(t)
	valid, err := tokens.Sign("u-1", "ann@example.com", nil)
	require.NoError(t, err)

	tests := map[string]struct {
		header  string
		code    int
		message string
	}{
		"valid token":    {header: "Bearer " + valid, code: http.StatusOK},
		"lowercase":      {header: "bearer " + valid, code: http.StatusOK},
		"missing header": {code: http.StatusUnauthorized, message: "Token must be not empty"},
		"wrong scheme":   {header: "Basic abc", code: http.StatusUnauthorized, message: "Token must be not empty"},
		"bad token":      {header: "Bearer abc.def.ghi", code: http.StatusUnauthorized, message: "Invalid or expired token"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			rec := gnesttest.Do(t, app, http.MethodGet, "/me", "", "Authorization", tc.header)
			require.Equal(t, tc.code, rec.Code)
			if tc.code == http.StatusOK {
				assert.Equal(t, "ann@example.com", rec.Body.String())
				return
			}
			assert.Equal(t, tc.message, gnesttest.Error(t, rec).Message)
		})
	}
}

func TestJwtAuthGuard_public_route(t *testing.T) {
	t.Parallel()

	app, _ := newAuthApp(t)
	assert.Equal(t, http.StatusOK, gnesttest.Do(t, app, http.MethodGet, "/open", "").Code)
}

func TestRolesGuard(t *testing.T) {
	t.Parallel()

	app, tokens := newAuthApp(t)
	admin, err := tokens.Sign("u-1", "", []string{"editor", "admin"})
	require.NoError(t, err)
	reader, err := tokens.Sign("u-2", "", []string{"reader"})
	require.NoError(t, err)

	rec := gnesttest.Do(t, app, http.MethodGet, "/admin", "", "Authorization", "Bearer "+admin)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = gnesttest.Do(t, app, http.MethodGet, "/admin", "", "Authorization", "Bearer "+reader)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Forbidden resource", gnesttest.Error(t, rec).Message)

	rec = gnesttest.Do(t, app, http.MethodGet, "/me", "", "Authorization", "Bearer "+reader)
	assert.Equal(t, http.StatusOK, rec.Code, "routes without roles metadata pass")
}
