// Package gnesttest drives an initialized gnest.App in-process for tests.
package gnesttest

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"gnest/internal/infra/gnest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Do initializes app on first use and serves one request. header holds
// name/value pairs. A non-empty body is sent as JSON.
func Do(t testing.TB, app *gnest.App, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	require.NoError(t, app.Init(context.Background()))

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	return rec
}

// Error decodes a default error response body.
func Error(t testing.TB, rec *httptest.ResponseRecorder) gnest.ErrorResponse {
	t.Helper()
	var body gnest.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// JSON decodes the response body into T.
func JSON[T any](t testing.TB, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}
