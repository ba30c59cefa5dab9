package filters

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"gnest/internal/infra/gnest"
	"gnest/internal/infra/gnest/gnesttest"
)

type signup struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func TestFilters(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	app := gnest.New()
	app.UseGlobalFilters(HttpException())
	api := app.Group("/", LogAll(zap.New(core)), RecordNotFound(), Validation())
	api.POST("/signup", func(s signup) (signup, error) { return s, nil },
		gnest.Body(0, "", gnest.NewValidationPipe()))
	api.GET("/missing", func() (any, error) { return nil, gorm.ErrRecordNotFound })
	api.GET("/conflict", func() (any, error) { return nil, gnest.Conflict("email taken") })
	api.GET("/boom", func() (any, error) { panic("boom") })

	t.Run("validation", func(t *testing.T) {
		rec := gnesttest.Do(t, app, http.MethodPost, "/signup", `{"email":"nope","password":"short"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := gnesttest.JSON[Body](t, rec)
		assert.Equal(t, []any{
			"Email failed on 'email' validation",
			"Password failed on 'min' validation (param=8)",
		}, body.Message)
		assert.Equal(t, "/signup", body.Path)
	})

	t.Run("record not found", func(t *testing.T) {
		rec := gnesttest.Do(t, app, http.MethodGet, "/missing", "")
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Record not found", gnesttest.JSON[Body](t, rec).Message)
	})

	t.Run("global http exception", func(t *testing.T) {
		rec := gnesttest.Do(t, app, http.MethodGet, "/conflict", "")
		require.Equal(t, http.StatusConflict, rec.Code)
		body := gnesttest.JSON[Body](t, rec)
		assert.Equal(t, "email taken", body.Message)
		assert.Equal(t, "Conflict", body.Error)
	})

	t.Run("unclaimed falls back to default mapping", func(t *testing.T) {
		rec := gnesttest.Do(t, app, http.MethodGet, "/boom", "")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Internal server error", gnesttest.Error(t, rec).Message)
	})

	assert.Equal(t, 4, logs.FilterMessage("request failed").Len())
}
