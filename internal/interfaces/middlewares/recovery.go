package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gnest/internal/infra/gnest"
)

// Recovery catches panics raised outside compiled routes, e.g. in other gin
// middleware, and answers with the default 500 body.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("panic recovered",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", RequestID(c)),
			zap.Any("panic", recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gnest.ErrorResponse{
			StatusCode: http.StatusInternalServerError,
			Message:    "Internal server error",
			Error:      http.StatusText(http.StatusInternalServerError),
		})
	})
}
