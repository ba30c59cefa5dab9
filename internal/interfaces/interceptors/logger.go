package interceptors

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"gnest/internal/infra/gnest"
	"gnest/internal/infra/logger"
	"gnest/internal/interfaces/middlewares"
)

type LoggingInterceptor struct {
	// injected by the container
	LoggerService *logger.LoggerService
}

func (l *LoggingInterceptor) Intercept(ctx *gnest.ExecutionContext, next gnest.CallHandler) (any, error) {
	start := time.Now()
	result, err := next()
	duration := time.Since(start)

	fields := []zap.Field{
		zap.String("url", ctx.Request().URL.String()),
		zap.String("method", ctx.Method()),
		zap.String("route", ctx.Route()),
		zap.Int("code", statusOf(ctx, err)),
		zap.String("ip", ctx.ClientIP()),
		zap.Duration("duration", duration),
		zap.String("request_id", middlewares.RequestID(ctx.Gin())),
	}

	log := l.LoggerService.Log
	if err != nil {
		fields = append(fields, zap.Stringer("stage", gnest.StageOf(err)), zap.Error(err))
		log.Error("HTTP Request Error", fields...)
	} else {
		log.Info("HTTP Request OK", fields...)
	}
	return result, err
}

// statusOf is the status the response is expected to carry; a filter may still
// change it.
func statusOf(ctx *gnest.ExecutionContext, err error) int {
	if err != nil {
		var sc gnest.StatusCoder
		if errors.As(err, &sc) {
			return sc.StatusCode()
		}
		return http.StatusInternalServerError
	}
	if s := ctx.StatusCode(); s != 0 {
		return s
	}
	return http.StatusOK
}
