package filters

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"gnest/internal/infra/gnest"
)

// Body is the error body written by the filters in this package.
type Body struct {
	StatusCode int       `json:"statusCode"`
	Message    any       `json:"message"`
	Error      string    `json:"error"`
	Path       string    `json:"path"`
	Timestamp  time.Time `json:"timestamp"`
}

func respond(ctx *gnest.ExecutionContext, status int, message any) *gnest.Response {
	return &gnest.Response{
		Status: status,
		Body: Body{
			StatusCode: status,
			Message:    message,
			Error:      http.StatusText(status),
			Path:       ctx.Path(),
			Timestamp:  time.Now().UTC(),
		},
	}
}

// HttpException renders any error carrying a status, adding the request path
// and a timestamp to the default body.
func HttpException() gnest.FilterEntry {
	return gnest.Catch(gnest.FilterFunc(func(err error, ctx *gnest.ExecutionContext) (any, error) {
		var sc gnest.StatusCoder
		errors.As(err, &sc)
		msg := err.Error()
		var he *gnest.HttpException
		if errors.As(err, &he) {
			msg = he.Message
		}
		return respond(ctx, sc.StatusCode(), msg), nil
	}), gnest.ErrorType[gnest.StatusCoder]())
}

// Validation renders validator failures as a 400 listing every message.
func Validation() gnest.FilterEntry {
	return gnest.Catch(gnest.FilterFunc(func(err error, ctx *gnest.ExecutionContext) (any, error) {
		var verrs validator.ValidationErrors
		errors.As(err, &verrs)
		return respond(ctx, http.StatusBadRequest, gnest.ValidationMessages(verrs)), nil
	}), gnest.ErrorType[validator.ValidationErrors]())
}

// RecordNotFound maps gorm.ErrRecordNotFound to 404.
func RecordNotFound() gnest.FilterEntry {
	return gnest.Catch(gnest.FilterFunc(func(_ error, ctx *gnest.ExecutionContext) (any, error) {
		return respond(ctx, http.StatusNotFound, "Record not found"), nil
	}), gorm.ErrRecordNotFound)
}

// LogAll logs every error it sees and rethrows it.
func LogAll(log *zap.Logger) gnest.FilterEntry {
	return gnest.Catch(gnest.FilterFunc(func(err error, ctx *gnest.ExecutionContext) (any, error) {
		log.Warn("request failed",
			zap.String("method", ctx.Method()),
			zap.String("route", ctx.Route()),
			zap.Stringer("stage", gnest.StageOf(err)),
			zap.Error(err))
		return nil, err
	}))
}
