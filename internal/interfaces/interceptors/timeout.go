package interceptors

import (
	"context"
	"errors"
	"net/http"
	"time"

	"gnest/internal/infra/gnest"
)

// TimeoutInterceptor installs a deadline on the request context. A handler that
// returns after the deadline, or fails because of it, yields 408. The handler
// is not abandoned; it should observe ctx.Done().
type TimeoutInterceptor struct {
	Timeout time.Duration
}

func Timeout(d time.Duration) *TimeoutInterceptor { return &TimeoutInterceptor{Timeout: d} }

func (t *TimeoutInterceptor) Intercept(ctx *gnest.ExecutionContext, next gnest.CallHandler) (any, error) {
	parent := ctx.Context()
	tctx, cancel := context.WithTimeout(parent, t.Timeout)
	defer cancel()
	ctx.SetContext(tctx)
	defer ctx.SetContext(parent)

	res, err := next()
	if errors.Is(tctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return nil, &gnest.HttpException{Status: http.StatusRequestTimeout, Message: "Request Timeout", Cause: context.DeadlineExceeded}
	}
	return res, err
}
