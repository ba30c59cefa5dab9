package interceptors

import (
	"net/http"

	"gnest/internal/infra/gnest"
)

// Envelope is the uniform success body.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// EnvelopeInterceptor wraps plain results in an Envelope. Results that already
// describe the response (Response, redirects, files, raw data, templates) pass
// through untouched, as do errors.
type EnvelopeInterceptor struct {
	Message string
}

func (e EnvelopeInterceptor) Intercept(ctx *gnest.ExecutionContext, next gnest.CallHandler) (any, error) {
	res, err := next()
	if err != nil {
		return nil, err
	}
	switch res.(type) {
	case gnest.Response, *gnest.Response, gnest.RedirectResult, *gnest.RedirectResult,
		gnest.FileResult, gnest.DataResult, gnest.Render, Envelope:
		return res, nil
	}
	code := ctx.StatusCode()
	if code == 0 {
		code = http.StatusOK
	}
	msg := e.Message
	if msg == "" {
		msg = "success"
	}
	return Envelope{Code: code, Message: msg, Data: res}, nil
}
