package gnest

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrDenied is the cause of every guard denial. Use errors.Is to detect it.
var ErrDenied = errors.New("gnest: access denied")

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// HttpException is an error with an explicit response status and message.
type HttpException struct {
	Status  int
	Message string
	Cause   error
}

func (e *HttpException) Error() string   { return e.Message }
func (e *HttpException) StatusCode() int { return e.Status }
func (e *HttpException) Unwrap() error   { return e.Cause }

// NewHttpException returns an exception for status. An empty message falls back
// to the standard status text.
func NewHttpException(status int, message string) *HttpException {
	if message == "" {
		message = http.StatusText(status)
	}
	return &HttpException{Status: status, Message: message}
}

func BadRequest(msg string) error      { return NewHttpException(http.StatusBadRequest, msg) }
func Unauthorized(msg string) error    { return NewHttpException(http.StatusUnauthorized, msg) }
func Forbidden(msg string) error       { return NewHttpException(http.StatusForbidden, msg) }
func NotFound(msg string) error        { return NewHttpException(http.StatusNotFound, msg) }
func Conflict(msg string) error        { return NewHttpException(http.StatusConflict, msg) }
func RequestTimeout(msg string) error  { return NewHttpException(http.StatusRequestTimeout, msg) }
func TooManyRequests(msg string) error { return NewHttpException(http.StatusTooManyRequests, msg) }

// Stage identifies the pipeline step an error escaped from.
type Stage int

const (
	StageGuard Stage = iota + 1
	StageResolve
	StageHandler
	StageFilter
)

func (s Stage) String() string {
	switch s {
	case StageGuard:
		return "guard"
	case StageResolve:
		return "resolve"
	case StageHandler:
		return "handler"
	case StageFilter:
		return "filter"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// PipelineError records where a request failed. Index is the guard, parameter or
// filter position for the stage, or -1.
type PipelineError struct {
	Stage Stage
	Index int
	Err   error
}

func (e *PipelineError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("gnest: %s[%d]: %v", e.Stage, e.Index, e.Err)
	}
	return fmt.Sprintf("gnest: %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// StageOf reports the stage recorded on err, or 0 when err did not come out of a pipeline.
func StageOf(err error) Stage {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Stage
	}
	return 0
}

// fault tags err with a stage unless it already carries one.
func fault(stage Stage, index int, err error) error {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return err
	}
	return &PipelineError{Stage: stage, Index: index, Err: err}
}

func denial(status, index int) error {
	msg := "Forbidden resource"
	if status != http.StatusForbidden {
		msg = http.StatusText(status)
	}
	return &PipelineError{
		Stage: StageGuard,
		Index: index,
		Err:   &HttpException{Status: status, Message: msg, Cause: ErrDenied},
	}
}

func recovered(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}

// ErrorResponse is the body written for errors that no filter claimed.
type ErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Error      string `json:"error"`
}

const genericErrorMessage = "Internal server error"

// DefaultErrorMapping turns an unclaimed error into a response. Errors carrying a
// status code keep their status and message. Anything else becomes a 500 with a
// generic message; dev exposes the real message instead.
func DefaultErrorMapping(err error, dev bool) *Response {
	var sc StatusCoder
	if errors.As(err, &sc) && sc.StatusCode() >= http.StatusBadRequest {
		status := sc.StatusCode()
		msg := http.StatusText(status)
		if e, ok := sc.(error); ok && e.Error() != "" {
			msg = e.Error()
		}
		return &Response{Status: status, Body: ErrorResponse{
			StatusCode: status,
			Message:    msg,
			Error:      http.StatusText(status),
		}}
	}

	msg := genericErrorMessage
	if dev && err != nil {
		msg = err.Error()
		var pe *PipelineError
		if errors.As(err, &pe) && pe.Err != nil {
			msg = pe.Err.Error()
		}
	}
	return &Response{Status: http.StatusInternalServerError, Body: ErrorResponse{
		StatusCode: http.StatusInternalServerError,
		Message:    msg,
		Error:      http.StatusText(http.StatusInternalServerError),
	}}
}
