package gnest

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ArgumentMetadata describes the handler argument a pipe is transforming.
type ArgumentMetadata struct {
	Index int
	Kind  ParamKind
	Key   string
	Type  reflect.Type
}

// Pipe transforms or validates one resolved argument. Returning an error aborts
// parameter resolution.
type Pipe interface {
	Transform(value any, meta ArgumentMetadata) (any, error)
}

// PipeFunc adapts a function to Pipe.
type PipeFunc func(value any, meta ArgumentMetadata) (any, error)

func (f PipeFunc) Transform(value any, meta ArgumentMetadata) (any, error) { return f(value, meta) }

// TrimPipe trims surrounding whitespace from strings.
type TrimPipe struct{}

func (TrimPipe) Transform(v any, _ ArgumentMetadata) (any, error) {
	return mapStrings(v, strings.TrimSpace), nil
}

type UppercasePipe struct{}

func (UppercasePipe) Transform(v any, _ ArgumentMetadata) (any, error) {
	return mapStrings(v, strings.ToUpper), nil
}

type LowercasePipe struct{}

func (LowercasePipe) Transform(v any, _ ArgumentMetadata) (any, error) {
	return mapStrings(v, strings.ToLower), nil
}

func mapStrings(v any, fn func(string) string) any {
	switch s := v.(type) {
	case string:
		return fn(s)
	case []string:
		out := make([]string, len(s))
		for i := range s {
			out[i] = fn(s[i])
		}
		return out
	}
	return v
}

// ParseIntPipe requires a numeric string. Optional lets a missing value through as nil.
type ParseIntPipe struct{ Optional bool }

func (p ParseIntPipe) Transform(v any, _ ArgumentMetadata) (any, error) {
	if v == nil && p.Optional {
		return nil, nil
	}
	switch n := v.(type) {
	case int, int64, int32:
		return n, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err == nil {
			return i, nil
		}
	}
	return nil, BadRequest("Validation failed (numeric string is expected)")
}

type ParseFloatPipe struct{ Optional bool }

func (p ParseFloatPipe) Transform(v any, _ ArgumentMetadata) (any, error) {
	if v == nil && p.Optional {
		return nil, nil
	}
	switch n := v.(type) {
	case float64, float32:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err == nil {
			return f, nil
		}
	}
	return nil, BadRequest("Validation failed (numeric string is expected)")
}

// ParseBoolPipe accepts only "true" and "false".
type ParseBoolPipe struct{ Optional bool }

func (p ParseBoolPipe) Transform(v any, _ ArgumentMetadata) (any, error) {
	if v == nil && p.Optional {
		return nil, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch b {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return nil, BadRequest("Validation failed (boolean string is expected)")
}

// ParseUUIDPipe validates a UUID. Version 0 accepts any version. The result is a
// string when the handler parameter is a string, uuid.UUID otherwise.
type ParseUUIDPipe struct {
	Version  uuid.Version
	Optional bool
}

func (p ParseUUIDPipe) Transform(v any, meta ArgumentMetadata) (any, error) {
	if v == nil && p.Optional {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, BadRequest("Validation failed (uuid is expected)")
	}
	id, err := uuid.Parse(s)
	if err != nil || (p.Version != 0 && id.Version() != p.Version) {
		return nil, BadRequest("Validation failed (uuid is expected)")
	}
	if meta.Type != nil && meta.Type.Kind() == reflect.String {
		return id.String(), nil
	}
	return id, nil
}

// DefaultValuePipe substitutes Value for a missing or empty argument.
type DefaultValuePipe struct{ Value any }

func (p DefaultValuePipe) Transform(v any, _ ArgumentMetadata) (any, error) {
	if v == nil {
		return p.Value, nil
	}
	if s, ok := v.(string); ok && s == "" {
		return p.Value, nil
	}
	return v, nil
}

// ValidationPipe runs struct validation on struct arguments. Failures become a 400
// whose cause is the validator.ValidationErrors.
type ValidationPipe struct {
	validate *validator.Validate
}

func NewValidationPipe() *ValidationPipe {
	return &ValidationPipe{validate: validator.New()}
}

func (p *ValidationPipe) Transform(v any, _ ArgumentMetadata) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return v, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return v, nil
	}
	if err := p.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, &HttpException{
				Status:  http.StatusBadRequest,
				Message: strings.Join(ValidationMessages(verrs), "; "),
				Cause:   verrs,
			}
		}
		return nil, &HttpException{Status: http.StatusBadRequest, Message: err.Error(), Cause: err}
	}
	return v, nil
}

// ValidationMessages renders one message per failed field.
func ValidationMessages(verrs validator.ValidationErrors) []string {
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msg := fmt.Sprintf("%s failed on '%s' validation", e.Field(), e.Tag())
		if e.Param() != "" {
			msg += fmt.Sprintf(" (param=%s)", e.Param())
		}
		msgs = append(msgs, msg)
	}
	return msgs
}
