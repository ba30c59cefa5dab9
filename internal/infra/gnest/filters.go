package gnest

import (
	"errors"
	"fmt"
	"reflect"
)

// ExceptionFilter turns an error into a response. Returning a nil error means the
// filter handled it and its result becomes the response. Returning an error
// rethrows: the returned error replaces the current one and the next filter is tried.
type ExceptionFilter interface {
	Catch(err error, ctx *ExecutionContext) (any, error)
}

// FilterFunc adapts a function to ExceptionFilter.
type FilterFunc func(err error, ctx *ExecutionContext) (any, error)

func (f FilterFunc) Catch(err error, ctx *ExecutionContext) (any, error) { return f(err, ctx) }

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// ErrorType returns the reflect.Type of T for use as a filter claim, mostly for
// interface claims such as ErrorType[StatusCoder]().
func ErrorType[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

type claim struct {
	typ    reflect.Type
	target error
}

func (c claim) matches(err error) bool {
	if c.target != nil {
		return errors.Is(err, c.target)
	}
	return errors.As(err, reflect.New(c.typ).Interface())
}

// FilterEntry is a filter together with the error types it claims.
// An entry without claims is eligible for every error.
type FilterEntry struct {
	Filter ExceptionFilter
	claims []claim
	err    error
}

// Catch declares which errors filter claims. Each claim is one of:
//   - a typed nil pointer, e.g. (*HttpException)(nil), matched with errors.As;
//   - a reflect.Type, e.g. ErrorType[StatusCoder](), matched with errors.As,
//     so interface claims cover every implementation;
//   - a sentinel error value, e.g. gorm.ErrRecordNotFound, matched with errors.Is.
func Catch(filter ExceptionFilter, claims ...any) FilterEntry {
	e := FilterEntry{Filter: filter}
	for _, c := range claims {
		cl, err := newClaim(c)
		if err != nil {
			e.err = err
			return e
		}
		e.claims = append(e.claims, cl)
	}
	return e
}

func newClaim(c any) (claim, error) {
	switch v := c.(type) {
	case reflect.Type:
		return typeClaim(v)
	case error:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
			if rv.IsNil() {
				return typeClaim(rv.Type())
			}
		}
		if !rv.Type().Comparable() {
			return typeClaim(rv.Type())
		}
		return claim{target: v}, nil
	case nil:
		return claim{}, errors.New("gnest: nil filter claim")
	}
	return claim{}, fmt.Errorf("gnest: invalid filter claim %T", c)
}

func typeClaim(t reflect.Type) (claim, error) {
	if t.Kind() != reflect.Interface && !t.Implements(errorType) {
		return claim{}, fmt.Errorf("gnest: filter claim %s does not implement error", t)
	}
	return claim{typ: t}, nil
}

// Claims reports whether the entry is eligible for err.
func (e FilterEntry) Claims(err error) bool {
	if len(e.claims) == 0 {
		return true
	}
	for _, c := range e.claims {
		if c.matches(err) {
			return true
		}
	}
	return false
}

// ResolveFilters walks filters in order. The first eligible filter that returns
// without error produces the response. A filter that returns an error replaces the
// current error and iteration continues. If nothing handles the error, handled is
// false and the final error is returned for the default mapping.
func ResolveFilters(filters []FilterEntry, err error, ctx *ExecutionContext) (res any, handled bool, final error) {
	current := err
	for i, f := range filters {
		if !f.Claims(current) {
			continue
		}
		out, ferr := safeCatch(f.Filter, current, ctx)
		if ferr == nil {
			return out, true, nil
		}
		if !errors.Is(current, ferr) {
			current = &PipelineError{Stage: StageFilter, Index: i, Err: ferr}
		}
	}
	return nil, false, current
}

func safeCatch(f ExceptionFilter, err error, ctx *ExecutionContext) (res any, ferr error) {
	defer func() {
		if r := recover(); r != nil {
			res, ferr = nil, recovered(r)
		}
	}()
	return f.Catch(err, ctx)
}
