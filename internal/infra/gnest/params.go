package gnest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// extractor reads the raw value of one binding from the request.
type extractor func(x *ExecutionContext) (any, error)

// paramResolver is the precompiled form of one ParamBinding.
type paramResolver struct {
	meta    ArgumentMetadata
	extract extractor
	pipes   []Pipe
}

var (
	stringType    = reflect.TypeOf("")
	bytesType     = reflect.TypeOf([]byte(nil))
	requestType   = reflect.TypeOf((*http.Request)(nil))
	ginCtxType    = reflect.TypeOf((*gin.Context)(nil))
	headerMapType = reflect.TypeOf(http.Header(nil))
)

// compileParams builds one resolver per binding. Route pipes run before the
// binding's own pipes. Raw request, response and context bindings are never piped.
func compileParams(bindings []ParamBinding, fnType reflect.Type, routePipes []Pipe) []paramResolver {
	out := make([]paramResolver, len(bindings))
	for i, b := range bindings {
		t := fnType.In(b.Index)
		pipes := b.Pipes
		if pipeable(b) {
			pipes = merge(routePipes, b.Pipes)
		}
		out[i] = paramResolver{
			meta:    ArgumentMetadata{Index: b.Index, Kind: b.Kind, Key: b.Key, Type: t},
			extract: makeExtractor(b, t),
			pipes:   pipes,
		}
	}
	return out
}

func pipeable(b ParamBinding) bool {
	switch b.Kind {
	case KindRequest, KindResponse:
		return false
	case KindContext:
		return b.Key != ""
	}
	return true
}

// resolveParams extracts, transforms and coerces every argument in index order.
func resolveParams(resolvers []paramResolver, x *ExecutionContext) ([]reflect.Value, error) {
	args := make([]reflect.Value, len(resolvers))
	for i := range resolvers {
		r := &resolvers[i]
		v, err := r.resolve(x)
		if err != nil {
			return nil, &PipelineError{Stage: StageResolve, Index: r.meta.Index, Err: err}
		}
		args[i] = v
	}
	return args, nil
}

func (r *paramResolver) resolve(x *ExecutionContext) (_ reflect.Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = recovered(p)
		}
	}()
	v, err := r.extract(x)
	if err != nil {
		return reflect.Value{}, err
	}
	for _, p := range r.pipes {
		if v, err = p.Transform(v, r.meta); err != nil {
			return reflect.Value{}, err
		}
	}
	return coerce(v, r.meta.Type)
}

func makeExtractor(b ParamBinding, t reflect.Type) extractor {
	switch b.Kind {
	case KindBody:
		return bodyExtractor(b.Key, t)
	case KindParam:
		return paramExtractor(b.Key, t)
	case KindQuery:
		return queryExtractor(b.Key, t)
	case KindHeader:
		return headerExtractor(b.Key, t)
	case KindRequest:
		if t == ginCtxType {
			return func(x *ExecutionContext) (any, error) { return x.c, nil }
		}
		return func(x *ExecutionContext) (any, error) { return x.c.Request, nil }
	case KindResponse:
		return func(x *ExecutionContext) (any, error) { return x.c.Writer, nil }
	case KindContext:
		return contextExtractor(b.Key, t)
	case KindPrincipal:
		key := b.Key
		return func(x *ExecutionContext) (any, error) {
			if key == "" {
				return x.principal, nil
			}
			return lookupPath(x.principal, key), nil
		}
	case KindFile:
		return fileExtractor(b.Key)
	case KindFiles:
		return filesExtractor(b.Key)
	}
	return func(*ExecutionContext) (any, error) {
		return nil, fmt.Errorf("gnest: unknown parameter kind %s", b.Kind)
	}
}

func isStructTarget(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

// newTarget allocates a value for binders; it always returns a pointer.
func newTarget(t reflect.Type) any {
	if t.Kind() == reflect.Pointer {
		return reflect.New(t.Elem()).Interface()
	}
	return reflect.New(t).Interface()
}

func bindError(err error) error {
	return &HttpException{Status: http.StatusBadRequest, Message: err.Error(), Cause: err}
}

func bodyExtractor(key string, t reflect.Type) extractor {
	switch {
	case key == "" && (t == stringType || t == bytesType):
		return func(x *ExecutionContext) (any, error) {
			raw, err := x.RawBody()
			if err != nil {
				return nil, err
			}
			if t == stringType {
				return string(raw), nil
			}
			return raw, nil
		}
	case key == "" && isStructTarget(t):
		return func(x *ExecutionContext) (any, error) {
			obj := newTarget(t)
			raw, err := x.RawBody()
			if err != nil {
				return nil, err
			}
			b := binding.Default(x.c.Request.Method, x.c.ContentType())
			if bb, ok := b.(binding.BindingBody); ok {
				if len(bytes.TrimSpace(raw)) == 0 {
					return obj, nil
				}
				if err := bb.BindBody(raw, obj); err != nil {
					return nil, bindError(err)
				}
				return obj, nil
			}
			if err := b.Bind(x.c.Request, obj); err != nil {
				return nil, bindError(err)
			}
			return obj, nil
		}
	case key == "":
		return func(x *ExecutionContext) (any, error) {
			m, err := x.Body()
			if err != nil || m == nil {
				return nil, err
			}
			return m, nil
		}
	}
	return func(x *ExecutionContext) (any, error) {
		m, err := x.Body()
		if err != nil {
			return nil, err
		}
		return lookupPath(m, key), nil
	}
}

func paramExtractor(key string, t reflect.Type) extractor {
	switch {
	case key == "" && isStructTarget(t):
		return func(x *ExecutionContext) (any, error) {
			obj := newTarget(t)
			if err := x.c.ShouldBindUri(obj); err != nil {
				return nil, bindError(err)
			}
			return obj, nil
		}
	case key == "":
		return func(x *ExecutionContext) (any, error) { return x.Params(), nil }
	}
	return func(x *ExecutionContext) (any, error) {
		if v, ok := x.c.Params.Get(key); ok {
			return v, nil
		}
		return nil, nil
	}
}

func queryExtractor(key string, t reflect.Type) extractor {
	switch {
	case key == "" && isStructTarget(t):
		return func(x *ExecutionContext) (any, error) {
			obj := newTarget(t)
			if err := x.c.ShouldBindQuery(obj); err != nil {
				return nil, bindError(err)
			}
			return obj, nil
		}
	case key == "":
		return func(x *ExecutionContext) (any, error) { return x.Query(), nil }
	case t.Kind() == reflect.Slice && t != bytesType:
		return func(x *ExecutionContext) (any, error) {
			if vs, ok := x.c.GetQueryArray(key); ok {
				return vs, nil
			}
			return nil, nil
		}
	}
	return func(x *ExecutionContext) (any, error) {
		if v, ok := x.c.GetQuery(key); ok {
			return v, nil
		}
		return nil, nil
	}
}

func headerExtractor(key string, t reflect.Type) extractor {
	switch {
	case key == "" && t != headerMapType && isStructTarget(t):
		return func(x *ExecutionContext) (any, error) {
			obj := newTarget(t)
			if err := x.c.ShouldBindHeader(obj); err != nil {
				return nil, bindError(err)
			}
			return obj, nil
		}
	case key == "":
		return func(x *ExecutionContext) (any, error) { return x.Headers(), nil }
	}
	return func(x *ExecutionContext) (any, error) {
		if vs := x.c.Request.Header.Values(key); len(vs) > 0 {
			return vs[0], nil
		}
		return lookupPath(x.c.Request.Header, key), nil
	}
}

func contextExtractor(key string, t reflect.Type) extractor {
	if key != "" {
		return func(x *ExecutionContext) (any, error) { return x.Lookup(key), nil }
	}
	switch {
	case t == ginCtxType:
		return func(x *ExecutionContext) (any, error) { return x.c, nil }
	case t == requestType:
		return func(x *ExecutionContext) (any, error) { return x.c.Request, nil }
	}
	return func(x *ExecutionContext) (any, error) { return x, nil }
}

func fileExtractor(field string) extractor {
	if field == "" {
		field = "file"
	}
	return func(x *ExecutionContext) (any, error) {
		fh, err := x.c.FormFile(field)
		if err != nil {
			if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
				return nil, nil
			}
			return nil, bindError(err)
		}
		return fh, nil
	}
}

func filesExtractor(field string) extractor {
	if field == "" {
		field = "files"
	}
	return func(x *ExecutionContext) (any, error) {
		form, err := x.c.MultipartForm()
		if err != nil {
			if errors.Is(err, http.ErrNotMultipart) {
				return nil, nil
			}
			return nil, bindError(err)
		}
		if fs := form.File[field]; len(fs) > 0 {
			return fs, nil
		}
		return nil, nil
	}
}

// coerce converts the piped value into the handler's argument type. Missing
// values become the zero value.
func coerce(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Zero(t), nil
		}
		if rv.Elem().Type().AssignableTo(t) {
			return rv.Elem(), nil
		}
	}
	if t.Kind() == reflect.Pointer && rv.Type().AssignableTo(t.Elem()) {
		p := reflect.New(t.Elem())
		p.Elem().Set(rv)
		return p, nil
	}

	switch s := v.(type) {
	case string:
		if out, ok, err := parseScalar(s, t); ok || err != nil {
			return out, err
		}
		if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.String {
			out := reflect.MakeSlice(t, 1, 1)
			out.Index(0).SetString(s)
			return out, nil
		}
	case []string:
		if t.Kind() != reflect.Slice {
			if len(s) == 0 {
				return reflect.Zero(t), nil
			}
			return coerce(s[0], t)
		}
	case map[string]any, []any:
		return remarshal(v, t)
	}

	if isNumber(rv.Kind()) && isNumber(t.Kind()) {
		return rv.Convert(t), nil
	}
	if rv.Kind() == reflect.String && t.Kind() == reflect.String {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, BadRequest(fmt.Sprintf("cannot use %T as %s", v, t))
}

func parseScalar(s string, t reflect.Type) (reflect.Value, bool, error) {
	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.String:
		out.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, true, BadRequest(fmt.Sprintf("Validation failed (%q is not an integer)", s))
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, true, BadRequest(fmt.Sprintf("Validation failed (%q is not an unsigned integer)", s))
		}
		out.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, t.Bits())
		if err != nil {
			return reflect.Value{}, true, BadRequest(fmt.Sprintf("Validation failed (%q is not a number)", s))
		}
		out.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return reflect.Value{}, true, BadRequest(fmt.Sprintf("Validation failed (%q is not a boolean)", s))
		}
		out.SetBool(b)
	default:
		return reflect.Value{}, false, nil
	}
	return out, true, nil
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// remarshal maps a decoded JSON fragment onto a typed target.
func remarshal(v any, t reflect.Type) (reflect.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return reflect.Value{}, bindError(err)
	}
	p := reflect.New(t)
	if err := json.Unmarshal(raw, p.Interface()); err != nil {
		return reflect.Value{}, bindError(err)
	}
	return p.Elem(), nil
}
