package gnest

import (
	"fmt"
	"net/http"
	"reflect"
	"runtime"
	"sort"
	"strings"
)

// ParamKind selects the part of the request a parameter binding reads.
type ParamKind int

const (
	KindBody ParamKind = iota + 1
	KindParam
	KindQuery
	KindHeader
	KindRequest
	KindResponse
	KindContext
	KindPrincipal
	KindFile
	KindFiles
)

func (k ParamKind) String() string {
	switch k {
	case KindBody:
		return "body"
	case KindParam:
		return "param"
	case KindQuery:
		return "query"
	case KindHeader:
		return "header"
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindContext:
		return "context"
	case KindPrincipal:
		return "principal"
	case KindFile:
		return "file"
	case KindFiles:
		return "files"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParamBinding maps handler argument Index to a request value. Key narrows the
// value; for body, header, context and principal bindings it may be a dotted path.
type ParamBinding struct {
	Index int
	Kind  ParamKind
	Key   string
	Pipes []Pipe
}

func Body(index int, key string, pipes ...Pipe) ParamBinding {
	return ParamBinding{Index: index, Kind: KindBody, Key: key, Pipes: pipes}
}

func Param(index int, key string, pipes ...Pipe) ParamBinding {
	return ParamBinding{Index: index, Kind: KindParam, Key: key, Pipes: pipes}
}

func Query(index int, key string, pipes ...Pipe) ParamBinding {
	return ParamBinding{Index: index, Kind: KindQuery, Key: key, Pipes: pipes}
}

func Headers(index int, key string, pipes ...Pipe) ParamBinding {
	return ParamBinding{Index: index, Kind: KindHeader, Key: key, Pipes: pipes}
}

func Req(index int) ParamBinding { return ParamBinding{Index: index, Kind: KindRequest} }
func Res(index int) ParamBinding { return ParamBinding{Index: index, Kind: KindResponse} }

// Ctx binds the execution context itself, or a request-local value when key is set.
func Ctx(index int, key string, pipes ...Pipe) ParamBinding {
	return ParamBinding{Index: index, Kind: KindContext, Key: key, Pipes: pipes}
}

// User binds the authenticated principal, or one of its fields when key is set.
func User(index int, key string, pipes ...Pipe) ParamBinding {
	return ParamBinding{Index: index, Kind: KindPrincipal, Key: key, Pipes: pipes}
}

func UploadedFile(index int, field string, pipes ...Pipe) ParamBinding {
	return ParamBinding{Index: index, Kind: KindFile, Key: field, Pipes: pipes}
}

func UploadedFiles(index int, field string, pipes ...Pipe) ParamBinding {
	return ParamBinding{Index: index, Kind: KindFiles, Key: field, Pipes: pipes}
}

// Response modifiers. They are applied after the handler completes successfully.
type (
	// HttpCode overrides the success status code.
	HttpCode int
	// Header adds a response header.
	Header struct{ Name, Value string }
	// Redirect answers with a redirect. A RedirectResult returned by the handler wins.
	Redirect struct {
		URL    string
		Status int
	}
)

// Metadata is an arbitrary key/value attached to a controller or route.
type Metadata struct {
	Key   string
	Value any
}

func SetMetadata(key string, value any) Metadata { return Metadata{Key: key, Value: value} }

// EnhancerRef defers construction of a guard, interceptor, pipe or filter to the
// application, which builds it once per constructor through the container.
type EnhancerRef struct {
	ctor   any
	claims []any
}

// Ref refers to an enhancer by its constructor. The constructor's parameters are
// resolved from the container; the instance is shared by every route using it.
func Ref(ctor any, claims ...any) EnhancerRef { return EnhancerRef{ctor: ctor, claims: claims} }

// enhancers is one level of attached metadata: global, controller or method.
type enhancers struct {
	guards       []Guard
	interceptors []Interceptor
	pipes        []Pipe
	filters      []FilterEntry
	params       []ParamBinding
	status       int
	headers      []Header
	redirect     *Redirect
	metadata     map[string]any
}

// add classifies one option. resolve turns an EnhancerRef into an instance.
func (e *enhancers) add(opt any, resolve func(EnhancerRef) (any, error)) error {
	if ref, ok := opt.(EnhancerRef); ok {
		inst, err := resolve(ref)
		if err != nil {
			return err
		}
		if len(ref.claims) > 0 {
			f, ok := inst.(ExceptionFilter)
			if !ok {
				return fmt.Errorf("gnest: %T has claims but is not an ExceptionFilter", inst)
			}
			opt = Catch(f, ref.claims...)
		} else {
			opt = inst
		}
	}

	switch v := opt.(type) {
	case ParamBinding:
		e.params = append(e.params, v)
	case []ParamBinding:
		e.params = append(e.params, v...)
	case FilterEntry:
		if v.err != nil {
			return v.err
		}
		e.filters = append(e.filters, v)
	case HttpCode:
		e.status = int(v)
	case Header:
		e.headers = append(e.headers, v)
	case Redirect:
		r := v
		e.redirect = &r
	case Metadata:
		if e.metadata == nil {
			e.metadata = make(map[string]any)
		}
		e.metadata[v.Key] = v.Value
	case Guard:
		e.guards = append(e.guards, v)
	case Interceptor:
		e.interceptors = append(e.interceptors, v)
	case Pipe:
		e.pipes = append(e.pipes, v)
	case ExceptionFilter:
		e.filters = append(e.filters, FilterEntry{Filter: v})
	case nil:
		return fmt.Errorf("gnest: nil route option")
	default:
		return fmt.Errorf("gnest: unsupported route option %T", opt)
	}
	return nil
}

// merge concatenates lists level by level, outermost level first. It never
// aliases its inputs.
func merge[T any](levels ...[]T) []T {
	n := 0
	for _, l := range levels {
		n += len(l)
	}
	if n == 0 {
		return nil
	}
	out := make([]T, 0, n)
	for _, l := range levels {
		out = append(out, l...)
	}
	return out
}

// RouteDescriptor is the immutable record of everything attached to one route.
type RouteDescriptor struct {
	Method       string
	Path         string
	Handler      any
	HandlerName  string
	Controller   any
	Guards       []Guard
	Interceptors []Interceptor
	Pipes        []Pipe
	Filters      []FilterEntry
	Params       []ParamBinding
	Status       int
	Headers      []Header
	Redirect     *Redirect

	metadata map[string]any
}

// HasResponseModifiers reports whether status, headers or a redirect were declared.
func (d *RouteDescriptor) HasResponseModifiers() bool {
	return d.Status != 0 || len(d.Headers) > 0 || d.Redirect != nil
}

// buildDescriptor merges the global, controller and method levels into a
// descriptor. Guards, interceptors and pipes run global, controller, method.
// Filters are consulted controller, method, then global.
func buildDescriptor(method, path string, handler, controller any, global, group, route *enhancers) (*RouteDescriptor, error) {
	hv := reflect.ValueOf(handler)
	if hv.Kind() != reflect.Func || hv.IsNil() {
		return nil, fmt.Errorf("gnest: %s %s: handler must be a func, got %T", method, path, handler)
	}

	d := &RouteDescriptor{
		Method:       strings.ToUpper(method),
		Path:         path,
		Handler:      handler,
		HandlerName:  funcName(hv),
		Controller:   controller,
		Guards:       merge(global.guards, group.guards, route.guards),
		Interceptors: merge(global.interceptors, group.interceptors, route.interceptors),
		Pipes:        merge(global.pipes, group.pipes, route.pipes),
		Filters:      merge(group.filters, route.filters, global.filters),
		Headers:      merge(group.headers, route.headers),
		Status:       route.status,
		Redirect:     route.redirect,
	}
	if d.Status == 0 {
		d.Status = group.status
	}
	if d.Redirect == nil {
		d.Redirect = group.redirect
	}
	if len(group.metadata)+len(route.metadata) > 0 {
		d.metadata = make(map[string]any, len(group.metadata)+len(route.metadata))
		for k, v := range group.metadata {
			d.metadata[k] = v
		}
		for k, v := range route.metadata {
			d.metadata[k] = v
		}
	}
	if d.Status != 0 && (d.Status < 100 || d.Status > 599) {
		return nil, fmt.Errorf("gnest: %s %s: invalid status %d", method, path, d.Status)
	}

	params, err := bindParams(route.params, hv.Type())
	if err != nil {
		return nil, fmt.Errorf("gnest: %s %s: %w", method, path, err)
	}
	d.Params = params
	return d, nil
}

var execContextType = reflect.TypeOf((*ExecutionContext)(nil))

// bindParams sorts bindings by index, once, and checks them against the handler.
// Unbound *ExecutionContext and context.Context arguments are bound implicitly.
func bindParams(declared []ParamBinding, fnType reflect.Type) ([]ParamBinding, error) {
	if fnType.IsVariadic() {
		return nil, fmt.Errorf("variadic handlers are not supported")
	}
	n := fnType.NumIn()
	if len(declared) == 0 && (n == 0 || (n == 1 && fnType.In(0) == execContextType)) {
		return nil, nil
	}

	seen := make(map[int]bool, n)
	params := make([]ParamBinding, 0, n)
	for _, p := range declared {
		if p.Index < 0 || p.Index >= n {
			return nil, fmt.Errorf("binding index %d out of range for handler with %d arguments", p.Index, n)
		}
		if seen[p.Index] {
			return nil, fmt.Errorf("duplicate binding for argument %d", p.Index)
		}
		seen[p.Index] = true
		params = append(params, p)
	}
	for i := 0; i < n; i++ {
		if seen[i] {
			continue
		}
		t := fnType.In(i)
		if t == execContextType || isStdContext(t) {
			params = append(params, Ctx(i, ""))
			continue
		}
		return nil, fmt.Errorf("argument %d (%s) has no binding", i, t)
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Index < params[j].Index })
	return params, nil
}

func isStdContext(t reflect.Type) bool {
	return t.Kind() == reflect.Interface && t.PkgPath() == "context" && t.Name() == "Context"
}

func funcName(v reflect.Value) string {
	fn := runtime.FuncForPC(v.Pointer())
	if fn == nil {
		return ""
	}
	name := fn.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}

func validMethod(m string) bool {
	switch strings.ToUpper(m) {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodConnect, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
