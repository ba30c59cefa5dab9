package gnest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// responseState holds what the pipeline decided about the response before it is written.
type responseState struct {
	status   int
	header   http.Header
	redirect *RedirectResult
}

// snapshot copies the state so later changes to the header map do not leak back.
func (r responseState) snapshot() responseState {
	r.header = r.header.Clone()
	return r
}

// ExecutionContext is the per-request view handed to guards, pipes, interceptors,
// filters and handlers. It is owned by exactly one in-flight request and must not be
// retained once the handler returns.
//
// ExecutionContext implements context.Context by delegating to the request context,
// so handlers may declare a context.Context parameter instead.
type ExecutionContext struct {
	c         *gin.Context
	route     *RouteDescriptor
	std       context.Context
	principal any

	body     []byte
	bodyRead bool
	bodyErr  error
	bodyMap  map[string]any
	bodyDone bool

	res responseState
}

var ctxPool = sync.Pool{New: func() any { return new(ExecutionContext) }}

func acquireContext(c *gin.Context, route *RouteDescriptor) *ExecutionContext {
	x := ctxPool.Get().(*ExecutionContext)
	x.c = c
	x.route = route
	return x
}

func releaseContext(x *ExecutionContext) {
	*x = ExecutionContext{}
	ctxPool.Put(x)
}

// NewExecutionContext builds a context outside of a compiled route, mainly for tests
// of guards, pipes and interceptors. route may be nil.
func NewExecutionContext(c *gin.Context, route *RouteDescriptor) *ExecutionContext {
	return &ExecutionContext{c: c, route: route}
}

// Context returns the request context, including any deadline installed by an interceptor.
func (x *ExecutionContext) Context() context.Context {
	if x.std != nil {
		return x.std
	}
	if x.c != nil && x.c.Request != nil {
		return x.c.Request.Context()
	}
	return context.Background()
}

// SetContext replaces the request context for the rest of the pipeline.
func (x *ExecutionContext) SetContext(ctx context.Context) {
	x.std = ctx
	if x.c != nil && x.c.Request != nil {
		x.c.Request = x.c.Request.WithContext(ctx)
	}
}

func (x *ExecutionContext) Deadline() (time.Time, bool) { return x.Context().Deadline() }
func (x *ExecutionContext) Done() <-chan struct{}       { return x.Context().Done() }
func (x *ExecutionContext) Err() error                  { return x.Context().Err() }
func (x *ExecutionContext) Value(key any) any           { return x.Context().Value(key) }

// Gin exposes the engine's context for code that needs the raw primitives.
func (x *ExecutionContext) Gin() *gin.Context          { return x.c }
func (x *ExecutionContext) Request() *http.Request     { return x.c.Request }
func (x *ExecutionContext) Writer() gin.ResponseWriter { return x.c.Writer }
func (x *ExecutionContext) Method() string             { return x.c.Request.Method }
func (x *ExecutionContext) Path() string               { return x.c.Request.URL.Path }
func (x *ExecutionContext) Headers() http.Header       { return x.c.Request.Header }
func (x *ExecutionContext) Query() url.Values          { return x.c.Request.URL.Query() }
func (x *ExecutionContext) ClientIP() string           { return x.c.ClientIP() }

// Route returns the matched route pattern, e.g. /users/:id.
func (x *ExecutionContext) Route() string {
	if x.route != nil {
		return x.route.Path
	}
	return x.c.FullPath()
}

// Param returns a path parameter and whether it was present.
func (x *ExecutionContext) Param(name string) (string, bool) {
	return x.c.Params.Get(name)
}

func (x *ExecutionContext) Params() map[string]string {
	out := make(map[string]string, len(x.c.Params))
	for _, p := range x.c.Params {
		out[p.Key] = p.Value
	}
	return out
}

// RawBody reads the request body once and restores it for later readers.
func (x *ExecutionContext) RawBody() ([]byte, error) {
	if x.bodyRead {
		return x.body, x.bodyErr
	}
	x.bodyRead = true
	req := x.c.Request
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	x.body, x.bodyErr = io.ReadAll(req.Body)
	req.Body = io.NopCloser(bytes.NewReader(x.body))
	return x.body, x.bodyErr
}

// Body decodes a JSON body into a generic map. An empty body yields a nil map.
func (x *ExecutionContext) Body() (map[string]any, error) {
	if x.bodyDone {
		return x.bodyMap, nil
	}
	raw, err := x.RawBody()
	if err != nil {
		return nil, err
	}
	x.bodyDone = true
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		x.bodyDone = false
		return nil, BadRequest("malformed JSON body")
	}
	x.bodyMap = m
	return m, nil
}

// Set stores a request-local value, readable through Ctx bindings with a dotted key.
func (x *ExecutionContext) Set(key string, value any) { x.c.Set(key, value) }

func (x *ExecutionContext) Get(key string) (any, bool) { return x.c.Get(key) }

// Lookup descends through request-local values, e.g. "session.user.id".
// It returns nil when any segment is missing.
func (x *ExecutionContext) Lookup(path string) any {
	return lookupPath(map[string]any(x.c.Keys), path)
}

// Principal returns the authenticated principal set by a guard.
func (x *ExecutionContext) Principal() any               { return x.principal }
func (x *ExecutionContext) SetPrincipal(p any)           { x.principal = p }
func (x *ExecutionContext) Descriptor() *RouteDescriptor { return x.route }

// Handler and Controller return the user handler and the owning controller instance.
func (x *ExecutionContext) Handler() any {
	if x.route == nil {
		return nil
	}
	return x.route.Handler
}

func (x *ExecutionContext) Controller() any {
	if x.route == nil {
		return nil
	}
	return x.route.Controller
}

// Metadata returns a value attached with SetMetadata; method level wins over controller level.
func (x *ExecutionContext) Metadata(key string) any {
	if x.route == nil {
		return nil
	}
	return x.route.metadata[key]
}

// Status sets the success status code for the response.
func (x *ExecutionContext) Status(code int) *ExecutionContext {
	x.res.status = code
	return x
}

func (x *ExecutionContext) StatusCode() int { return x.res.status }

func (x *ExecutionContext) SetHeader(name, value string) *ExecutionContext {
	if x.res.header == nil {
		x.res.header = make(http.Header)
	}
	x.res.header.Set(name, value)
	return x
}

func (x *ExecutionContext) ResponseHeader() http.Header { return x.res.header }

// Redirect turns the response into a redirect once the handler completes.
func (x *ExecutionContext) Redirect(location string, code int) *ExecutionContext {
	x.res.redirect = &RedirectResult{Code: code, Location: location}
	return x
}

// Written reports whether the raw response has already been written.
func (x *ExecutionContext) Written() bool {
	return x.c.Writer.Written() || x.c.IsAborted()
}
