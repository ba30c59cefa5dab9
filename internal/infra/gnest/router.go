package gnest

import (
	"fmt"
	"net/http"
	"path"
	"strings"
)

// Controller mounts its routes on the group created for it.
type Controller interface {
	Mount(r *RouterGroup)
}

type routeDef struct {
	method  string
	path    string
	handler any
	opts    []any
}

// RouterGroup collects routes sharing a prefix and controller-level options.
// Options are guards, interceptors, pipes, filters, response modifiers, metadata
// or Refs; they are resolved and merged when the application initializes.
type RouterGroup struct {
	app        *App
	prefix     string
	controller any
	opts       []any
	routes     []routeDef
}

// Use appends controller-level options of any kind.
func (g *RouterGroup) Use(opts ...any) *RouterGroup {
	g.app.mustNotBeFrozen()
	g.opts = append(g.opts, opts...)
	return g
}

func (g *RouterGroup) UseGuards(gs ...Guard) *RouterGroup {
	for _, x := range gs {
		g.Use(x)
	}
	return g
}

func (g *RouterGroup) UseInterceptors(is ...Interceptor) *RouterGroup {
	for _, x := range is {
		g.Use(x)
	}
	return g
}

func (g *RouterGroup) UsePipes(ps ...Pipe) *RouterGroup {
	for _, x := range ps {
		g.Use(x)
	}
	return g
}

// UseFilters accepts ExceptionFilter values, FilterEntry values from Catch, or Refs.
func (g *RouterGroup) UseFilters(fs ...any) *RouterGroup {
	return g.Use(fs...)
}

// Group creates a nested group that inherits this group's options and controller.
func (g *RouterGroup) Group(relative string, opts ...any) *RouterGroup {
	g.app.mustNotBeFrozen()
	child := &RouterGroup{
		app:        g.app,
		prefix:     joinPaths(g.prefix, relative),
		controller: g.controller,
		opts:       merge(g.opts, opts),
	}
	g.app.mu.Lock()
	g.app.groups = append(g.app.groups, child)
	g.app.mu.Unlock()
	return child
}

// Handle registers handler for method and relative path. Handlers are funcs whose
// arguments are described by ParamBinding options, or the bare
// func(*ExecutionContext) (any, error) shape.
func (g *RouterGroup) Handle(method, relative string, handler any, opts ...any) {
	g.app.mustNotBeFrozen()
	if !validMethod(method) {
		panic(fmt.Sprintf("gnest: invalid HTTP method %q", method))
	}
	g.routes = append(g.routes, routeDef{
		method:  strings.ToUpper(method),
		path:    joinPaths(g.prefix, relative),
		handler: handler,
		opts:    opts,
	})
}

func (g *RouterGroup) GET(p string, h any, opts ...any) {
	g.Handle(http.MethodGet, p, h, opts...)
}

func (g *RouterGroup) POST(p string, h any, opts ...any) {
	g.Handle(http.MethodPost, p, h, opts...)
}

func (g *RouterGroup) PUT(p string, h any, opts ...any) {
	g.Handle(http.MethodPut, p, h, opts...)
}

func (g *RouterGroup) PATCH(p string, h any, opts ...any) {
	g.Handle(http.MethodPatch, p, h, opts...)
}

func (g *RouterGroup) DELETE(p string, h any, opts ...any) {
	g.Handle(http.MethodDelete, p, h, opts...)
}

func (g *RouterGroup) HEAD(p string, h any, opts ...any) {
	g.Handle(http.MethodHead, p, h, opts...)
}

func (g *RouterGroup) OPTIONS(p string, h any, opts ...any) {
	g.Handle(http.MethodOptions, p, h, opts...)
}

func joinPaths(base, relative string) string {
	if relative == "" {
		if base == "" {
			return "/"
		}
		return base
	}
	joined := path.Join("/", base, relative)
	if strings.HasSuffix(relative, "/") && !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	return joined
}
