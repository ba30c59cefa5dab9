// Package gnest compiles guard, pipe, interceptor and exception-filter metadata
// into one specialized gin handler per route, and drives provider lifecycle hooks.
package gnest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"reflect"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type controllerDef struct {
	prefix string
	ctor   any
	opts   []any
}

// App owns the engine, the container and the lifecycle of one application.
type App struct {
	engine          *gin.Engine
	log             *zap.Logger
	dev             bool
	denialStatus    int
	shutdownTimeout time.Duration

	container *Container
	lifecycle *Lifecycle

	mu          sync.Mutex
	errs        []error
	globalOpts  []any
	controllers []controllerDef
	groups      []*RouterGroup
	refs        map[uintptr]any
	refOrder    []any
	routes      []*CompiledRoute
	frozen      bool
	server      *http.Server

	initOnce sync.Once
	initErr  error
}

type Option func(*App)

func WithLogger(log *zap.Logger) Option { return func(a *App) { a.log = log } }

// WithDevMode exposes internal error messages in default error responses.
func WithDevMode(dev bool) Option { return func(a *App) { a.dev = dev } }

// WithDenialStatus sets the status used when a guard returns false. Default 403.
func WithDenialStatus(status int) Option { return func(a *App) { a.denialStatus = status } }

func WithEngine(e *gin.Engine) Option { return func(a *App) { a.engine = e } }

func WithShutdownTimeout(d time.Duration) Option { return func(a *App) { a.shutdownTimeout = d } }

func New(opts ...Option) *App {
	app := &App{
		denialStatus:    http.StatusForbidden,
		shutdownTimeout: 5 * time.Second,
		container:       NewContainer(),
		refs:            make(map[uintptr]any),
	}
	for _, o := range opts {
		o(app)
	}
	if app.log == nil {
		app.log = zap.NewNop()
	}
	if app.engine == nil {
		app.engine = gin.New()
	}
	app.lifecycle = NewLifecycle(app.log)
	app.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			StatusCode: http.StatusNotFound,
			Message:    fmt.Sprintf("Cannot %s %s", c.Request.Method, c.Request.URL.Path),
			Error:      http.StatusText(http.StatusNotFound),
		})
	})
	app.container.Provide(app.log)
	return app
}

func (app *App) mustNotBeFrozen() {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.frozen {
		panic("gnest: application is initialized, registration is closed")
	}
}

func (app *App) addErr(err error) {
	if err == nil {
		return
	}
	app.mu.Lock()
	app.errs = append(app.errs, err)
	app.mu.Unlock()
}

// Provide registers providers in declaration order: constructor funcs or instances.
// Errors surface from Init.
func (app *App) Provide(ps ...any) *App {
	app.mustNotBeFrozen()
	for _, p := range ps {
		app.addErr(app.container.Provide(p))
	}
	return app
}

// Controller registers a controller constructed after every provider. ctor's
// parameters come from the container and its result must implement Controller.
// opts apply to every route of the controller.
func (app *App) Controller(prefix string, ctor any, opts ...any) *App {
	app.mustNotBeFrozen()
	app.mu.Lock()
	app.controllers = append(app.controllers, controllerDef{prefix: prefix, ctor: ctor, opts: opts})
	app.mu.Unlock()
	return app
}

// Group returns a route group without a controller instance.
func (app *App) Group(prefix string, opts ...any) *RouterGroup {
	app.mustNotBeFrozen()
	g := &RouterGroup{app: app, prefix: joinPaths("", prefix), opts: opts}
	app.mu.Lock()
	app.groups = append(app.groups, g)
	app.mu.Unlock()
	return g
}

// UseGlobal adds application-wide options of any kind, including Refs.
func (app *App) UseGlobal(opts ...any) *App {
	app.mustNotBeFrozen()
	app.mu.Lock()
	app.globalOpts = append(app.globalOpts, opts...)
	app.mu.Unlock()
	return app
}

func (app *App) UseGlobalGuards(gs ...Guard) *App {
	for _, g := range gs {
		app.UseGlobal(g)
	}
	return app
}

func (app *App) UseGlobalInterceptors(is ...Interceptor) *App {
	for _, i := range is {
		app.UseGlobal(i)
	}
	return app
}

func (app *App) UseGlobalPipes(ps ...Pipe) *App {
	for _, p := range ps {
		app.UseGlobal(p)
	}
	return app
}

// UseGlobalFilters adds filters consulted after controller and method filters.
func (app *App) UseGlobalFilters(fs ...any) *App {
	return app.UseGlobal(fs...)
}

// Use installs gin middleware that runs before route dispatch.
func (app *App) Use(ms ...gin.HandlerFunc) *App {
	app.mustNotBeFrozen()
	app.engine.Use(ms...)
	return app
}

func (app *App) Engine() *gin.Engine      { return app.engine }
func (app *App) Container() *Container    { return app.container }
func (app *App) Lifecycle() *Lifecycle    { return app.lifecycle }
func (app *App) Handler() http.Handler    { return app.engine }
func (app *App) Logger() *zap.Logger      { return app.log }
func (app *App) State() State             { return app.lifecycle.State() }
func (app *App) Routes() []*CompiledRoute { return append([]*CompiledRoute(nil), app.routes...) }

// Init constructs providers then controllers, compiles every route and runs the
// initialization hooks. It runs once; later calls return the first result.
func (app *App) Init(ctx context.Context) error {
	app.initOnce.Do(func() { app.initErr = app.init(ctx) })
	return app.initErr
}

func (app *App) init(ctx context.Context) error {
	app.mu.Lock()
	errs := app.errs
	app.mu.Unlock()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if err := app.container.Build(); err != nil {
		return err
	}
	controllers, err := app.mountControllers()
	if err != nil {
		return err
	}
	if err := app.compileRoutes(); err != nil {
		return err
	}

	app.mu.Lock()
	app.frozen = true
	app.mu.Unlock()

	instances := app.container.Instances()
	instances = appendUnique(instances, app.refOrder...)
	instances = append(instances, controllers...)
	if err := app.lifecycle.Constructed(instances); err != nil {
		return err
	}
	return app.lifecycle.Init(ctx)
}

func (app *App) mountControllers() ([]any, error) {
	var out []any
	for _, def := range app.controllers {
		inst, err := app.container.Invoke(def.ctor)
		if err != nil {
			return nil, fmt.Errorf("gnest: controller %s: %w", def.prefix, err)
		}
		ctrl, ok := inst.(Controller)
		if !ok {
			return nil, fmt.Errorf("gnest: controller %s: %T does not implement Controller", def.prefix, inst)
		}
		g := app.Group(def.prefix, def.opts...)
		g.controller = inst
		ctrl.Mount(g)
		out = append(out, inst)
	}
	return out, nil
}

func (app *App) compileRoutes() error {
	global := &enhancers{}
	var errs []error
	for _, o := range app.globalOpts {
		if err := global.add(o, app.resolveRef); err != nil {
			errs = append(errs, err)
		}
	}
	if len(global.params) > 0 {
		errs = append(errs, errGroupParams("global"))
	}

	opts := CompileOptions{DenialStatus: app.denialStatus}
	for _, g := range app.groups {
		group := &enhancers{}
		for _, o := range g.opts {
			if err := group.add(o, app.resolveRef); err != nil {
				errs = append(errs, fmt.Errorf("gnest: group %s: %w", g.prefix, err))
			}
		}
		if len(group.params) > 0 {
			errs = append(errs, errGroupParams("group "+g.prefix))
		}
		for _, r := range g.routes {
			route := &enhancers{}
			var rerr error
			for _, o := range r.opts {
				if err := route.add(o, app.resolveRef); err != nil {
					rerr = fmt.Errorf("gnest: %s %s: %w", r.method, r.path, err)
					break
				}
			}
			if rerr != nil {
				errs = append(errs, rerr)
				continue
			}
			d, err := buildDescriptor(r.method, r.path, r.handler, g.controller, global, group, route)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			cr, err := Compile(d, opts)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			app.routes = append(app.routes, cr)
			app.engine.Handle(d.Method, d.Path, app.adapt(cr))
			app.log.Debug("route mapped",
				zap.String("method", d.Method),
				zap.String("path", d.Path),
				zap.String("handler", d.HandlerName),
				zap.Stringer("tier", cr.Tier))
		}
	}
	return errors.Join(errs...)
}

// appendUnique appends the enhancers built through Ref, skipping those that are
// also providers so their hooks run once.
func appendUnique(dst []any, refs ...any) []any {
	seen := make(map[uintptr]bool, len(dst))
	for _, v := range dst {
		if p, ok := pointerOf(v); ok {
			seen[p] = true
		}
	}
	for _, v := range refs {
		if p, ok := pointerOf(v); ok {
			if seen[p] {
				continue
			}
			seen[p] = true
		}
		dst = append(dst, v)
	}
	return dst
}

func pointerOf(v any) (uintptr, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return 0, false
	}
	return rv.Pointer(), true
}

// errGroupParams rejects parameter bindings outside a route: each binding names
// an argument of one handler.
func errGroupParams(scope string) error {
	return fmt.Errorf("gnest: %s: parameter bindings must be attached to a route", scope)
}

// resolveRef returns the single instance for a Ref's constructor, building it
// through the container on first use.
func (app *App) resolveRef(ref EnhancerRef) (any, error) {
	v := reflect.ValueOf(ref.ctor)
	if v.Kind() != reflect.Func {
		return nil, fmt.Errorf("gnest: Ref needs a constructor func, got %T", ref.ctor)
	}
	key := v.Pointer()
	if inst, ok := app.refs[key]; ok {
		return inst, nil
	}
	inst, err := app.container.Invoke(ref.ctor)
	if err != nil {
		return nil, err
	}
	app.refs[key] = inst
	app.refOrder = append(app.refOrder, inst)
	return inst, nil
}

// adapt installs a compiled route into gin. Panics that escape the dispatch
// function and errors no filter claimed go through the default error mapping.
func (app *App) adapt(cr *CompiledRoute) gin.HandlerFunc {
	dispatch := cr.Dispatch
	desc := cr.Descriptor
	tier := cr.Tier
	return func(c *gin.Context) {
		x := acquireContext(c, desc)
		defer releaseContext(x)
		res, err := safeDispatch(dispatch, x)
		if err != nil {
			if tier != TierFull {
				x.res = responseState{}
			}
			app.writeError(x, err)
			return
		}
		writeResult(x, res)
	}
}

func safeDispatch(d DispatchFunc, x *ExecutionContext) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fault(StageHandler, -1, recovered(r))
		}
	}()
	return d(x)
}

func (app *App) writeError(x *ExecutionContext, err error) {
	resp := DefaultErrorMapping(err, app.dev)
	if resp.Status >= http.StatusInternalServerError {
		app.log.Error("unhandled error",
			zap.String("method", x.Method()),
			zap.String("path", x.Path()),
			zap.Stringer("stage", StageOf(err)),
			zap.Error(err))
	}
	if x.Written() {
		return
	}
	flushHeaders(x)
	x.c.AbortWithStatusJSON(resp.Status, resp.Body)
}

// Listen initializes the application, serves on addr and blocks until ctx is
// cancelled, SIGINT or SIGTERM arrives, or the server fails. It then runs the
// shutdown sequence.
func (app *App) Listen(ctx context.Context, addr string) error {
	if err := app.Init(ctx); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Join(err, app.Shutdown(context.Background()))
	}
	return app.Serve(ctx, ln)
}

// Serve is Listen on an existing listener.
func (app *App) Serve(ctx context.Context, ln net.Listener) error {
	if err := app.Init(ctx); err != nil {
		return err
	}
	srv := &http.Server{Handler: app.engine}
	app.mu.Lock()
	app.server = srv
	app.mu.Unlock()
	if err := app.lifecycle.Listening(); err != nil {
		return err
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()
	app.log.Info("server started", zap.String("addr", ln.Addr().String()))

	sigs := app.lifecycle.NotifySignals()
	defer app.lifecycle.StopSignals()

	sig := ""
	select {
	case s := <-sigs:
		sig = signalName(s)
	case <-ctx.Done():
	case err := <-served:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Join(err, app.Shutdown(context.Background()))
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), app.shutdownTimeout)
	defer cancel()
	return app.shutdown(sctx, sig)
}

// Shutdown runs the termination sequence once. Repeated calls do not run any
// hook twice.
func (app *App) Shutdown(ctx context.Context) error {
	return app.shutdown(ctx, "")
}

func (app *App) shutdown(ctx context.Context, sig string) error {
	return app.lifecycle.Shutdown(ctx, sig, func(ctx context.Context) error {
		app.mu.Lock()
		srv := app.server
		app.mu.Unlock()
		if srv == nil {
			return nil
		}
		return srv.Shutdown(ctx)
	})
}

func signalName(s os.Signal) string {
	switch s {
	case os.Interrupt:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return s.String()
}
