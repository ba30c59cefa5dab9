package gnest

import (
	"fmt"
	"net/http"
	"reflect"
)

// Tier is the dispatch shape chosen for a route at registration.
type Tier int

const (
	// TierBare calls the handler directly with the execution context.
	TierBare Tier = iota
	// TierParams resolves parameters and calls the handler. No filters are installed.
	TierParams
	// TierFull runs guards, parameters, interceptors, response modifiers and filters.
	TierFull
)

func (t Tier) String() string {
	switch t {
	case TierBare:
		return "bare"
	case TierParams:
		return "params"
	case TierFull:
		return "full"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// HandlerFunc is the handler shape the bare tier calls without reflection.
type HandlerFunc func(ctx *ExecutionContext) (any, error)

// DispatchFunc is a compiled route. It returns the result to write or an error
// no filter claimed.
type DispatchFunc func(ctx *ExecutionContext) (any, error)

// CompiledRoute pairs a descriptor with its specialized dispatch function.
type CompiledRoute struct {
	Descriptor *RouteDescriptor
	Tier       Tier
	Dispatch   DispatchFunc
}

// CompileOptions tune the full tier.
type CompileOptions struct {
	// DenialStatus is the status of the exception raised when a guard returns false.
	DenialStatus int
}

// Classify picks the tier for d.
func Classify(d *RouteDescriptor) Tier {
	if len(d.Guards) > 0 || len(d.Interceptors) > 0 || len(d.Filters) > 0 || d.HasResponseModifiers() {
		return TierFull
	}
	if len(d.Params) > 0 || len(d.Pipes) > 0 {
		return TierParams
	}
	return TierBare
}

// Compile validates the handler signature and emits the dispatch function for d.
func Compile(d *RouteDescriptor, opts CompileOptions) (*CompiledRoute, error) {
	inv, err := newInvoker(d.Handler)
	if err != nil {
		return nil, fmt.Errorf("gnest: %s %s: %w", d.Method, d.Path, err)
	}
	if opts.DenialStatus == 0 {
		opts.DenialStatus = http.StatusForbidden
	}

	cr := &CompiledRoute{Descriptor: d, Tier: Classify(d)}
	if cr.Tier == TierBare {
		cr.Dispatch = compileBare(d, inv)
		return cr, nil
	}

	bindings := d.Params
	if len(bindings) == 0 && inv.fn.Type().NumIn() == 1 {
		bindings = []ParamBinding{Ctx(0, "")}
	}
	resolvers := compileParams(bindings, inv.fn.Type(), d.Pipes)

	switch cr.Tier {
	case TierParams:
		cr.Dispatch = compileParamsTier(resolvers, inv)
	default:
		cr.Dispatch = compileFull(d, resolvers, inv, opts)
	}
	return cr, nil
}

func compileBare(d *RouteDescriptor, inv *invoker) DispatchFunc {
	switch h := d.Handler.(type) {
	case HandlerFunc:
		return DispatchFunc(h)
	case func(*ExecutionContext) (any, error):
		return h
	}
	if inv.fn.Type().NumIn() == 0 {
		return func(*ExecutionContext) (any, error) { return inv.call(nil) }
	}
	return func(x *ExecutionContext) (any, error) {
		return inv.call([]reflect.Value{reflect.ValueOf(x)})
	}
}

func compileParamsTier(resolvers []paramResolver, inv *invoker) DispatchFunc {
	return func(x *ExecutionContext) (any, error) {
		args, err := resolveParams(resolvers, x)
		if err != nil {
			return nil, err
		}
		res, err := inv.call(args)
		if err != nil {
			return nil, fault(StageHandler, -1, err)
		}
		return res, nil
	}
}

func compileFull(d *RouteDescriptor, resolvers []paramResolver, inv *invoker, opts CompileOptions) DispatchFunc {
	guards := d.Guards
	interceptors := d.Interceptors
	filters := d.Filters
	status := d.Status
	headers := d.Headers
	var redirect *RedirectResult
	if d.Redirect != nil {
		redirect = &RedirectResult{Code: d.Redirect.Status, Location: d.Redirect.URL}
	}
	denialStatus := opts.DenialStatus

	run := func(x *ExecutionContext) (res any, err error) {
		// what the guards decided survives a failure; anything set after them is
		// dropped so filters start from a clean response
		var guarded responseState
		passed := false
		defer func() {
			if r := recover(); r != nil {
				res, err = nil, fault(StageHandler, -1, recovered(r))
			}
			if err != nil && passed {
				x.res = guarded
			}
		}()

		if ok, i, gerr := EvaluateGuards(guards, x); gerr != nil {
			return nil, &PipelineError{Stage: StageGuard, Index: i, Err: gerr}
		} else if !ok {
			return nil, denial(denialStatus, i)
		}
		guarded, passed = x.res.snapshot(), true

		args, err := resolveParams(resolvers, x)
		if err != nil {
			return nil, err
		}

		// the declared status is visible to interceptors
		if status != 0 && x.res.status == 0 {
			x.res.status = status
		}
		core := func() (any, error) { return inv.call(args) }
		res, err = WrapInterceptors(interceptors, x, core)()
		if err != nil {
			return nil, fault(StageHandler, -1, err)
		}

		for _, h := range headers {
			x.SetHeader(h.Name, h.Value)
		}
		if redirect != nil && x.res.redirect == nil {
			r := *redirect
			x.res.redirect = &r
		}
		return res, nil
	}

	if len(filters) == 0 {
		return run
	}
	return func(x *ExecutionContext) (any, error) {
		res, err := run(x)
		if err == nil {
			return res, nil
		}
		out, handled, final := ResolveFilters(filters, err, x)
		if handled {
			return out, nil
		}
		return nil, final
	}
}

// invoker calls a handler through reflection and normalizes its results.
type invoker struct {
	fn     reflect.Value
	errIdx int
	valIdx int
}

func newInvoker(handler any) (*invoker, error) {
	fn := reflect.ValueOf(handler)
	if fn.Kind() != reflect.Func || fn.IsNil() {
		return nil, fmt.Errorf("handler must be a func, got %T", handler)
	}
	t := fn.Type()
	inv := &invoker{fn: fn, errIdx: -1, valIdx: -1}
	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			inv.errIdx = 0
		} else {
			inv.valIdx = 0
		}
	case 2:
		if t.Out(1) != errorType {
			return nil, fmt.Errorf("second result of %s must be error", t)
		}
		inv.valIdx, inv.errIdx = 0, 1
	default:
		return nil, fmt.Errorf("handler %s returns too many values", t)
	}
	return inv, nil
}

func (inv *invoker) call(args []reflect.Value) (any, error) {
	out := inv.fn.Call(args)
	var res any
	var err error
	if inv.errIdx >= 0 {
		if e := out[inv.errIdx]; !e.IsNil() {
			err = e.Interface().(error)
		}
	}
	if inv.valIdx >= 0 {
		v := out[inv.valIdx]
		switch v.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
			if !v.IsNil() {
				res = v.Interface()
			}
		default:
			res = v.Interface()
		}
	}
	return res, err
}
