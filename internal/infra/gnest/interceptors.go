package gnest

// CallHandler invokes the next stage of the interceptor chain.
type CallHandler func() (any, error)

// Interceptor wraps handler invocation. It may call next zero times to
// short-circuit, transform or replace its result, or recover from its error.
type Interceptor interface {
	Intercept(ctx *ExecutionContext, next CallHandler) (any, error)
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(ctx *ExecutionContext, next CallHandler) (any, error)

func (f InterceptorFunc) Intercept(ctx *ExecutionContext, next CallHandler) (any, error) {
	return f(ctx, next)
}

// WrapInterceptors composes the chain around core. The first interceptor sits
// directly around core and the last one is outermost, so for [A, B, C] the call
// order is C, B, A, core, A, B, C.
func WrapInterceptors(interceptors []Interceptor, ctx *ExecutionContext, core CallHandler) CallHandler {
	next := core
	for _, in := range interceptors {
		next = bindInterceptor(in, ctx, next)
	}
	return next
}

func bindInterceptor(in Interceptor, ctx *ExecutionContext, next CallHandler) CallHandler {
	return func() (any, error) { return in.Intercept(ctx, next) }
}
