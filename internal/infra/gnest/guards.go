package gnest

// Guard decides whether a request may reach its handler. Returning false denies
// the request; returning an error is a guard failure, reported separately.
type Guard interface {
	CanActivate(ctx *ExecutionContext) (bool, error)
}

// GuardFunc adapts a function to Guard.
type GuardFunc func(ctx *ExecutionContext) (bool, error)

func (f GuardFunc) CanActivate(ctx *ExecutionContext) (bool, error) { return f(ctx) }

// EvaluateGuards runs guards in order and stops at the first denial or error.
// index is the position of the guard that stopped evaluation, or -1.
func EvaluateGuards(guards []Guard, ctx *ExecutionContext) (ok bool, index int, err error) {
	for i, g := range guards {
		allowed, err := canActivate(g, ctx)
		if err != nil {
			return false, i, err
		}
		if !allowed {
			return false, i, nil
		}
	}
	return true, -1, nil
}

func canActivate(g Guard, ctx *ExecutionContext) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, recovered(r)
		}
	}()
	return g.CanActivate(ctx)
}
