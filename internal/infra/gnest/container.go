package gnest

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

type providerDef struct {
	typ  reflect.Type
	ctor reflect.Value // invalid for instance providers
	inst reflect.Value
	// errOut is true when the constructor returns (T, error).
	errOut bool
}

// Container is a singleton-only dependency container. Providers are either
// constructor functions, whose parameters are resolved from the container, or
// ready-made instances. Each type is registered at most once.
type Container struct {
	mu        sync.Mutex
	defs      map[reflect.Type]*providerDef
	order     []reflect.Type
	instances map[reflect.Type]reflect.Value
}

func NewContainer() *Container {
	return &Container{
		defs:      make(map[reflect.Type]*providerDef),
		instances: make(map[reflect.Type]reflect.Value),
	}
}

// Provide registers a constructor func or an instance. Constructors must return
// T or (T, error).
func (c *Container) Provide(p any) error {
	if p == nil {
		return fmt.Errorf("gnest: nil provider")
	}
	v := reflect.ValueOf(p)
	def := &providerDef{}
	if v.Kind() == reflect.Func {
		t := v.Type()
		switch {
		case t.NumOut() == 1 && t.Out(0) != errorType:
		case t.NumOut() == 2 && t.Out(1) == errorType:
			def.errOut = true
		default:
			return fmt.Errorf("gnest: constructor %s must return T or (T, error)", t)
		}
		if t.IsVariadic() {
			return fmt.Errorf("gnest: constructor %s must not be variadic", t)
		}
		def.typ = t.Out(0)
		def.ctor = v
	} else {
		def.typ = v.Type()
		def.inst = v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.defs[def.typ]; ok {
		return fmt.Errorf("gnest: provider %s registered twice", def.typ)
	}
	c.defs[def.typ] = def
	c.order = append(c.order, def.typ)
	return nil
}

// Resolve returns the singleton for t, constructing it and its dependencies on
// first use. An interface type resolves to the single provider implementing it.
func (c *Container) Resolve(t reflect.Type) (reflect.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolve(t, nil)
}

func (c *Container) resolve(t reflect.Type, path []reflect.Type) (reflect.Value, error) {
	if v, ok := c.instances[t]; ok {
		return v, nil
	}
	for _, p := range path {
		if p == t {
			return reflect.Value{}, fmt.Errorf("gnest: circular dependency: %s", formatPath(append(path, t)))
		}
	}
	def, err := c.lookup(t)
	if err != nil {
		if len(path) > 0 {
			return reflect.Value{}, fmt.Errorf("%w (required by %s)", err, path[len(path)-1])
		}
		return reflect.Value{}, err
	}
	if v, ok := c.instances[def.typ]; ok {
		return v, nil
	}
	path = append(path, def.typ)

	var v reflect.Value
	if def.ctor.IsValid() {
		ft := def.ctor.Type()
		args := make([]reflect.Value, ft.NumIn())
		for i := range args {
			if args[i], err = c.resolve(ft.In(i), path); err != nil {
				return reflect.Value{}, err
			}
		}
		out := def.ctor.Call(args)
		if def.errOut && !out[1].IsNil() {
			return reflect.Value{}, fmt.Errorf("gnest: construct %s: %w", def.typ, out[1].Interface().(error))
		}
		v = out[0]
	} else {
		v = def.inst
		if err := c.inject(v, path); err != nil {
			return reflect.Value{}, err
		}
	}

	c.instances[def.typ] = v
	return v, nil
}

func (c *Container) lookup(t reflect.Type) (*providerDef, error) {
	if def, ok := c.defs[t]; ok {
		return def, nil
	}
	if t.Kind() != reflect.Interface {
		return nil, fmt.Errorf("gnest: no provider for %s", t)
	}
	var found *providerDef
	for _, pt := range c.order {
		if !pt.Implements(t) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("gnest: %s is implemented by both %s and %s", t, found.typ, pt)
		}
		found = c.defs[pt]
	}
	if found == nil {
		return nil, fmt.Errorf("gnest: no provider for %s", t)
	}
	return found, nil
}

// inject fills exported, zero-valued fields of an instance provider whose type
// is itself provided.
func (c *Container) inject(v reflect.Value, path []reflect.Type) error {
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil
	}
	el := v.Elem()
	for i := 0; i < el.NumField(); i++ {
		f := el.Field(i)
		if !f.CanSet() || !f.IsZero() {
			continue
		}
		if _, err := c.lookup(f.Type()); err != nil {
			continue
		}
		dep, err := c.resolve(f.Type(), path)
		if err != nil {
			return err
		}
		f.Set(dep)
	}
	return nil
}

// Build constructs every registered provider in declaration order.
func (c *Container) Build() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.order {
		if _, err := c.resolve(t, nil); err != nil {
			return err
		}
	}
	return nil
}

// Invoke calls fn with its parameters resolved from the container and returns
// its first result. A trailing error result is returned as the error.
func (c *Container) Invoke(fn any) (any, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return nil, fmt.Errorf("gnest: Invoke needs a func, got %T", fn)
	}
	t := v.Type()
	args := make([]reflect.Value, t.NumIn())
	c.mu.Lock()
	for i := range args {
		a, err := c.resolve(t.In(i), nil)
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
		args[i] = a
	}
	c.mu.Unlock()

	out := v.Call(args)
	if n := len(out); n > 0 && t.Out(n-1) == errorType {
		if !out[n-1].IsNil() {
			return nil, out[n-1].Interface().(error)
		}
		out = out[:n-1]
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0].Interface(), nil
}

// Instances returns the providers constructed so far, in declaration order.
func (c *Container) Instances() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, 0, len(c.instances))
	for _, t := range c.order {
		if v, ok := c.instances[t]; ok {
			out = append(out, v.Interface())
		}
	}
	return out
}

// Get resolves T from c.
func Get[T any](c *Container) (T, error) {
	var zero T
	v, err := c.Resolve(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return zero, err
	}
	return v.Interface().(T), nil
}

// MustGet is Get for wiring code where a missing provider is a programming error.
func MustGet[T any](c *Container) T {
	v, err := Get[T](c)
	if err != nil {
		panic(err)
	}
	return v
}

func formatPath(path []reflect.Type) string {
	parts := make([]string, len(path))
	for i, t := range path {
		parts[i] = t.String()
	}
	return strings.Join(parts, " -> ")
}
