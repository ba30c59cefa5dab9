package gnest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// Initialization hooks, run in provider declaration order.
type (
	// OnModuleInit runs once every provider is constructed. A failure aborts startup.
	OnModuleInit interface {
		OnModuleInit(ctx context.Context) error
	}
	// OnApplicationBootstrap runs after every OnModuleInit, before the server accepts connections.
	OnApplicationBootstrap interface {
		OnApplicationBootstrap(ctx context.Context) error
	}
)

// Termination hooks, run in provider declaration order. Failures are logged and skipped.
type (
	OnModuleDestroy interface {
		OnModuleDestroy(ctx context.Context) error
	}
	// BeforeApplicationShutdown runs before the server stops accepting connections.
	BeforeApplicationShutdown interface {
		BeforeApplicationShutdown(ctx context.Context, signal string) error
	}
	// OnApplicationShutdown runs after the server has drained.
	OnApplicationShutdown interface {
		OnApplicationShutdown(ctx context.Context, signal string) error
	}
)

// State is a lifecycle phase. Transitions only move forward.
type State int32

const (
	StateUninitialized State = iota
	StateConstructed
	StateInitialized
	StateListening
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConstructed:
		return "constructed"
	case StateInitialized:
		return "initialized"
	case StateListening:
		return "listening"
	case StateDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// ErrInvalidState is returned when a transition is requested out of order.
var ErrInvalidState = errors.New("gnest: invalid lifecycle state")

// Lifecycle drives provider hooks for one application instance.
type Lifecycle struct {
	log *zap.Logger

	mu          sync.Mutex
	state       State
	providers   []any
	initialized []any

	shutdownOnce sync.Once
	shutdownErr  error
	signalOnce   sync.Once
	signals      chan os.Signal
}

func NewLifecycle(log *zap.Logger) *Lifecycle {
	if log == nil {
		log = zap.NewNop()
	}
	return &Lifecycle{log: log}
}

func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Lifecycle) advance(from, to State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != from {
		return fmt.Errorf("%w: %s -> %s from %s", ErrInvalidState, from, to, l.state)
	}
	l.state = to
	l.log.Info("lifecycle", zap.Stringer("state", to))
	return nil
}

// Constructed records the providers, in declaration order, once all of them exist.
func (l *Lifecycle) Constructed(providers []any) error {
	if err := l.advance(StateUninitialized, StateConstructed); err != nil {
		return err
	}
	l.mu.Lock()
	l.providers = providers
	l.mu.Unlock()
	return nil
}

// Init runs OnModuleInit then OnApplicationBootstrap on every provider, one at a
// time. The first failure stops startup: providers that already initialized are
// destroyed and the error is returned.
func (l *Lifecycle) Init(ctx context.Context) error {
	l.mu.Lock()
	providers := l.providers
	l.mu.Unlock()

	for _, p := range providers {
		if h, ok := p.(OnModuleInit); ok {
			if err := safeHook(func() error { return h.OnModuleInit(ctx) }); err != nil {
				l.log.Error("OnModuleInit failed", zap.String("provider", typeName(p)), zap.Error(err))
				l.destroyInitialized(ctx)
				return fmt.Errorf("gnest: init %s: %w", typeName(p), err)
			}
		}
		l.mu.Lock()
		l.initialized = append(l.initialized, p)
		l.mu.Unlock()
	}
	for _, p := range providers {
		if h, ok := p.(OnApplicationBootstrap); ok {
			if err := safeHook(func() error { return h.OnApplicationBootstrap(ctx) }); err != nil {
				l.log.Error("OnApplicationBootstrap failed", zap.String("provider", typeName(p)), zap.Error(err))
				l.destroyInitialized(ctx)
				return fmt.Errorf("gnest: bootstrap %s: %w", typeName(p), err)
			}
		}
	}
	return l.advance(StateConstructed, StateInitialized)
}

// destroyInitialized runs every termination hook of the providers that did
// initialize, so their connections are released when startup fails.
func (l *Lifecycle) destroyInitialized(ctx context.Context) {
	_ = l.Shutdown(ctx, "", nil)
}

// Listening marks the server as accepting connections.
func (l *Lifecycle) Listening() error {
	return l.advance(StateInitialized, StateListening)
}

// Shutdown runs the termination sequence at most once. stop, when non-nil, stops
// the server between BeforeApplicationShutdown and OnApplicationShutdown. Later
// calls return the first call's result.
func (l *Lifecycle) Shutdown(ctx context.Context, sig string, stop func(context.Context) error) error {
	l.shutdownOnce.Do(func() {
		errs := []error{l.runDestroy(ctx)}
		targets := l.initializedSnapshot()
		for _, p := range targets {
			if h, ok := p.(BeforeApplicationShutdown); ok {
				errs = append(errs, l.hook(p, "BeforeApplicationShutdown", func() error {
					return h.BeforeApplicationShutdown(ctx, sig)
				}))
			}
		}
		if stop != nil {
			if err := stop(ctx); err != nil {
				l.log.Error("server shutdown", zap.Error(err))
				errs = append(errs, err)
			}
		}
		for _, p := range targets {
			if h, ok := p.(OnApplicationShutdown); ok {
				errs = append(errs, l.hook(p, "OnApplicationShutdown", func() error {
					return h.OnApplicationShutdown(ctx, sig)
				}))
			}
		}
		l.shutdownErr = errors.Join(errs...)
		l.mu.Lock()
		l.state = StateDestroyed
		l.mu.Unlock()
		l.log.Info("lifecycle", zap.Stringer("state", StateDestroyed), zap.String("signal", sig))
	})
	return l.shutdownErr
}

// runDestroy calls OnModuleDestroy on every initialized provider in declaration order.
func (l *Lifecycle) runDestroy(ctx context.Context) error {
	var errs []error
	for _, p := range l.initializedSnapshot() {
		if h, ok := p.(OnModuleDestroy); ok {
			errs = append(errs, l.hook(p, "OnModuleDestroy", func() error { return h.OnModuleDestroy(ctx) }))
		}
	}
	return errors.Join(errs...)
}

func (l *Lifecycle) hook(p any, name string, fn func() error) error {
	err := safeHook(fn)
	if err != nil {
		l.log.Error(name+" failed", zap.String("provider", typeName(p)), zap.Error(err))
		return fmt.Errorf("gnest: %s %s: %w", name, typeName(p), err)
	}
	return nil
}

func (l *Lifecycle) initializedSnapshot() []any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]any(nil), l.initialized...)
}

// NotifySignals subscribes to SIGINT and SIGTERM. Only the first call registers
// the handler; every call returns the same channel.
func (l *Lifecycle) NotifySignals() <-chan os.Signal {
	l.signalOnce.Do(func() {
		l.signals = make(chan os.Signal, 1)
		signal.Notify(l.signals, os.Interrupt, syscall.SIGTERM)
	})
	return l.signals
}

// StopSignals releases the signal subscription.
func (l *Lifecycle) StopSignals() {
	if l.signals != nil {
		signal.Stop(l.signals)
	}
}

func safeHook(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	return fn()
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
