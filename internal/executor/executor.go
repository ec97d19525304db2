// Package executor runs named units concurrently on goroutines with
// add/remove semantics. The daemon registers its control loop and, while a
// session is active, the capture drain unit.
package executor

import (
	"context"
	"fmt"
	"sync"
)

// Unit is a runnable registered with the pool. Run must return promptly
// after ctx is cancelled.
type Unit interface {
	Run(ctx context.Context)
}

// UnitFunc adapts a function to the Unit interface.
type UnitFunc func(ctx context.Context)

// Run implements Unit.
func (f UnitFunc) Run(ctx context.Context) { f(ctx) }

type unitHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Pool owns the registry of running units. Only the session controller
// adds/removes the capture unit; the registry itself is safe for concurrent
// use.
type Pool struct {
	mu    sync.Mutex
	units map[string]*unitHandle
}

// NewPool creates an empty Pool.
func NewPool() *Pool {
	return &Pool{units: make(map[string]*unitHandle)}
}

// Add registers a unit under name and starts it on its own goroutine.
// Names are unique; adding a duplicate is an error.
func (p *Pool) Add(name string, u Unit) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.units[name]; exists {
		return fmt.Errorf("unit %q already registered", name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &unitHandle{cancel: cancel, done: make(chan struct{})}
	p.units[name] = h

	go func() {
		defer close(h.done)
		u.Run(ctx)
	}()
	return nil
}

// Remove cancels the named unit and blocks until its Run returns.
func (p *Pool) Remove(name string) error {
	p.mu.Lock()
	h, ok := p.units[name]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("unit %q not registered", name)
	}
	delete(p.units, name)
	p.mu.Unlock()

	h.cancel()
	<-h.done
	return nil
}

// Has reports whether a unit is registered under name.
func (p *Pool) Has(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.units[name]
	return ok
}

// Shutdown cancels every unit and waits for all of them to return.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	handles := make([]*unitHandle, 0, len(p.units))
	for name, h := range p.units {
		handles = append(handles, h)
		delete(p.units, name)
	}
	p.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}
	for _, h := range handles {
		<-h.done
	}
}
