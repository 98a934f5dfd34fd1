package core

import "sync"

// Generation is the cancel-token scope described in spec.md §5: every job
// registered between two Reset calls shares one Generation. Tripping it
// stops any future execution-path entry for those jobs and signals every
// live child they own.
type Generation struct {
	mu         sync.Mutex
	tripped    bool
	done       chan struct{}
	hooks      map[int]func()
	nextHookID int
}

// NewGeneration returns a fresh, untripped Generation.
func NewGeneration() *Generation {
	return &Generation{
		done:  make(chan struct{}),
		hooks: make(map[int]func()),
	}
}

// Tripped reports whether Trip has been called.
func (g *Generation) Tripped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tripped
}

// Done returns a channel closed once the generation trips, for use in
// select statements alongside timers.
func (g *Generation) Done() <-chan struct{} {
	return g.done
}

// Trip marks the generation tripped and runs every registered hook. It is
// idempotent; only the first call has any effect.
func (g *Generation) Trip() {
	g.mu.Lock()
	if g.tripped {
		g.mu.Unlock()
		return
	}
	g.tripped = true
	hooks := make([]func(), 0, len(g.hooks))
	for _, h := range g.hooks {
		hooks = append(hooks, h)
	}
	g.mu.Unlock()

	close(g.done)
	for _, h := range hooks {
		h()
	}
}

// OnTrip registers a hook to run (once) when the generation trips. If the
// generation has already tripped, the hook runs immediately. The returned
// function deregisters the hook; call it once the guarded work completes
// normally so the hook is not retained forever.
func (g *Generation) OnTrip(hook func()) (deregister func()) {
	g.mu.Lock()
	if g.tripped {
		g.mu.Unlock()
		hook()
		return func() {}
	}

	id := g.nextHookID
	g.nextHookID++
	g.hooks[id] = hook
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.hooks, id)
		g.mu.Unlock()
	}
}
