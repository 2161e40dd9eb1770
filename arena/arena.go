// Package arena models the sender-side allocation pool a Beam binds its
// lifetime to (the APR pool of the original mod_http2 implementation).
//
// An Arena owns a LIFO stack of pre-cleanup callbacks. Destroying an Arena
// marks it dead and then runs them in reverse-registration order, giving
// dependents (a Beam, in particular) a chance to detach live
// receiver-side references before the memory they point into goes away.
package arena

import "sync"

// Arena is a minimal thread-owned allocation scope with pre-cleanup hooks.
type Arena struct {
	mu       sync.Mutex
	name     string
	parent   *Arena
	cleanups []cleanup
	nextID   int
	dead     bool
}

type cleanup struct {
	id int
	fn func()
}

// New creates an Arena. parent may be nil for a root arena.
func New(name string, parent *Arena) *Arena {
	return &Arena{name: name, parent: parent}
}

// Name returns the arena's human-readable tag.
func (a *Arena) Name() string { return a.name }

// OnPreCleanup registers fn to run when the arena is destroyed. It returns an unregister function, mirroring the
// idempotent pool_register/pool_kill pair from spec.md §4.6. If the arena is
// already dead, fn runs synchronously before OnPreCleanup returns (matching
// APR's "pool already being destroyed" behavior) and the returned
// unregister function is a no-op.
func (a *Arena) OnPreCleanup(fn func()) (unregister func()) {
	a.mu.Lock()
	if a.dead {
		a.mu.Unlock()
		fn()
		return func() {}
	}
	id := a.nextID
	a.nextID++
	a.cleanups = append(a.cleanups, cleanup{id: id, fn: fn})
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		for i := range a.cleanups {
			if a.cleanups[i].id == id {
				a.cleanups = append(a.cleanups[:i], a.cleanups[i+1:]...)
				return
			}
		}
	}
}

// Destroy marks the arena dead, then runs every pre-cleanup callback
// registered before that point in LIFO order; while they run, Dead reports
// true and a new OnPreCleanup runs its callback at once. Destroy is idempotent: calling it twice is a no-op
// the second time.
func (a *Arena) Destroy() {
	a.mu.Lock()
	if a.dead {
		a.mu.Unlock()
		return
	}
	cleanups := a.cleanups
	a.cleanups = nil
	a.dead = true
	a.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i].fn()
	}
}

// Dead reports whether Destroy has already run.
func (a *Arena) Dead() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dead
}
