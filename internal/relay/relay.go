// Package relay fans a single stream of bytes out to a named, ordered set
// of target queues, with per-target enable/disable control.
package relay

import "sync"

// Queue is the minimal destination a Relay writes into. A bounded queue
// applies back-pressure to Put by blocking; an unbounded one never does.
type Queue interface {
	Put(line []byte)
}

// Relay fans out to an ordered list of named targets. Two lines from the
// same source preserve arrival order per target, since Put delivers to
// targets strictly in registration order.
type Relay struct {
	Name string

	mu       sync.Mutex
	targets  []string
	queues   map[string]Queue
	disabled map[string]bool
}

// New builds a Relay with targets in the given order, all initially
// enabled.
func New(name string, targets map[string]Queue, order []string) *Relay {
	r := &Relay{
		Name:     name,
		targets:  append([]string(nil), order...),
		queues:   targets,
		disabled: make(map[string]bool),
	}
	return r
}

// Put enqueues line to every currently-enabled target, in registration
// order.
func (r *Relay) Put(line []byte) {
	r.mu.Lock()
	targets := make([]string, 0, len(r.targets))
	for _, name := range r.targets {
		if !r.disabled[name] {
			targets = append(targets, name)
		}
	}
	r.mu.Unlock()

	for _, name := range targets {
		if q, ok := r.queues[name]; ok {
			q.Put(line)
		}
	}
}

// Disable marks a target as disabled unconditionally. The Python original
// this was ported from only added the name to its disabled list if the name
// was already present, meaning a target could never actually be disabled on
// the first call. That is a bug, not a behaviour to preserve.
func (r *Relay) Disable(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled[name] = true
}

// Enable re-enables a previously disabled target.
func (r *Relay) Enable(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.disabled, name)
}

// IsDisabled reports whether a target is currently disabled.
func (r *Relay) IsDisabled(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disabled[name]
}
