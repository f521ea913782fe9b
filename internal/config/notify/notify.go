// Package notify delivers configuration change events to subscribers.
//
// A reload compares the previous and the new merged tree and publishes one
// Change per added, modified or removed leaf path, followed by a single
// ChangeReload event. Observers subscribe to everything or to a path
// prefix; delivery is synchronous unless WithAsync is given.
package notify

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/strata/internal/config/tree"
	"github.com/dshills/strata/internal/logger"
)

// ChangeType represents the type of configuration change.
type ChangeType int

const (
	// ChangeAdded indicates a path that did not exist before.
	ChangeAdded ChangeType = iota

	// ChangeModified indicates a path whose value changed.
	ChangeModified

	// ChangeRemoved indicates a path that no longer exists.
	ChangeRemoved

	// ChangeReload marks the end of a reload. Path is empty.
	ChangeReload
)

// String returns the change type name.
func (c ChangeType) String() string {
	switch c {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	case ChangeReload:
		return "reload"
	default:
		return "unknown"
	}
}

// Change represents a configuration change event.
type Change struct {
	// Path is the dotted path of the changed leaf. Empty for reload events.
	Path string

	// Type is the type of change.
	Type ChangeType

	// OldValue is the previous value (nil for additions).
	OldValue tree.Node

	// NewValue is the new value (nil for removals).
	NewValue tree.Node

	// Revision identifies the configuration snapshot that produced the change.
	Revision string
}

// String formats the change for logs.
func (c Change) String() string {
	if c.Type == ChangeReload {
		return fmt.Sprintf("reload (revision %s)", c.Revision)
	}
	return fmt.Sprintf("%s %s", c.Type, c.Path)
}

// Changes computes the leaf-level differences between two trees. The result
// is ordered by path: additions, modifications and removals interleaved.
func Changes(old, new *tree.Map, revision string) []Change {
	added, modified, removed := tree.Diff(old, new)

	changes := make([]Change, 0, len(added)+len(modified)+len(removed))
	for _, p := range added {
		v, _ := tree.Lookup(new, p)
		changes = append(changes, Change{Path: p, Type: ChangeAdded, NewValue: tree.Clone(v), Revision: revision})
	}
	for _, p := range modified {
		ov, _ := tree.Lookup(old, p)
		nv, _ := tree.Lookup(new, p)
		changes = append(changes, Change{Path: p, Type: ChangeModified, OldValue: tree.Clone(ov), NewValue: tree.Clone(nv), Revision: revision})
	}
	for _, p := range removed {
		v, _ := tree.Lookup(old, p)
		changes = append(changes, Change{Path: p, Type: ChangeRemoved, OldValue: tree.Clone(v), Revision: revision})
	}

	sort.SliceStable(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

// Observer is called when configuration changes occur.
type Observer func(change Change)

// Subscription represents an active observer subscription.
type Subscription struct {
	id       uint64
	path     string
	global   bool
	observer Observer
	notifier *Notifier
}

// Path returns the subscribed path, empty for global subscriptions.
func (s *Subscription) Path() string {
	return s.path
}

// Unsubscribe removes this subscription. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s.notifier != nil {
		s.notifier.unsubscribe(s.id)
	}
}

// matches reports whether the subscription receives change.
func (s *Subscription) matches(change Change) bool {
	if s.global || change.Type == ChangeReload {
		return true
	}
	return change.Path == s.path || isParentPath(s.path, change.Path)
}

// Notifier manages configuration change subscriptions.
type Notifier struct {
	mu sync.RWMutex

	// Subscriptions in the order they were made
	subs []*Subscription

	nextID uint64
	log    *logger.Logger

	async  bool
	buffer chan []Change
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithAsync enables asynchronous notification delivery. Published batches
// are queued and delivered in order by a single goroutine.
func WithAsync(bufferSize int) Option {
	return func(n *Notifier) {
		if bufferSize > 0 {
			n.async = true
			n.buffer = make(chan []Change, bufferSize)
		}
	}
}

// WithLogger sets the logger used to report observer panics.
func WithLogger(l *logger.Logger) Option {
	return func(n *Notifier) {
		n.log = logger.OrNop(l)
	}
}

// New creates a new Notifier.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		log:  logger.Nop(),
		done: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(n)
	}

	if n.async {
		n.wg.Add(1)
		go n.processAsync()
	}

	return n
}

// Subscribe registers an observer for all changes.
func (n *Notifier) Subscribe(observer Observer) *Subscription {
	return n.add(&Subscription{global: true, observer: observer})
}

// SubscribePath registers an observer for changes at path or below it.
// Subscribing to "database" receives changes to "database.host". Reload
// events reach every subscriber.
func (n *Notifier) SubscribePath(path string, observer Observer) *Subscription {
	return n.add(&Subscription{path: path, global: path == "", observer: observer})
}

func (n *Notifier) add(s *Subscription) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	s.id = n.nextID
	s.notifier = n
	n.nextID++
	n.subs = append(n.subs, s)
	return s
}

// SubscriberCount returns the number of active subscriptions.
func (n *Notifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// Notify sends a single change to all matching observers.
func (n *Notifier) Notify(change Change) {
	n.Publish([]Change{change})
}

// NotifyReload sends a reload event for revision.
func (n *Notifier) NotifyReload(revision string) {
	n.Notify(Change{Type: ChangeReload, Revision: revision})
}

// Publish delivers changes in order. With async delivery the batch is
// queued; Publish blocks while the queue is full and drops the batch once
// the notifier is closed.
func (n *Notifier) Publish(changes []Change) {
	if len(changes) == 0 {
		return
	}

	n.mu.RLock()
	closed := n.closed
	n.mu.RUnlock()
	if closed {
		return
	}

	if n.async {
		select {
		case n.buffer <- changes:
		case <-n.done:
		}
		return
	}

	n.deliver(changes)
}

// Close shuts down the notifier, delivering batches already queued. It is
// safe to call Close multiple times.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()

	close(n.done)
	n.wg.Wait()
}

// unsubscribe removes an observer by ID.
func (n *Notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, s := range n.subs {
		if s.id == id {
			n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
			return
		}
	}
}

// deliver sends every change to the matching observers, in subscription
// order. Observers run outside the lock.
func (n *Notifier) deliver(changes []Change) {
	n.mu.RLock()
	subs := make([]*Subscription, len(n.subs))
	copy(subs, n.subs)
	n.mu.RUnlock()

	for _, change := range changes {
		for _, s := range subs {
			if s.matches(change) {
				n.call(s, change)
			}
		}
	}
}

func (n *Notifier) call(s *Subscription, change Change) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error().
				Interface("panic", r).
				Str("path", change.Path).
				Str("type", change.Type.String()).
				Msg("config observer panicked")
		}
	}()
	s.observer(change)
}

// processAsync handles asynchronous notification delivery.
func (n *Notifier) processAsync() {
	defer n.wg.Done()

	for {
		select {
		case changes := <-n.buffer:
			n.deliver(changes)
		case <-n.done:
			// Drain remaining buffered changes
			for {
				select {
				case changes := <-n.buffer:
					n.deliver(changes)
				default:
					return
				}
			}
		}
	}
}

// isParentPath checks if parent is a parent path of child.
// e.g., "database" is parent of "database.host".
func isParentPath(parent, child string) bool {
	if parent == "" || len(parent) >= len(child) {
		return false
	}
	return child[:len(parent)] == parent && child[len(parent)] == '.'
}
