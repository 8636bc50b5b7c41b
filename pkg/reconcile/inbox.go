package reconcile

import (
	"sort"
	"sync"
)

// Inbox is a client-side view of a server-owned set, keyed by id. Items the
// user dismissed stay hidden until a snapshot confirms they are gone, so a
// fetch that raced the dismissal cannot bring them back.
type Inbox[T any] struct {
	mu        sync.Mutex
	items     map[string]T
	dismissed map[string]struct{}
	key       func(T) string
	less      func(a, b T) bool
}

// NewInbox creates an empty inbox. less orders Items.
func NewInbox[T any](key func(T) string, less func(a, b T) bool) *Inbox[T] {
	return &Inbox[T]{
		items:     make(map[string]T),
		dismissed: make(map[string]struct{}),
		key:       key,
		less:      less,
	}
}

// Replace installs snapshot as the whole view and reports whether the set of
// ids changed.
func (in *Inbox[T]) Replace(snapshot []T) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	next := make(map[string]T, len(snapshot))
	seen := make(map[string]struct{}, len(snapshot))
	for _, item := range snapshot {
		k := in.key(item)
		seen[k] = struct{}{}
		if _, hidden := in.dismissed[k]; hidden {
			continue
		}
		next[k] = item
	}
	for k := range in.dismissed {
		if _, ok := seen[k]; !ok {
			delete(in.dismissed, k)
		}
	}

	changed := len(next) != len(in.items)
	if !changed {
		for k := range next {
			if _, ok := in.items[k]; !ok {
				changed = true
				break
			}
		}
	}
	in.items = next
	return changed
}

// Upsert adds or refreshes one item, typically a push arrival. It reports
// whether the item was new.
func (in *Inbox[T]) Upsert(item T) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	k := in.key(item)
	if _, hidden := in.dismissed[k]; hidden {
		return false
	}
	_, existed := in.items[k]
	in.items[k] = item
	return !existed
}

// Remove hides id optimistically. It reports whether id was visible.
func (in *Inbox[T]) Remove(id string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	_, ok := in.items[id]
	delete(in.items, id)
	in.dismissed[id] = struct{}{}
	return ok
}

// Restore undoes Remove after the server refused it. The item reappears
// with the next snapshot that contains it.
func (in *Inbox[T]) Restore(id string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	delete(in.dismissed, id)
}

// Clear empties the view. Nothing is hidden: the next snapshot decides what
// is still unread.
func (in *Inbox[T]) Clear() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.items = make(map[string]T)
}

// Items returns the visible items in order.
func (in *Inbox[T]) Items() []T {
	in.mu.Lock()
	defer in.mu.Unlock()

	out := make([]T, 0, len(in.items))
	for _, item := range in.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return in.less(out[i], out[j]) })
	return out
}

func (in *Inbox[T]) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.items)
}
