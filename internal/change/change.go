// Package change holds the file-change records that flow from the watcher to
// the commit driver, and the pending batch that coalesces them.
package change

import (
	"sort"
	"time"
)

// Kind is the type of filesystem change observed for a path.
type Kind int

const (
	Created Kind = iota
	Modified
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is a single observed change. Path is slash-separated and relative to
// the watched directory.
type Event struct {
	Path      string
	Kind      Kind
	Timestamp time.Time
}

// Batch is the set of pending changes keyed by path. The last observed kind
// for a path wins. A Batch is not safe for concurrent use.
type Batch struct {
	events map[string]Event
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{events: make(map[string]Event)}
}

// Add records ev, replacing any earlier event for the same path.
func (b *Batch) Add(ev Event) {
	b.events[ev.Path] = ev
}

// Merge adds events that are not already present. Paths already in the batch
// hold newer information and are left untouched.
func (b *Batch) Merge(events []Event) {
	for _, ev := range events {
		if _, ok := b.events[ev.Path]; !ok {
			b.events[ev.Path] = ev
		}
	}
}

// Len returns the number of distinct paths in the batch.
func (b *Batch) Len() int {
	return len(b.events)
}

// Empty reports whether the batch holds no paths.
func (b *Batch) Empty() bool {
	return len(b.events) == 0
}

// Contains reports whether path is pending.
func (b *Batch) Contains(path string) bool {
	_, ok := b.events[path]
	return ok
}

// Get returns the pending event for path.
func (b *Batch) Get(path string) (Event, bool) {
	ev, ok := b.events[path]
	return ev, ok
}

// Sorted returns the pending events ordered by path.
func (b *Batch) Sorted() []Event {
	out := make([]Event, 0, len(b.events))
	for _, ev := range b.events {
		out = append(out, ev)
	}
	SortByPath(out)
	return out
}

// SortByPath orders events lexicographically by path in place.
func SortByPath(events []Event) {
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
}

// Paths returns the paths of events in order.
func Paths(events []Event) []string {
	paths := make([]string, len(events))
	for i, ev := range events {
		paths[i] = ev.Path
	}
	return paths
}
