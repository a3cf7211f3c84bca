package state

import "sort"

// Status is the lifecycle stage of a cache entry.
type Status int

const (
	// StatusAbsent is reported for ids with no entry.
	StatusAbsent Status = iota
	StatusPending
	StatusLoaded
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusLoaded:
		return "loaded"
	case StatusError:
		return "error"
	default:
		return "absent"
	}
}

// Entry is one cached result and its lifecycle status.
type Entry[T any] struct {
	Status       Status
	Result       T
	ErrorMessage string
}

// Cache maps string ids to lifecycle-tracked results.
//
// Once an entry is Loaded it cannot be overwritten by Success or Fail; only
// Destroy removes it. Like Tree, a Cache is a value and every mutating
// method returns a new Cache.
type Cache[T any] struct {
	entries map[string]Entry[T]
	version uint64
}

// Version increases with every effective change.
func (c Cache[T]) Version() uint64 { return c.version }

// Len returns the number of entries.
func (c Cache[T]) Len() int { return len(c.entries) }

// Get returns the entry for id.
func (c Cache[T]) Get(id string) (Entry[T], bool) {
	e, ok := c.entries[id]
	return e, ok
}

// Status returns the status of id, StatusAbsent when there is no entry.
func (c Cache[T]) Status(id string) Status {
	if e, ok := c.entries[id]; ok {
		return e.Status
	}
	return StatusAbsent
}

// Keys returns all entry ids, sorted.
func (c Cache[T]) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c Cache[T]) with(id string, e Entry[T]) Cache[T] {
	next := Cache[T]{
		entries: make(map[string]Entry[T], len(c.entries)+1),
		version: c.version + 1,
	}
	for k, v := range c.entries {
		next.entries[k] = v
	}
	next.entries[id] = e
	return next
}

// Start marks id as Pending. It is a no-op when the entry is already
// Loaded (ErrAlreadyLoaded) or Pending (ErrAlreadyPending); callers use the
// error to decide whether to issue a fetch.
func (c Cache[T]) Start(id string) (Cache[T], error) {
	switch c.Status(id) {
	case StatusLoaded:
		return c, ErrAlreadyLoaded
	case StatusPending:
		return c, ErrAlreadyPending
	}
	return c.with(id, Entry[T]{Status: StatusPending}), nil
}

// Success stores result as Loaded unless the entry is already Loaded.
func (c Cache[T]) Success(id string, result T) (Cache[T], error) {
	if c.Status(id) == StatusLoaded {
		return c, ErrStaleResponse
	}
	return c.with(id, Entry[T]{Status: StatusLoaded, Result: result}), nil
}

// Fail stores an Error entry carrying err's message unless the entry is
// already Loaded.
func (c Cache[T]) Fail(id string, err error) (Cache[T], error) {
	if c.Status(id) == StatusLoaded {
		return c, ErrStaleResponse
	}
	return c.with(id, Entry[T]{Status: StatusError, ErrorMessage: errorMessage(err)}), nil
}

// Destroy removes the given entries regardless of their status. The second
// result reports whether any entry was removed.
func (c Cache[T]) Destroy(ids ...string) (Cache[T], bool) {
	removed := false
	for _, id := range ids {
		if _, ok := c.entries[id]; ok {
			removed = true
			break
		}
	}
	if !removed {
		return c, false
	}
	next := Cache[T]{
		entries: make(map[string]Entry[T], len(c.entries)),
		version: c.version + 1,
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	for k, v := range c.entries {
		if _, ok := drop[k]; !ok {
			next.entries[k] = v
		}
	}
	return next, true
}

// Clear returns an empty cache whose version is still ahead of c.
func (c Cache[T]) Clear() Cache[T] {
	return Cache[T]{version: c.version + 1}
}
