// Package syncstate reconciles provisional local mutations with the
// authoritative snapshots pushed by the document store.
//
// Every local add, patch, or removal is recorded as provisional and layered
// over the last confirmed snapshot. A provisional entry is retired when a
// snapshot shows its effect, or when the caller reports that the backing
// write failed. Readers always see snapshot state with the still-pending
// mutations applied on top.
package syncstate

import (
	"reflect"

	"github.com/google/uuid"
)

// ProvisionalPrefix marks keys assigned to entries that have no store id yet.
const ProvisionalPrefix = "pending:"

// Placement controls where pending additions appear in the merged view.
type Placement int

const (
	// Append places pending additions after confirmed entries.
	Append Placement = iota
	// Prepend places pending additions before confirmed entries (newest-first lists).
	Prepend
)

type pendingAdd[T any] struct {
	temp    string
	id      string
	value   T
	settled bool
}

type pendingPatch[T any] struct {
	token   string
	id      string
	apply   func(T) T
	settled bool
}

// Overlay holds one collection's confirmed snapshot and its provisional
// mutations. It is not safe for concurrent use; owners guard it with their
// own lock.
type Overlay[T any] struct {
	key       func(T) string
	setKey    func(*T, string)
	placement Placement

	confirmed []T
	known     map[string]T
	adds      []*pendingAdd[T]
	patches   []*pendingPatch[T]
	removals  map[string]bool
	// removed holds additions with a store id that were removed before any
	// snapshot contained them, so Discard can bring them back.
	removed map[string]*pendingAdd[T]
}

// New creates an empty overlay. key reads an entry's id and setKey assigns one.
func New[T any](key func(T) string, setKey func(*T, string), placement Placement) *Overlay[T] {
	return &Overlay[T]{
		key:       key,
		setKey:    setKey,
		placement: placement,
		known:     map[string]T{},
		removals:  map[string]bool{},
		removed:   map[string]*pendingAdd[T]{},
	}
}

// Reset discards the snapshot and every provisional mutation.
func (o *Overlay[T]) Reset() {
	o.confirmed = nil
	o.known = map[string]T{}
	o.adds = nil
	o.patches = nil
	o.removals = map[string]bool{}
	o.removed = map[string]*pendingAdd[T]{}
}

// Apply installs a new authoritative snapshot and retires the provisional
// mutations it confirms.
func (o *Overlay[T]) Apply(snapshot []T) {
	o.confirmed = append([]T(nil), snapshot...)
	o.known = make(map[string]T, len(snapshot))
	for _, v := range snapshot {
		o.known[o.key(v)] = v
	}

	adds := o.adds[:0]
	for _, add := range o.adds {
		if add.id != "" {
			if _, ok := o.known[add.id]; ok {
				continue
			}
		}
		adds = append(adds, add)
	}
	o.adds = adds

	for id := range o.removals {
		if _, ok := o.known[id]; !ok {
			delete(o.removals, id)
		}
	}
	// A snapshot either holds the removed entry, where the removal marker
	// takes over, or reflects the delete.
	clear(o.removed)

	patches := o.patches[:0]
	for _, p := range o.patches {
		if p.settled || o.patchConfirmed(p) {
			continue
		}
		patches = append(patches, p)
	}
	o.patches = patches
}

func (o *Overlay[T]) patchConfirmed(p *pendingPatch[T]) bool {
	current, ok := o.known[p.id]
	if !ok {
		return false
	}
	return reflect.DeepEqual(p.apply(current), current)
}

// Add records a provisional entry and returns its temporary key.
func (o *Overlay[T]) Add(value T) string {
	temp := ProvisionalPrefix + uuid.NewString()
	o.setKey(&value, temp)
	o.adds = append(o.adds, &pendingAdd[T]{temp: temp, value: value})
	return temp
}

// Confirm binds a provisional entry to the id the store assigned. The entry
// stays visible under that id until a snapshot contains it.
func (o *Overlay[T]) Confirm(temp, id string) {
	for i, add := range o.adds {
		if add.temp != temp {
			continue
		}
		if _, ok := o.known[id]; ok {
			o.adds = append(o.adds[:i], o.adds[i+1:]...)
			return
		}
		add.id = id
		o.setKey(&add.value, id)
		return
	}
}

// Discard drops a provisional entry, patch, or removal whose write failed.
// A discarded removal makes the entry visible again.
func (o *Overlay[T]) Discard(token string) {
	if add, ok := o.removed[token]; ok {
		delete(o.removed, token)
		delete(o.removals, token)
		o.adds = append(o.adds, add)
		return
	}
	for i, add := range o.adds {
		if add.temp == token {
			o.adds = append(o.adds[:i], o.adds[i+1:]...)
			return
		}
	}
	for i, p := range o.patches {
		if p.token == token {
			o.patches = append(o.patches[:i], o.patches[i+1:]...)
			return
		}
	}
	delete(o.removals, token)
}

// Patch records a provisional change to id and returns its token.
func (o *Overlay[T]) Patch(id string, apply func(T) T) string {
	token := ProvisionalPrefix + uuid.NewString()
	o.patches = append(o.patches, &pendingPatch[T]{token: token, id: id, apply: apply})
	return token
}

// Settle reports that the write behind a patch committed. The patch is
// retired now if the current snapshot already reflects it, otherwise on the
// next snapshot.
func (o *Overlay[T]) Settle(token string) {
	for i, p := range o.patches {
		if p.token != token {
			continue
		}
		if o.patchConfirmed(p) {
			o.patches = append(o.patches[:i], o.patches[i+1:]...)
			return
		}
		p.settled = true
		return
	}
}

// Remove hides id until a snapshot no longer contains it. The returned token
// is id itself and can be passed to Discard when the delete fails.
func (o *Overlay[T]) Remove(id string) string {
	for i, add := range o.adds {
		if add.temp == id || add.id == id {
			o.adds = append(o.adds[:i], o.adds[i+1:]...)
			if add.id != "" {
				o.removed[add.id] = add
				o.removals[add.id] = true
			}
			break
		}
	}
	if _, ok := o.known[id]; ok {
		o.removals[id] = true
	}
	return id
}

// StoredIDs returns the store id of every visible entry, confirmed or
// provisional. Additions still waiting for a store id are left out.
func (o *Overlay[T]) StoredIDs() []string {
	ids := make([]string, 0, len(o.confirmed)+len(o.adds))
	for _, v := range o.confirmed {
		if id := o.key(v); !o.removals[id] {
			ids = append(ids, id)
		}
	}
	for _, add := range o.adds {
		if add.id != "" {
			ids = append(ids, add.id)
		}
	}
	return ids
}

// Has reports whether id is in the last snapshot.
func (o *Overlay[T]) Has(id string) bool {
	_, ok := o.known[id]
	return ok
}

// Pending reports whether id names a provisional addition.
func (o *Overlay[T]) Pending(id string) bool {
	for _, add := range o.adds {
		if add.temp == id || add.id == id {
			return true
		}
	}
	return false
}

// View returns the snapshot merged with every provisional mutation.
func (o *Overlay[T]) View() []T {
	merged := make([]T, 0, len(o.confirmed)+len(o.adds))
	for _, v := range o.confirmed {
		id := o.key(v)
		if o.removals[id] {
			continue
		}
		for _, p := range o.patches {
			if p.id == id {
				v = p.apply(v)
			}
		}
		merged = append(merged, v)
	}
	if len(o.adds) == 0 {
		return merged
	}
	pending := make([]T, 0, len(o.adds))
	for _, add := range o.adds {
		v := add.value
		for _, p := range o.patches {
			if p.id == o.key(v) {
				v = p.apply(v)
			}
		}
		pending = append(pending, v)
	}
	if o.placement == Prepend {
		// Newest pending entry first.
		for i, j := 0, len(pending)-1; i < j; i, j = i+1, j-1 {
			pending[i], pending[j] = pending[j], pending[i]
		}
		return append(pending, merged...)
	}
	return append(merged, pending...)
}
