package obstree

import (
	"fmt"
	"reflect"
	"sync"
)

// RemoteHook is the remote-storage hook installed on the root of a tree that
// is mirrored to a peer. It is invoked with the absolute address of a
// mutation and must call done once the peer has acknowledged.
type RemoteHook func(action Action, address string, value Value, done func())

// Collection is implemented by both Dict and List: it owns its children,
// keeps a back-link to its parent, exposes change signals, and resolves its
// own JSON-path address by walking parents.
type Collection interface {
	parent() (Collection, string, bool)
	setParent(p Collection, key string)
	// Address returns the JSON-path-like address by which this collection
	// is reachable from the tree root, e.g. "['a']['b'][3]".
	Address() string
	// Changed returns the signal fired when this collection's own children
	// mutate.
	Changed() *changeSignal
	// RecursiveChanged returns the signal fired for mutations anywhere in
	// this collection's subtree, with the originating collection preserved.
	RecursiveChanged() *recursiveSignal
	deepEqual(o Collection) bool
	emitRecursive(ev RecursiveChangeEvent)
}

type base struct {
	mu         sync.Mutex
	parentColl Collection
	parentKey  string
	changed    *changeSignal
	recursive  *recursiveSignal
	hook       RemoteHook
	// onRemoteThread reports whether the calling goroutine is the pinned
	// mirror thread; local writes executed from it bypass the hook to avoid
	// the reentry the design notes warn about.
	onRemoteThread func() bool
}

func newBase() base {
	return base{changed: newChangeSignal(), recursive: newRecursiveSignal()}
}

func (b *base) parent() (Collection, string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.parentColl == nil {
		return nil, "", false
	}
	return b.parentColl, b.parentKey, true
}

func (b *base) setParent(p Collection, key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parentColl = p
	b.parentKey = key
}

func (b *base) Changed() *changeSignal             { return b.changed }
func (b *base) RecursiveChanged() *recursiveSignal { return b.recursive }

// Address walks parents to build the JSON-path address. The invariant that
// the address matches how a parent actually reaches the child is enforced
// by construction: setParent is only ever called from the single place a
// child is installed (Dict.setNoSignal / List append/replace).
func Address(c Collection) string {
	var parts []string
	cur := c
	for {
		p, key, ok := cur.parent()
		if !ok {
			break
		}
		if _, isList := p.(*List); isList {
			key = "[" + key + "]"
		} else {
			key = "['" + key + "']"
		}
		parts = append([]string{key}, parts...)
		cur = p
	}
	out := ""
	for _, p := range parts {
		out += p
	}
	return out
}

// SetHook installs (or, with nil, detaches) the remote-storage hook on this
// collection's root. Detaching on destruction breaks the cyclic ownership
// between the tree and the mirror (§9).
func SetHook(c Collection, hook RemoteHook, onRemoteThread func() bool) {
	switch t := c.(type) {
	case *Dict:
		t.hook = hook
		t.onRemoteThread = onRemoteThread
	case *List:
		t.hook = hook
		t.onRemoteThread = onRemoteThread
	}
}

// Release detaches the remote-storage hook, to be called when the last
// reference to a mirrored collection is about to drop, preventing
// delete-during-teardown loops.
func Release(c Collection) {
	SetHook(c, nil, nil)
}

// Dict is an observable string-keyed collection; insertion order is
// preserved for recap/replay determinism.
type Dict struct {
	base
	children map[string]Value
	order    []string
}

func NewDict() *Dict {
	return &Dict{base: newBase(), children: make(map[string]Value)}
}

func (d *Dict) Address() string { return Address(d) }

func (d *Dict) deepEqual(o Collection) bool {
	od, ok := o.(*Dict)
	if !ok || od == nil {
		return false
	}
	if len(d.order) != len(od.order) {
		return false
	}
	for _, k := range d.order {
		ov, ok := od.children[k]
		if !ok || !d.children[k].Equal(ov) {
			return false
		}
	}
	return true
}

// Get returns the child at key and whether it exists.
func (d *Dict) Get(key string) (Value, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.children[key]
	return v, ok
}

// Keys returns the insertion-ordered key list.
func (d *Dict) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// setNoSignal installs a child without firing change signals or invoking
// the remote hook; used when building a tree from JSON.
func (d *Dict) setNoSignal(key string, v Value) {
	if _, exists := d.children[key]; !exists {
		d.order = append(d.order, key)
	}
	d.children[key] = v
	linkParent(d, key, v)
}

func linkParent(parent Collection, key string, v Value) {
	switch v.kind {
	case KindDict:
		v.dict.setParent(parent, key)
	case KindList:
		v.list.setParent(parent, key)
	}
}

// Set implements the set(path,value,done) operation terminating at this
// dict for a single path token. idempotent/hook/signal semantics are
// implemented in Tree.Set which walks the full path; this method performs
// the final-segment mutation once the caller has decided to apply it
// locally.
func (d *Dict) applySet(key string, v Value, fromRemote bool) {
	d.mu.Lock()
	if _, exists := d.children[key]; !exists {
		d.order = append(d.order, key)
	}
	d.children[key] = v
	linkParent(d, key, v)
	d.mu.Unlock()

	ev := ChangeEvent{Action: ActionSet, Key: key, Value: v}
	d.changed.Emit(ev)
	bubble(d, RecursiveChangeEvent{Origin: d, ChangeEvent: ev})
	_ = fromRemote
}

func (d *Dict) applyDelete(key string) {
	d.mu.Lock()
	old, existed := d.children[key]
	if existed {
		delete(d.children, key)
		for i, k := range d.order {
			if k == key {
				d.order = append(d.order[:i], d.order[i+1:]...)
				break
			}
		}
	}
	d.mu.Unlock()
	if !existed {
		return
	}
	ev := ChangeEvent{Action: ActionDelete, Key: key, Value: old}
	d.changed.Emit(ev)
	bubble(d, RecursiveChangeEvent{Origin: d, ChangeEvent: ev})
}

func (d *Dict) emitRecursive(ev RecursiveChangeEvent) {
	d.recursive.Emit(ev)
	bubble(d, ev)
}

// Set installs or replaces the child at key, routing through a remote hook
// installed anywhere up the tree the same way Tree.Set does for a
// single-token path. Used by node wrappers that mirror local state (e.g.
// a device's fps) into a dict they were handed directly, without needing
// the full path-based Tree API for a one-level write.
func (d *Dict) Set(key string, v Value) {
	if current, ok := d.Get(key); ok && current.Equal(v) {
		return
	}
	_, hook, onRemoteThread := findHook(d)
	if hook != nil && !(onRemoteThread != nil && onRemoteThread()) {
		addr := absoluteAddress(d, token{key: key})
		hook(ActionSet, addr, v, func() { d.applySet(key, v, false) })
		return
	}
	d.applySet(key, v, false)
}

// Recap synchronously replays current contents as Set notifications so a
// late observer can initialize (§4.1).
func (d *Dict) Recap(observer func(ChangeEvent)) {
	d.mu.Lock()
	keys := make([]string, len(d.order))
	copy(keys, d.order)
	d.mu.Unlock()
	for _, k := range keys {
		d.mu.Lock()
		v := d.children[k]
		d.mu.Unlock()
		observer(ChangeEvent{Action: ActionSet, Key: k, Value: v})
	}
}

// List is an observable ordered collection.
type List struct {
	base
	items []Value
}

func NewList() *List {
	return &List{base: newBase()}
}

func (l *List) Address() string { return Address(l) }

func (l *List) deepEqual(o Collection) bool {
	ol, ok := o.(*List)
	if !ok || ol == nil {
		return false
	}
	if len(l.items) != len(ol.items) {
		return false
	}
	for i := range l.items {
		if !l.items[i].Equal(ol.items[i]) {
			return false
		}
	}
	return true
}

func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

func (l *List) At(i int) (Value, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= len(l.items) {
		return Value{}, false
	}
	return l.items[i], true
}

func indexKey(i int) string { return fmt.Sprintf("%d", i) }

func (l *List) applySet(index int, v Value) {
	l.mu.Lock()
	for len(l.items) <= index {
		l.items = append(l.items, Null())
	}
	l.items[index] = v
	linkParent(l, indexKey(index), v)
	l.mu.Unlock()

	ev := ChangeEvent{Action: ActionSet, Key: indexKey(index), Value: v}
	l.changed.Emit(ev)
	bubble(l, RecursiveChangeEvent{Origin: l, ChangeEvent: ev})
}

func (l *List) applyDelete(index int) {
	l.mu.Lock()
	if index < 0 || index >= len(l.items) {
		l.mu.Unlock()
		return
	}
	old := l.items[index]
	l.items = append(l.items[:index], l.items[index+1:]...)
	l.mu.Unlock()

	ev := ChangeEvent{Action: ActionDelete, Key: indexKey(index), Value: old}
	l.changed.Emit(ev)
	bubble(l, RecursiveChangeEvent{Origin: l, ChangeEvent: ev})
}

// Append adds v as a new final element, routing through a remote hook the
// same way Dict.Set does.
func (l *List) Append(v Value) {
	index := l.Len()
	_, hook, onRemoteThread := findHook(l)
	if hook != nil && !(onRemoteThread != nil && onRemoteThread()) {
		addr := absoluteAddress(l, token{isIndex: true, index: index})
		hook(ActionSet, addr, v, func() { l.applySet(index, v) })
		return
	}
	l.applySet(index, v)
}

func (l *List) emitRecursive(ev RecursiveChangeEvent) {
	l.recursive.Emit(ev)
	bubble(l, ev)
}

// bubble fires recursive_changed on every ancestor, preserving the
// originating collection identity, per §4.1's bottom-up signal rule.
func bubble(c Collection, ev RecursiveChangeEvent) {
	p, _, ok := c.parent()
	if !ok {
		return
	}
	p.RecursiveChanged().Emit(ev)
	bubble(p, ev)
}

// sameCollection is used by tests to assert the invariant that a collection
// appears in at most one parent.
func sameCollection(a, b Collection) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
