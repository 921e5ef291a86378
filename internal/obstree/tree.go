package obstree

// Tree wraps a root Dict with the get/set/erase/recap operations of §4.1.
// The remote-storage hook, when installed via NewMirror, intercepts
// every locally-initiated Set/Delete so the mutation can be mirrored before
// it is applied.
type Tree struct {
	Root *Dict
}

// New creates an empty observable tree.
func New() *Tree {
	return &Tree{Root: NewDict()}
}

// TreeFromJSON builds a tree from a decoded JSON document.
func TreeFromJSON(doc map[string]interface{}) *Tree {
	root := NewDict()
	for k, v := range doc {
		root.setNoSignal(k, FromJSON(v))
	}
	return &Tree{Root: root}
}

// resolveContainer walks all but the last token, returning the Collection
// that owns the final segment plus the final token itself.
func resolveContainer(root Collection, toks []token) (Collection, token, error) {
	if len(toks) == 0 {
		return nil, token{}, ErrNotFound
	}
	cur := root
	for _, t := range toks[:len(toks)-1] {
		switch c := cur.(type) {
		case *Dict:
			if t.isIndex {
				return nil, token{}, ErrTypeMismatch
			}
			v, ok := c.Get(t.key)
			if !ok {
				return nil, token{}, ErrNotFound
			}
			if v.Kind() == KindDict {
				cur = v.Dict()
			} else if v.Kind() == KindList {
				cur = v.List()
			} else {
				return nil, token{}, ErrTypeMismatch
			}
		case *List:
			if !t.isIndex {
				return nil, token{}, ErrTypeMismatch
			}
			v, ok := c.At(t.index)
			if !ok {
				return nil, token{}, ErrNotFound
			}
			if v.Kind() == KindDict {
				cur = v.Dict()
			} else if v.Kind() == KindList {
				cur = v.List()
			} else {
				return nil, token{}, ErrTypeMismatch
			}
		}
	}
	return cur, toks[len(toks)-1], nil
}

// Get traverses path and returns the resolved scalar or collection value.
func (t *Tree) Get(path string) (Value, error) {
	toks, err := parsePath(path)
	if err != nil {
		return Value{}, err
	}
	if len(toks) == 0 {
		return FromDict(t.Root), nil
	}
	container, last, err := resolveContainer(t.Root, toks)
	if err != nil {
		return Value{}, err
	}
	switch c := container.(type) {
	case *Dict:
		if last.isIndex {
			return Value{}, ErrTypeMismatch
		}
		v, ok := c.Get(last.key)
		if !ok {
			return Value{}, ErrNotFound
		}
		return v, nil
	case *List:
		if !last.isIndex {
			return Value{}, ErrTypeMismatch
		}
		v, ok := c.At(last.index)
		if !ok {
			return Value{}, ErrNotFound
		}
		return v, nil
	}
	return Value{}, ErrNotFound
}

func absoluteAddress(container Collection, last token) string {
	base := Address(container)
	if last.isIndex {
		return base + "[" + itoa(last.index) + "]"
	}
	return base + "['" + last.key + "']"
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// setOptions controls the deferred/from_remote behavior of Set/Erase.
type setOptions struct {
	fromRemote bool
}

// SetOption configures a single Set/Erase call.
type SetOption func(*setOptions)

// FromRemote marks a mutation as arriving from the mirror peer: it is
// applied directly and does not re-invoke the remote hook or re-echo.
func FromRemote() SetOption {
	return func(o *setOptions) { o.fromRemote = true }
}

// Set implements set(path, value, done) (§4.1): idempotent no-op on equal
// current value, hook-deferred when a remote mirror is attached and the
// call did not originate from that mirror, applied immediately otherwise.
func (t *Tree) Set(path string, v Value, done func(), opts ...SetOption) error {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	toks, err := parsePath(path)
	if err != nil {
		return err
	}
	container, last, err := resolveContainer(t.Root, toks)
	if err != nil {
		// Auto-vivify missing intermediate dicts the way a fresh
		// configuration tree is populated on first write.
		container, last, err = vivify(t.Root, toks)
		if err != nil {
			return err
		}
	}

	if current, ok := currentValue(container, last); ok && current.Equal(v) {
		if done != nil {
			done()
		}
		return nil
	}

	hookRoot, hook, onRemoteThread := findHook(container)
	if hook != nil && !o.fromRemote && !(onRemoteThread != nil && onRemoteThread()) {
		addr := absoluteAddress(container, last)
		_ = hookRoot
		hook(ActionSet, addr, v, func() {
			applySet(container, last, v)
			if done != nil {
				done()
			}
		})
		return nil
	}

	applySet(container, last, v)
	if done != nil {
		done()
	}
	return nil
}

// Erase implements erase(path, done): symmetric to Set with Delete.
func (t *Tree) Erase(path string, done func(), opts ...SetOption) error {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	toks, err := parsePath(path)
	if err != nil {
		return err
	}
	container, last, err := resolveContainer(t.Root, toks)
	if err != nil {
		return err
	}
	if _, ok := currentValue(container, last); !ok {
		if done != nil {
			done()
		}
		return nil
	}

	hookRoot, hook, onRemoteThread := findHook(container)
	if hook != nil && !o.fromRemote && !(onRemoteThread != nil && onRemoteThread()) {
		addr := absoluteAddress(container, last)
		_ = hookRoot
		hook(ActionDelete, addr, Null(), func() {
			applyDelete(container, last)
			if done != nil {
				done()
			}
		})
		return nil
	}

	applyDelete(container, last)
	if done != nil {
		done()
	}
	return nil
}

func currentValue(container Collection, last token) (Value, bool) {
	switch c := container.(type) {
	case *Dict:
		return c.Get(last.key)
	case *List:
		return c.At(last.index)
	}
	return Value{}, false
}

func applySet(container Collection, last token, v Value) {
	switch c := container.(type) {
	case *Dict:
		c.applySet(last.key, v, false)
	case *List:
		c.applySet(last.index, v)
	}
}

func applyDelete(container Collection, last token) {
	switch c := container.(type) {
	case *Dict:
		c.applyDelete(last.key)
	case *List:
		c.applyDelete(last.index)
	}
}

// vivify creates intermediate dicts for any missing dict-valued segment,
// which lets configuration writers Set("a.b.c", ...) against an empty tree.
func vivify(root Collection, toks []token) (Collection, token, error) {
	cur := root
	for _, t := range toks[:len(toks)-1] {
		d, ok := cur.(*Dict)
		if !ok || t.isIndex {
			return nil, token{}, ErrTypeMismatch
		}
		v, ok := d.Get(t.key)
		if !ok {
			child := NewDict()
			d.applySet(t.key, FromDict(child), false)
			cur = child
			continue
		}
		if v.Kind() != KindDict {
			return nil, token{}, ErrTypeMismatch
		}
		cur = v.Dict()
	}
	return cur, toks[len(toks)-1], nil
}

// findHook walks up from container to the tree root looking for an
// installed remote-storage hook.
func findHook(c Collection) (Collection, RemoteHook, func() bool) {
	cur := c
	for {
		switch t := cur.(type) {
		case *Dict:
			if t.hook != nil {
				return t, t.hook, t.onRemoteThread
			}
		case *List:
			if t.hook != nil {
				return t, t.hook, t.onRemoteThread
			}
		}
		p, _, ok := cur.parent()
		if !ok {
			return nil, nil, nil
		}
		cur = p
	}
}

// Recap synchronously replays the root's current contents so a late
// observer can initialize.
func (t *Tree) Recap(observer func(ChangeEvent)) {
	t.Root.Recap(observer)
}
