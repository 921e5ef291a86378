package obstree

import "testing"

// TestSetGetRoundTrip checks that for any observable mutation set(p,v),
// get(p) == v immediately after the set callback fires (§8).
func TestSetGetRoundTrip(t *testing.T) {
	tree := New()
	fired := false
	if err := tree.Set("a.b.c", Int(5), func() { fired = true }); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if !fired {
		t.Errorf("done callback did not fire synchronously")
	}
	got, err := tree.Get("a.b.c")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Kind() != KindInt || got.Int() != 5 {
		t.Errorf("Get(a.b.c) = %v, want Int(5)", got)
	}
}

// TestSetIdempotent checks that setting an equal value fires done
// synchronously with no signal emission.
func TestSetIdempotent(t *testing.T) {
	tree := New()
	if err := tree.Set("x", Int(1), nil); err != nil {
		t.Fatal(err)
	}
	var changes int
	v, _ := tree.Get("x")
	_ = v
	tree.Root.Changed().Connect(func(ChangeEvent) { changes++ })
	if err := tree.Set("x", Int(1), nil); err != nil {
		t.Fatal(err)
	}
	if changes != 0 {
		t.Errorf("idempotent Set fired %d change signals, want 0", changes)
	}
}

// TestRecursiveChangedBubbles checks that every ancestor's recursive_changed
// observer fires exactly once with originating collection identity equal to
// the innermost owner of the mutated path.
func TestRecursiveChangedBubbles(t *testing.T) {
	tree := New()
	if err := tree.Set("a.b", FromDict(NewDict()), nil); err != nil {
		t.Fatal(err)
	}
	var fires int
	var origin Collection
	tree.Root.RecursiveChanged().Connect(func(ev RecursiveChangeEvent) {
		fires++
		origin = ev.Origin
	})

	if err := tree.Set("a.b.c", Int(9), nil); err != nil {
		t.Fatal(err)
	}
	if fires != 1 {
		t.Errorf("root recursive_changed fired %d times, want 1", fires)
	}
	abv, err := tree.Get("a.b")
	if err != nil {
		t.Fatal(err)
	}
	if !sameCollection(origin, abv.Dict()) {
		t.Errorf("recursive_changed origin was not the innermost owner 'a.b'")
	}
}

// TestAddressRoundTrip checks the address invariant: a parent's child is
// reachable at the address the parent reports.
func TestAddressRoundTrip(t *testing.T) {
	tree := New()
	if err := tree.Set("a.b", FromDict(NewDict()), nil); err != nil {
		t.Fatal(err)
	}
	v, err := tree.Get("a.b")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := v.Dict().Address(), "['a']['b']"; got != want {
		t.Errorf("Address() = %q, want %q", got, want)
	}
}

// TestMirrorAckFlow exercises scenario 4 from §8: set /a/b/c = 5 should
// produce exactly one outbound change with a fresh id, and the local done
// callback fires only once the peer acks that id.
func TestMirrorAckFlow(t *testing.T) {
	tree := New()
	var sent []OutboundChange
	m := NewMirror(tree, func(oc OutboundChange) { sent = append(sent, oc) })

	var done int
	if err := tree.Set("a.b.c", Int(5), func() { done++ }); err != nil {
		t.Fatal(err)
	}
	if len(sent) != 1 {
		t.Fatalf("expected exactly one outbound change, got %d", len(sent))
	}
	if done != 0 {
		t.Errorf("done fired before ack, want deferred")
	}

	if err := m.ApplyInbound(Ack(sent[0].ID)); err != nil {
		t.Fatal(err)
	}
	if done != 1 {
		t.Errorf("done fired %d times after ack, want exactly 1", done)
	}
	got, err := tree.Get("a.b.c")
	if err != nil || got.Int() != 5 {
		t.Errorf("tree value after ack = %v, err=%v; want Int(5)", got, err)
	}
}

// TestMirrorInboundFromRemote checks that inbound peer changes apply
// without re-entering the hook (no further outbound echo).
func TestMirrorInboundFromRemote(t *testing.T) {
	tree := New()
	var sent []OutboundChange
	NewMirror(tree, func(oc OutboundChange) { sent = append(sent, oc) })

	in := InboundChange{Action: ActionSet, Address: "['y']", Value: float64(3)}
	// simulate the transport applying the inbound mutation directly
	if err := tree.Set("y", FromJSON(in.Value), nil, FromRemote()); err != nil {
		t.Fatal(err)
	}
	if len(sent) != 0 {
		t.Errorf("inbound FromRemote mutation echoed %d outbound changes, want 0", len(sent))
	}
}
