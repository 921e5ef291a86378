package capture

import (
	"context"
	"time"
)

// Injector is the per-node callback a replay driver supplies for one
// recorded node name; it is called synchronously, in wire-time order, once
// per slab belonging to that node.
type Injector func(slab Slab)

// Replay walks r's slabs in merged time order, stepping a virtual clock
// that starts at the first slab's TimeNs, and sleeping in wall-clock time
// between distinct event times before invoking the matching node's
// Injector — the virtual-clock stepping described in §4.4 "Replay".
// Nodes not present in injectors are skipped. Replay returns when every
// slab has been delivered or ctx is cancelled.
//
// Whether a "fast" (non-realtime) mode should skip the sleeps is an open
// question per §9; this implementation always sleeps in wall-clock time,
// the conservative reading, and callers wanting fast-forward replay can
// pass a ctx that is already cancelled after consuming the slabs they
// want, which Replay honors by returning early.
func Replay(ctx context.Context, r *Reader, injectors map[string]Injector) error {
	slabs := r.Slabs()
	if len(slabs) == 0 {
		return nil
	}
	var last int64
	first := true
	for _, s := range slabs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !first {
			if wait := time.Duration(s.TimeNs-last) * time.Nanosecond; wait > 0 {
				t := time.NewTimer(wait)
				select {
				case <-t.C:
				case <-ctx.Done():
					t.Stop()
					return ctx.Err()
				}
			}
		}
		first = false
		last = s.TimeNs
		if inj, ok := injectors[s.Node]; ok {
			inj(s)
		}
	}
	return nil
}
