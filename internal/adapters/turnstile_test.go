package adapters

import (
	"sync"
	"testing"
	"time"
)

// TestTurnstileFIFOOrder launches n waiters one at a time, each on its own
// goroutine with a 1ms head start so tickets are drawn 0..n-1 in launch
// order, then releases the turns one by one in ticket order and confirms no
// later waiter unblocks before the current one has released.
func TestTurnstileFIFOOrder(t *testing.T) {
	ts := NewTurnstile()
	const n = 8

	unblocked := make([]chan struct{}, n)
	allowDone := make([]chan struct{}, n)
	for i := range unblocked {
		unblocked[i] = make(chan struct{})
		allowDone[i] = make(chan struct{})
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			turn := ts.Wait()
			close(unblocked[i])
			<-allowDone[i]
			turn.Done()
		}()
		// Give goroutine i a head start drawing its ticket before the next
		// one is launched, so tickets are handed out 0..n-1 in this order.
		time.Sleep(time.Millisecond)
	}

	for i := 0; i < n; i++ {
		select {
		case <-unblocked[i]:
		case <-time.After(time.Second):
			t.Fatalf("waiter %d never unblocked", i)
		}
		// No later waiter can have unblocked yet: it is still holding the
		// turnstile's lock-protected ticket behind this one, which hasn't
		// released (allowDone[i] hasn't been signaled).
		for j := i + 1; j < n; j++ {
			select {
			case <-unblocked[j]:
				t.Fatalf("waiter %d unblocked before waiter %d", j, i)
			default:
			}
		}
		close(allowDone[i])
	}
	wg.Wait()
}

// TestTurnDoneIdempotent confirms a second Done call is a harmless no-op
// that does not double-advance the turnstile.
func TestTurnDoneIdempotent(t *testing.T) {
	ts := NewTurnstile()
	first := ts.Wait()
	first.Done()
	first.Done()

	second := ts.Wait()
	done := make(chan struct{})
	go func() {
		second.Done()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second waiter deadlocked")
	}
}
