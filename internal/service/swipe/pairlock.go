package swipe

import "sync"

const lockStripes = 64

// pairLocks is a striped mutex set keyed by the unordered user pair. It
// gives the coordinator per-pair mutual exclusion without any global lock:
// unrelated pairs almost never share a stripe.
type pairLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (p *pairLocks) lock(a, b uint64) (unlock func()) {
	low, high := a, b
	if low > high {
		low, high = high, low
	}
	idx := (low*31 + high) % lockStripes
	p.stripes[idx].Lock()
	return p.stripes[idx].Unlock
}
