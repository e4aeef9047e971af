package timeshift

import "sync"

// DedupWindow is a bounded, insertion-ordered set of segment identifiers the
// harvester has already ingested. Once the window holds cap entries, adding
// another evicts the oldest. Safe for concurrent use: a restart may restore
// a checkpoint while a tick that predates it is still finishing.
type DedupWindow struct {
	mu    sync.Mutex
	cap   int
	order []string
	seen  map[string]struct{}
}

// NewDedupWindow returns an empty window holding at most cap identifiers.
func NewDedupWindow(cap int) *DedupWindow {
	return &DedupWindow{
		cap:  cap,
		seen: make(map[string]struct{}, cap),
	}
}

// Contains reports whether id has been ingested within the window's lifetime.
func (w *DedupWindow) Contains(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.seen[id]
	return ok
}

// Add inserts id, evicting the oldest identifier if the window is full.
// Adding an identifier already present is a no-op.
func (w *DedupWindow) Add(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.add(id)
}

func (w *DedupWindow) add(id string) {
	if _, ok := w.seen[id]; ok {
		return
	}
	w.order = append(w.order, id)
	w.seen[id] = struct{}{}
	if len(w.order) > w.cap {
		oldest := w.order[0]
		w.order = w.order[1:]
		delete(w.seen, oldest)
	}
}

// Len returns the number of identifiers currently held.
func (w *DedupWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.order)
}

// Snapshot returns the identifiers oldest-first, for checkpoint persistence.
func (w *DedupWindow) Snapshot() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.order))
	copy(out, w.order)
	return out
}

// Restore replaces the window contents with ids, oldest-first. Excess
// entries beyond the cap are evicted oldest-first, same as Add.
func (w *DedupWindow) Restore(ids []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.order = w.order[:0]
	w.seen = make(map[string]struct{}, w.cap)
	for _, id := range ids {
		w.add(id)
	}
}
