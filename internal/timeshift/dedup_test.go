package timeshift

import (
	"fmt"
	"testing"
)

func TestDedupWindow_AddContains(t *testing.T) {
	w := NewDedupWindow(3)

	if w.Contains("a") {
		t.Error("empty window should not contain a")
	}
	w.Add("a")
	if !w.Contains("a") {
		t.Error("window should contain a after Add")
	}
	if w.Len() != 1 {
		t.Errorf("Len: got %d, want 1", w.Len())
	}
}

func TestDedupWindow_duplicate_add_noop(t *testing.T) {
	w := NewDedupWindow(3)
	w.Add("a")
	w.Add("a")
	if w.Len() != 1 {
		t.Errorf("duplicate Add should not grow window, got len %d", w.Len())
	}
}

func TestDedupWindow_evicts_oldest(t *testing.T) {
	w := NewDedupWindow(3)
	w.Add("a")
	w.Add("b")
	w.Add("c")
	w.Add("d")

	if w.Len() != 3 {
		t.Fatalf("Len: got %d, want 3", w.Len())
	}
	if w.Contains("a") {
		t.Error("oldest entry a should be evicted")
	}
	for _, id := range []string{"b", "c", "d"} {
		if !w.Contains(id) {
			t.Errorf("window should still contain %s", id)
		}
	}
}

func TestDedupWindow_bounded_under_arbitrary_inserts(t *testing.T) {
	w := NewDedupWindow(500)
	for i := 0; i < 2000; i++ {
		w.Add(fmt.Sprintf("seg-%d.aac", i))
	}
	if w.Len() != 500 {
		t.Errorf("Len: got %d, want 500", w.Len())
	}
	if w.Contains("seg-0.aac") {
		t.Error("earliest entries should have been evicted")
	}
	if !w.Contains("seg-1999.aac") {
		t.Error("latest entry should be present")
	}
}

func TestDedupWindow_SnapshotRestore(t *testing.T) {
	w := NewDedupWindow(5)
	w.Add("a")
	w.Add("b")
	w.Add("c")

	snap := w.Snapshot()
	if len(snap) != 3 || snap[0] != "a" || snap[2] != "c" {
		t.Fatalf("Snapshot: got %v", snap)
	}

	w2 := NewDedupWindow(5)
	w2.Restore(snap)
	if w2.Len() != 3 || !w2.Contains("b") {
		t.Errorf("Restore: len=%d contains(b)=%v", w2.Len(), w2.Contains("b"))
	}

	// Restoring more ids than the cap keeps only the newest.
	w3 := NewDedupWindow(2)
	w3.Restore([]string{"a", "b", "c"})
	if w3.Len() != 2 || w3.Contains("a") || !w3.Contains("c") {
		t.Errorf("Restore over cap: len=%d contains(a)=%v", w3.Len(), w3.Contains("a"))
	}
}
