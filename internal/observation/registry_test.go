package observation

import (
	"testing"
	"time"
)

func TestRegistry_AddRemoveFind(t *testing.T) {
	r := NewRegistry()
	a := newObservation(1, time.Now(), "a", srcAt(0, 0, 0, Vec3{}), "x", nil)
	b := newObservation(PendingID, time.Now(), "b", srcAt(0, 0, 0, Vec3{}), "y", nil)

	if !r.Add(a) || !r.Add(b) {
		t.Fatalf("expected adds to succeed")
	}
	if r.Add(a) {
		t.Fatalf("double add must be refused")
	}
	if r.Len() != 2 {
		t.Fatalf("len=%d", r.Len())
	}
	if got, ok := r.Find(1); !ok || got != a {
		t.Fatalf("find 1 failed")
	}
	if _, ok := r.Find(PendingID); ok {
		t.Fatalf("pending id must not be findable")
	}
	if _, ok := r.Find(99); ok {
		t.Fatalf("expected not found")
	}

	if !r.Remove(a) {
		t.Fatalf("remove a failed")
	}
	if r.Remove(a) {
		t.Fatalf("second remove must be a no-op")
	}
	if r.Len() != 1 {
		t.Fatalf("len=%d", r.Len())
	}
}

func TestRegistry_ListIsSnapshot(t *testing.T) {
	r := NewRegistry()
	for i := int64(1); i <= 3; i++ {
		r.Add(newObservation(i, time.Now(), "a", srcAt(0, 0, 0, Vec3{}), "x", nil))
	}
	snap := r.List()
	for _, o := range snap {
		r.Remove(o)
	}
	if len(snap) != 3 || r.Len() != 0 {
		t.Fatalf("snapshot len=%d registry len=%d", len(snap), r.Len())
	}
	if snap[0].ID() != 1 || snap[2].ID() != 3 {
		t.Fatalf("expected insertion order, got %d..%d", snap[0].ID(), snap[2].ID())
	}
}
