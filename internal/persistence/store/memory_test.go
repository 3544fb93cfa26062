package store

import (
	"context"
	"testing"
	"time"
)

func TestMemory_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	a, _ := m.StoreNew(ctx, testRecord("Ada", "a", nil))
	b, _ := m.StoreNew(ctx, testRecord("Bo", "b", nil))
	c, _ := m.StoreNew(ctx, testRecord("Cy", "c", nil))
	if a != 1 || b != 2 || c != 3 {
		t.Fatalf("ids=%d,%d,%d", a, b, c)
	}

	if err := m.DeactivateOne(ctx, a); err != nil {
		t.Fatalf("DeactivateOne: %v", err)
	}
	n, _ := m.DeactivateMany(ctx, []int64{a, b, 42})
	if n != 1 {
		t.Fatalf("affected=%d want 1", n)
	}

	exp := time.Unix(1700000000, 0).UTC()
	_ = m.UpdateExpiration(ctx, c, &exp)
	recs, _ := m.LoadActive(ctx)
	if len(recs) != 1 || recs[0].ID != c {
		t.Fatalf("active=%+v", recs)
	}
	if recs[0].ExpiresAt == nil || !recs[0].ExpiresAt.Equal(exp) {
		t.Fatalf("expiry not stored: %+v", recs[0].ExpiresAt)
	}
}

func TestMemory_StoreNewHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMemory().StoreNew(ctx, testRecord("Ada", "a", nil)); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestMemory_StoreNewSameKeyOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	rec := testRecord("Ada", "a", nil)
	rec.Key = "k"
	a, _ := m.StoreNew(ctx, rec)
	b, _ := m.StoreNew(ctx, rec)
	if a != b {
		t.Fatalf("ids=%d,%d", a, b)
	}
	if recs, _ := m.LoadActive(ctx); len(recs) != 1 {
		t.Fatalf("records=%d want 1", len(recs))
	}
}
