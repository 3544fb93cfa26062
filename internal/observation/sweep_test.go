package observation

import (
	"testing"
	"time"
)

func TestSweep_NoExpiredNoGatewayCall(t *testing.T) {
	gw := newFakeGateway(1)
	clock := newFakeClock()
	c := newTestCoordinator(t, gw, &fakeHost{}, clock)

	future := clock.Now().Add(time.Hour)
	c.RequestLoad(1, clock.Now(), "a", srcAt(0, 0, 0, Vec3{}), "x", nil)
	c.RequestLoad(2, clock.Now(), "a", srcAt(0, 0, 0, Vec3{}), "x", &future)

	if n := c.Sweep(); n != 0 {
		t.Fatalf("removed=%d", n)
	}
	if c.worker.pending() != 0 {
		t.Fatalf("no gateway work expected")
	}
	if _, _, batches := gw.counts(); batches != 0 {
		t.Fatalf("batches=%d", batches)
	}
	if c.Len() != 2 {
		t.Fatalf("len=%d", c.Len())
	}
}

func TestSweep_ExpiredRemovedWithOneBatch(t *testing.T) {
	gw := newFakeGateway(1)
	host := &fakeHost{}
	clock := newFakeClock()
	c := newTestCoordinator(t, gw, host, clock)

	past := clock.Now().Add(-time.Minute)
	now := clock.Now()
	future := clock.Now().Add(time.Minute)
	c.RequestLoad(1, clock.Now(), "a", srcAt(0, 0, 0, Vec3{}), "x", &past)
	c.RequestLoad(2, clock.Now(), "a", srcAt(0, 0, 0, Vec3{}), "x", &now)
	keep, _ := c.RequestLoad(3, clock.Now(), "a", srcAt(0, 0, 0, Vec3{}), "x", &future)
	c.RequestLoad(4, clock.Now(), "a", srcAt(0, 0, 0, Vec3{}), "x", &past)

	if n := c.Sweep(); n != 3 {
		t.Fatalf("removed=%d want=3", n)
	}
	list := c.List()
	if len(list) != 1 || list[0] != keep {
		t.Fatalf("expected only the unexpired observation to remain")
	}
	if host.live() != 1 {
		t.Fatalf("live markers=%d", host.live())
	}

	pump(t, c)
	_, single, batches := gw.counts()
	if batches != 1 || single != 0 {
		t.Fatalf("batches=%d single=%d", batches, single)
	}
	if b := gw.batches[0]; len(b) != 3 || b[0] != 1 || b[1] != 2 || b[2] != 4 {
		t.Fatalf("batch=%v", b)
	}

	// Expiry passes for the last one on a later tick.
	clock.Advance(2 * time.Minute)
	if n := c.Sweep(); n != 1 || c.Len() != 0 {
		t.Fatalf("removed=%d len=%d", n, c.Len())
	}
}

func TestSweep_AuditsGatewayAffectedCount(t *testing.T) {
	gw := newFakeGateway(1)
	gw.manyAffected = 2
	audit := &fakeAudit{}
	clock := newFakeClock()
	c := newTestCoordinator(t, gw, &fakeHost{}, clock)
	c.SetAuditLogger(audit)

	past := clock.Now().Add(-time.Minute)
	for id := int64(1); id <= 3; id++ {
		c.RequestLoad(id, clock.Now(), "a", srcAt(0, 0, 0, Vec3{}), "x", &past)
	}
	if n := c.Sweep(); n != 3 {
		t.Fatalf("removed=%d", n)
	}
	if _, ok := audit.find(AuditSweep); ok {
		t.Fatalf("sweep audited before the gateway answered")
	}

	pump(t, c)
	e, ok := audit.find(AuditSweep)
	if !ok {
		t.Fatalf("no %s entry in %+v", AuditSweep, audit.entries)
	}
	if e.Count != 2 || e.Reason != "3 expired" {
		t.Fatalf("sweep entry=%+v want count 2 of 3", e)
	}
}

func TestSweep_PendingExpiredDeactivatesAfterResolve(t *testing.T) {
	gw := newFakeGateway(50)
	gw.gate = make(chan struct{})
	host := &fakeHost{}
	clock := newFakeClock()
	c := newTestCoordinator(t, gw, host, clock)

	exp := clock.Now().Add(time.Second)
	o := c.RequestCreate("a", srcAt(0, 0, 0, Vec3{}), "x", &exp)
	clock.Advance(time.Minute)

	if n := c.Sweep(); n != 1 || c.Len() != 0 {
		t.Fatalf("removed=%d len=%d", n, c.Len())
	}
	close(gw.gate)
	pump(t, c)
	pump(t, c)

	if o.ID() != 50 || len(host.markers) != 0 {
		t.Fatalf("id=%d markers=%d", o.ID(), len(host.markers))
	}
	_, single, batches := gw.counts()
	if single != 1 || batches != 0 || gw.deactivated[0] != 50 {
		t.Fatalf("single=%d batches=%d", single, batches)
	}
}
