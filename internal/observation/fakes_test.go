package observation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeMarker struct {
	id        int
	loc       Location
	lines     []Line
	onTouch   TouchFunc
	destroyed int
}

func (m *fakeMarker) Destroy() { m.destroyed++ }

type fakeHost struct {
	markers []*fakeMarker
	fail    error
}

func (h *fakeHost) CreateMarker(loc Location, lines []Line, onTouch TouchFunc) (Marker, error) {
	if h.fail != nil {
		return nil, h.fail
	}
	m := &fakeMarker{id: len(h.markers) + 1, loc: loc, lines: lines, onTouch: onTouch}
	h.markers = append(h.markers, m)
	return m, nil
}

func (h *fakeHost) live() int {
	n := 0
	for _, m := range h.markers {
		if m.destroyed == 0 {
			n++
		}
	}
	return n
}

type fakeGateway struct {
	mu sync.Mutex

	nextID   int64
	storeErr []error // consumed per StoreNew call
	gate     chan struct{}

	stored      []Record
	deactivated []int64
	batches     [][]int64
	expiries    map[int64]*time.Time

	// manyAffected overrides the count DeactivateMany reports when non-zero.
	manyAffected int64
}

func newFakeGateway(firstID int64) *fakeGateway {
	return &fakeGateway{nextID: firstID, expiries: map[int64]*time.Time{}}
}

func (g *fakeGateway) StoreNew(ctx context.Context, rec Record) (int64, error) {
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.storeErr) > 0 {
		err := g.storeErr[0]
		g.storeErr = g.storeErr[1:]
		if err != nil {
			return 0, err
		}
	}
	id := g.nextID
	g.nextID++
	g.stored = append(g.stored, rec)
	return id, nil
}

func (g *fakeGateway) DeactivateOne(ctx context.Context, id int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deactivated = append(g.deactivated, id)
	return nil
}

func (g *fakeGateway) DeactivateMany(ctx context.Context, ids []int64) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := append([]int64(nil), ids...)
	g.batches = append(g.batches, cp)
	if g.manyAffected != 0 {
		return g.manyAffected, nil
	}
	return int64(len(ids)), nil
}

func (g *fakeGateway) UpdateExpiration(ctx context.Context, id int64, expiresAt *time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expiries[id] = expiresAt
	return nil
}

func (g *fakeGateway) counts() (stored, deactivated, batches int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.stored), len(g.deactivated), len(g.batches)
}

// lostReplyGateway commits the first StoreNew and then reports a timeout, as when the
// response of a committed insert is lost. Records are keyed like the SQL store.
type lostReplyGateway struct {
	fakeGateway

	calls []string
	byKey map[string]int64
}

func newLostReplyGateway(firstID int64) *lostReplyGateway {
	g := &lostReplyGateway{byKey: map[string]int64{}}
	g.nextID = firstID
	g.expiries = map[int64]*time.Time{}
	return g
}

func (g *lostReplyGateway) StoreNew(ctx context.Context, rec Record) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, rec.Key)
	if id, ok := g.byKey[rec.Key]; ok && rec.Key != "" {
		return id, nil
	}
	id := g.nextID
	g.nextID++
	g.stored = append(g.stored, rec)
	g.byKey[rec.Key] = id
	if len(g.calls) == 1 {
		return 0, context.DeadlineExceeded
	}
	return id, nil
}

type fakeAudit struct{ entries []AuditEntry }

func (a *fakeAudit) WriteAudit(e AuditEntry) error {
	a.entries = append(a.entries, e)
	return nil
}

func (a *fakeAudit) find(event string) (AuditEntry, bool) {
	for _, e := range a.entries {
		if e.Event == event {
			return e, true
		}
	}
	return AuditEntry{}, false
}

type fakeActor struct {
	id   string
	sent []Location
}

func (a *fakeActor) ID() string            { return a.id }
func (a *fakeActor) Teleport(loc Location) { a.sent = append(a.sent, loc) }

type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

var errBoom = errors.New("boom")

func newTestCoordinator(t *testing.T, gw Gateway, host MarkerHost, clock *fakeClock) *Coordinator {
	t.Helper()
	c := New(Config{
		SweepInterval:  time.Hour,
		PersistRetries: 2,
		PersistBackoff: time.Millisecond,
		PersistTimeout: time.Second,
		Now:            clock.Now,
	}, gw, NewRenderer(host, RendererConfig{TimeZone: time.UTC}))
	t.Cleanup(c.Close)
	return c
}

func pump(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Pump(ctx); err != nil {
		t.Fatalf("pump: %v", err)
	}
}

func ptr(t time.Time) *time.Time { return &t }

var world = "W"

func srcAt(x, y, z float64, facing Vec3) Location {
	return Location{World: world, Pos: Vec3{X: x, Y: y, Z: z}, Facing: facing}
}
