package command

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"fieldnotes.ai/internal/markup"
	"fieldnotes.ai/internal/observation"
	"fieldnotes.ai/internal/persistence/store"
)

type nopMarker struct{}

func (nopMarker) Destroy() {}

type nopHost struct{}

func (nopHost) CreateMarker(loc observation.Location, lines []observation.Line, onTouch observation.TouchFunc) (observation.Marker, error) {
	return nopMarker{}, nil
}

type testSender struct {
	id, name string
	player   bool
	perms    map[string]bool
	loc      observation.Location

	mu         sync.Mutex
	teleported []observation.Location
}

func (s *testSender) ID() string                     { return s.id }
func (s *testSender) Name() string                   { return s.name }
func (s *testSender) IsPlayer() bool                 { return s.player }
func (s *testSender) HasPermission(node string) bool { return s.perms[node] }
func (s *testSender) Location() observation.Location { return s.loc }
func (s *testSender) Teleport(loc observation.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teleported = append(s.teleported, loc)
}

func player(name string, perms ...string) *testSender {
	s := &testSender{
		id:     "id-" + name,
		name:   name,
		player: true,
		perms:  map[string]bool{},
		loc: observation.Location{
			World:  "W",
			Pos:    observation.Vec3{X: 0, Y: 64, Z: 0},
			Facing: observation.Vec3{X: 1},
		},
	}
	for _, p := range perms {
		s.perms[p] = true
	}
	return s
}

func admin(name string) *testSender {
	return player(name, "observations.observe.*", "observations.observations.*")
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestDispatcher(t *testing.T, lim *Limiter) (*Dispatcher, *observation.Coordinator) {
	t.Helper()
	coord := observation.New(observation.Config{
		Now:            func() time.Time { return testNow },
		PersistBackoff: time.Millisecond,
	}, store.NewMemory(), observation.NewRenderer(nopHost{}, observation.RendererConfig{TimeZone: time.UTC}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = coord.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		coord.Close()
	})
	d := NewDispatcher(coord, Config{TimeZone: time.UTC, Limiter: lim})
	return d, coord
}

func dispatch(t *testing.T, d *Dispatcher, s Sender, line string) []string {
	t.Helper()
	out, err := d.Dispatch(context.Background(), s, line)
	if err != nil {
		t.Fatalf("%q: %v", line, err)
	}
	return out
}

func plain(lines []string) string {
	return markup.Strip(strings.Join(lines, "\n"))
}

// waitAssigned blocks until every observation has a durable id.
func waitAssigned(t *testing.T, coord *observation.Coordinator) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		pending := false
		_ = coord.Exec(context.Background(), func() {
			for _, o := range coord.List() {
				if o.ID() == observation.PendingID {
					pending = true
				}
			}
		})
		if !pending {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("observations still pending")
}

func TestParseArgs(t *testing.T) {
	got := ParseArgs(`12  "two words" three`)
	want := []string{"12", "two words", "three"}
	if len(got) != len(want) {
		t.Fatalf("got=%q want=%q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got=%q want=%q", got, want)
		}
	}
	if len(ParseArgs("   ")) != 0 {
		t.Fatalf("expected no args for blank input")
	}
}

func TestDispatch_ObserveListInfoDelete(t *testing.T) {
	d, coord := newTestDispatcher(t, nil)
	ada := admin("Ada")

	out := dispatch(t, d, ada, "/observe saw a &cred fox by the river")
	if !strings.Contains(plain(out), "Observation created") {
		t.Fatalf("observe reply=%q", plain(out))
	}
	waitAssigned(t, coord)

	list := plain(dispatch(t, d, ada, "observations list"))
	if !strings.Contains(list, `1. "saw a red fox by the . . ."`) {
		t.Fatalf("list=%q", list)
	}
	if !strings.Contains(list, "> Ada (W, 2, 67, 0)") {
		t.Fatalf("list missing author/location: %q", list)
	}

	info := plain(dispatch(t, d, ada, "observations info 1"))
	for _, want := range []string{"Observation #1", "Author: Ada", "Expires: never", "Location: W, 0, 64, 0", "Rendered: true"} {
		if !strings.Contains(info, want) {
			t.Fatalf("info missing %q: %q", want, info)
		}
	}

	out = dispatch(t, d, ada, "observations delete 1")
	if !strings.Contains(plain(out), "Observation 1 has been deleted") {
		t.Fatalf("delete reply=%q", plain(out))
	}
	_, err := d.Dispatch(context.Background(), ada, "observations list")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("list after delete err=%v want ErrNotFound", err)
	}
	_, err = d.Dispatch(context.Background(), ada, "observations delete 1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err=%v want ErrNotFound", err)
	}
}

func TestDispatch_ListByAuthor(t *testing.T) {
	d, coord := newTestDispatcher(t, nil)
	dispatch(t, d, admin("Ada"), "observe fox")
	dispatch(t, d, admin("Bo"), "observe owl")
	waitAssigned(t, coord)

	list := plain(dispatch(t, d, admin("Cy"), "observations list bo"))
	if !strings.Contains(list, "owl") || strings.Contains(list, "fox") {
		t.Fatalf("list bo=%q", list)
	}
	_, err := d.Dispatch(context.Background(), admin("Cy"), "observations list Cy")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestDispatch_ObserveWithExpiryAndSetExpiration(t *testing.T) {
	d, coord := newTestDispatcher(t, nil)
	ada := admin("Ada")

	out := dispatch(t, d, ada, "observe -e 1d2h temporary note")
	if !strings.Contains(plain(out), "expires 05/02/2024 02:00 PM") {
		t.Fatalf("observe reply=%q", plain(out))
	}
	waitAssigned(t, coord)

	var exp time.Time
	var has bool
	_ = coord.Exec(context.Background(), func() {
		o, _ := coord.Find(1)
		exp, has = o.ExpiresAt()
	})
	if !has || !exp.Equal(testNow.Add(26*time.Hour)) {
		t.Fatalf("expiry=%v,%v", exp, has)
	}

	dispatch(t, d, ada, "observations setexpiration 1 never")
	_ = coord.Exec(context.Background(), func() {
		o, _ := coord.Find(1)
		_, has = o.ExpiresAt()
	})
	if has {
		t.Fatalf("expected expiry cleared")
	}

	_, err := d.Dispatch(context.Background(), ada, "observations setexpiration 1 soon")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err=%v want ErrInvalidArgument", err)
	}
}

func TestDispatch_NearAndTeleport(t *testing.T) {
	d, coord := newTestDispatcher(t, nil)
	ada := admin("Ada")
	dispatch(t, d, ada, "observe here")
	far := admin("Bo")
	far.loc.Pos = observation.Vec3{X: 100, Y: 64, Z: 0}
	dispatch(t, d, far, "observe there")
	waitAssigned(t, coord)

	near := plain(dispatch(t, d, ada, "observations near 10"))
	if !strings.Contains(near, "here") || strings.Contains(near, "there") {
		t.Fatalf("near=%q", near)
	}
	if !strings.Contains(near, "Radius: 10 blocks") {
		t.Fatalf("near header=%q", near)
	}
	_, err := d.Dispatch(context.Background(), ada, "observations near 1x")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err=%v want ErrInvalidArgument", err)
	}

	dispatch(t, d, ada, "observations teleport 2")
	if len(ada.teleported) != 1 || ada.teleported[0].Pos.X != 100 {
		t.Fatalf("teleported=%+v", ada.teleported)
	}
}

func TestDispatch_Permissions(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)

	_, err := d.Dispatch(context.Background(), player("Eve"), "observations list")
	if !errors.Is(err, ErrNoPermission) {
		t.Fatalf("err=%v want ErrNoPermission", err)
	}
	var ce *Error
	if !errors.As(err, &ce) || !strings.Contains(markup.Strip(strings.Join(ce.Lines, " ")), "observations.observations.list") {
		t.Fatalf("permission error lines=%v", err)
	}

	// Exact node is enough.
	_, err = d.Dispatch(context.Background(), player("Eve", "observations.observations.list"), "observations list")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestDispatch_PlayerOnlyAndArguments(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	console := admin("console")
	console.player = false

	if _, err := d.Dispatch(context.Background(), console, "observations near 5"); !errors.Is(err, ErrNotPlayer) {
		t.Fatalf("err=%v want ErrNotPlayer", err)
	}
	_, err := d.Dispatch(context.Background(), admin("Ada"), "observations setexpiration 4")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err=%v want ErrInvalidArgument", err)
	}
	if !strings.Contains(err.Error(), "Missing argument(s): <duration | never>") {
		t.Fatalf("missing args message=%q", err.Error())
	}
	if _, err := d.Dispatch(context.Background(), admin("Ada"), "observations info 1 2"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err=%v want ErrInvalidArgument", err)
	}
	if _, err := d.Dispatch(context.Background(), admin("Ada"), "observe"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err=%v want ErrInvalidArgument", err)
	}
	if _, err := d.Dispatch(context.Background(), admin("Ada"), "observations bogus"); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("err=%v want ErrUnknownCommand", err)
	}
	if _, err := d.Dispatch(context.Background(), admin("Ada"), "teleport 1"); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("err=%v want ErrUnknownCommand", err)
	}
}

func TestDispatch_Help(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	help := plain(dispatch(t, d, admin("Ada"), "observations"))
	for _, sub := range []string{"delete", "info", "list", "near", "rerender", "setexpiration", "teleport"} {
		if !strings.Contains(help, "/observations "+sub) {
			t.Fatalf("help missing %s: %q", sub, help)
		}
	}
}

func TestDispatch_RateLimited(t *testing.T) {
	d, _ := newTestDispatcher(t, NewLimiter(time.Minute, 1))
	ada := admin("Ada")
	dispatch(t, d, ada, "observe one")
	if _, err := d.Dispatch(context.Background(), ada, "observe two"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err=%v want ErrRateLimited", err)
	}
	// Other authors have their own bucket.
	dispatch(t, d, admin("Bo"), "observe three")
}
