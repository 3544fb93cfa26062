package observation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDuplicateID = errors.New("observation id already registered")
	ErrStopped     = errors.New("coordinator stopped")
)

type Config struct {
	SweepInterval  time.Duration
	PersistRetries int
	PersistBackoff time.Duration
	PersistTimeout time.Duration

	Now    func() time.Time
	Logger *log.Logger
}

const (
	DefaultSweepInterval  = 60 * time.Second
	DefaultPersistBackoff = 500 * time.Millisecond
	DefaultPersistTimeout = 10 * time.Second
)

const (
	execQueued int32 = iota
	execStarted
	execAbandoned
)

type execReq struct {
	fn    func()
	done  chan struct{}
	state atomic.Int32
}

// start claims req for the loop. It fails once the caller has given up on it.
func (r *execReq) start() bool { return r.state.CompareAndSwap(execQueued, execStarted) }

// abandon withdraws req unless the loop already started it.
func (r *execReq) abandon() bool { return r.state.CompareAndSwap(execQueued, execAbandoned) }

// Coordinator owns the registry and every marker. It is single-threaded: all methods
// except Run, Exec, Pump and Close must be called from the loop goroutine (inside Exec,
// or directly when the caller is the only goroutine driving it, as in tests).
type Coordinator struct {
	cfg Config
	log *log.Logger
	now func() time.Time

	reg      *Registry
	renderer *Renderer
	gw       Gateway
	audit    AuditLogger

	requests    chan *execReq
	completions chan func()
	stop        chan struct{}
	stopOnce    sync.Once

	worker *persistWorker
}

func New(cfg Config, gw Gateway, renderer *Renderer) *Coordinator {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.PersistRetries < 0 {
		cfg.PersistRetries = 0
	}
	if cfg.PersistBackoff <= 0 {
		cfg.PersistBackoff = DefaultPersistBackoff
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	c := &Coordinator{
		cfg:         cfg,
		log:         logger,
		now:         cfg.Now,
		reg:         NewRegistry(),
		renderer:    renderer,
		gw:          gw,
		requests:    make(chan *execReq, 64),
		completions: make(chan func(), 1024),
		stop:        make(chan struct{}),
	}
	c.worker = newPersistWorker(logger, cfg.PersistRetries, cfg.PersistBackoff, cfg.PersistTimeout, c.post)
	return c
}

// SetAuditLogger installs an optional lifecycle audit sink.
func (c *Coordinator) SetAuditLogger(a AuditLogger) { c.audit = a }

func (c *Coordinator) Now() time.Time { return c.now() }

// post hands fn to the loop. It returns false once the coordinator is closed.
func (c *Coordinator) post(fn func()) bool {
	select {
	case c.completions <- fn:
		return true
	case <-c.stop:
		return false
	}
}

func (c *Coordinator) Find(id int64) (*Observation, bool) { return c.reg.Find(id) }

func (c *Coordinator) List() []*Observation { return c.reg.List() }

func (c *Coordinator) Len() int { return c.reg.Len() }

// Near returns observations whose source location is in world and within radius of p.
func (c *Coordinator) Near(world string, p Vec3, radius float64) []*Observation {
	r2 := radius * radius
	var out []*Observation
	for _, o := range c.reg.List() {
		if o.source.World != world {
			continue
		}
		if o.source.Pos.DistSq(p) <= r2 {
			out = append(out, o)
		}
	}
	return out
}

// RequestCreate registers a new pending observation and asks the gateway for its id.
// The marker appears only after the id has been assigned.
func (c *Coordinator) RequestCreate(author string, source Location, text string, expiresAt *time.Time) *Observation {
	o := newObservation(PendingID, c.now(), author, source, text, expiresAt)
	o.key = uuid.NewString()
	c.reg.Add(o)
	createdTotal.WithLabelValues("create").Inc()
	activeObservations.Set(float64(c.reg.Len()))
	c.auditEvent(AuditCreate, o, "")

	rec := o.Record()
	var id int64
	c.worker.enqueue(persistJob{
		op: "store_new",
		run: func(ctx context.Context) error {
			v, err := c.gw.StoreNew(ctx, rec)
			id = v
			return err
		},
		done: func(err error) { c.resolveID(o, id, err) },
	})
	return o
}

func (c *Coordinator) resolveID(o *Observation, id int64, err error) {
	if err != nil {
		c.log.Printf("store observation by %s: %v (kept unpersisted)", o.author, err)
		return
	}
	if id == PendingID {
		c.log.Printf("store observation by %s: gateway returned the pending id", o.author)
		return
	}
	if other, ok := c.reg.Find(id); ok && other != o {
		c.log.Printf("store observation by %s: id %d already in use (kept unpersisted)", o.author, id)
		return
	}
	o.id = id
	c.auditEvent(AuditAssignID, o, "")

	if o.state == StateDestroyed {
		// Removed while the store call was in flight; keep it gone and catch the store up.
		if o.deactivateOnResolve {
			c.deactivateOne(o.id, o.onDeactivated)
			o.onDeactivated = nil
		}
		return
	}
	o.state = StateActive
	if o.expiryDirty {
		c.persistExpiry(o)
	}
	c.attachRender(o)
}

// RequestLoad restores an observation that already has a durable id and renders it.
func (c *Coordinator) RequestLoad(id int64, createdAt time.Time, author string, source Location, text string, expiresAt *time.Time) (*Observation, error) {
	if id == PendingID {
		return nil, fmt.Errorf("load observation: invalid id %d", id)
	}
	if _, ok := c.reg.Find(id); ok {
		return nil, fmt.Errorf("load observation %d: %w", id, ErrDuplicateID)
	}
	o := newObservation(id, createdAt, author, source, text, expiresAt)
	o.state = StateActive
	c.reg.Add(o)
	createdTotal.WithLabelValues("load").Inc()
	activeObservations.Set(float64(c.reg.Len()))
	c.auditEvent(AuditLoad, o, "")
	c.attachRender(o)
	return o, nil
}

// LoadRecord is RequestLoad for a stored record.
func (c *Coordinator) LoadRecord(rec Record) (*Observation, error) {
	o, err := c.RequestLoad(rec.ID, rec.CreatedAt, rec.Author, rec.Source, rec.Text, rec.ExpiresAt)
	if err != nil {
		return nil, err
	}
	o.key = rec.Key
	return o, nil
}

// Delete tears o down and removes it now; the gateway is told afterwards and
// onPersisted (optional) runs on the loop once it acknowledges.
// Deleting an already destroyed observation does nothing and returns false.
func (c *Coordinator) Delete(o *Observation, onPersisted func(error)) bool {
	if o == nil || o.state == StateDestroyed {
		return false
	}
	wasPending := o.state == StatePending
	c.teardown(o)
	removedTotal.WithLabelValues("delete").Inc()
	c.auditEvent(AuditDelete, o, "")
	if wasPending {
		o.deactivateOnResolve = true
		o.onDeactivated = onPersisted
		return true
	}
	c.deactivateOne(o.id, onPersisted)
	return true
}

// ReRender rebuilds the marker of an active observation from its current fields.
func (c *Coordinator) ReRender(o *Observation) bool {
	if o == nil || o.state != StateActive {
		return false
	}
	c.detachRender(o)
	c.attachRender(o)
	c.auditEvent(AuditRerender, o, "")
	return true
}

// SetExpiration changes when o expires (nil = never) and refreshes its marker.
func (c *Coordinator) SetExpiration(o *Observation, expiresAt *time.Time) bool {
	if o == nil || o.state == StateDestroyed {
		return false
	}
	o.expiresAt = copyTime(expiresAt)
	c.auditEvent(AuditSetExpiry, o, "")
	if o.state == StatePending {
		o.expiryDirty = true
		return true
	}
	c.persistExpiry(o)
	c.ReRender(o)
	return true
}

func (c *Coordinator) persistExpiry(o *Observation) {
	o.expiryDirty = false
	up, ok := c.gw.(ExpiryUpdater)
	if !ok {
		return
	}
	id := o.id
	exp := copyTime(o.expiresAt)
	c.worker.enqueue(persistJob{
		op:  "update_expiration",
		run: func(ctx context.Context) error { return up.UpdateExpiration(ctx, id, exp) },
		done: func(err error) {
			if err != nil {
				c.log.Printf("update expiration of %d: %v", id, err)
			}
		},
	})
}

func (c *Coordinator) deactivateOne(id int64, onPersisted func(error)) {
	c.worker.enqueue(persistJob{
		op:  "deactivate_one",
		run: func(ctx context.Context) error { return c.gw.DeactivateOne(ctx, id) },
		done: func(err error) {
			if err != nil {
				c.log.Printf("deactivate observation %d: %v", id, err)
			}
			if onPersisted != nil {
				onPersisted(err)
			}
		},
	})
}

// teardown destroys the marker before dropping o from the registry. Terminal.
func (c *Coordinator) teardown(o *Observation) {
	c.detachRender(o)
	o.state = StateDestroyed
	c.reg.Remove(o)
	activeObservations.Set(float64(c.reg.Len()))
}

func (c *Coordinator) attachRender(o *Observation) {
	if c.renderer == nil || o.marker != nil {
		return
	}
	m, err := c.renderer.Create(o)
	if err != nil {
		renderFailures.Inc()
		c.log.Printf("render observation %d: %v (left unrendered)", o.id, err)
		return
	}
	if m == nil {
		return
	}
	o.marker = m
	liveMarkers.Inc()
}

func (c *Coordinator) detachRender(o *Observation) {
	if o.marker == nil {
		return
	}
	if c.renderer != nil {
		c.renderer.Destroy(o.marker)
	} else {
		o.marker.Destroy()
	}
	o.marker = nil
	liveMarkers.Dec()
}
