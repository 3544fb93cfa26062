package observation

import (
	"time"
)

// PendingID marks an observation whose durable id has not been assigned yet.
const PendingID int64 = -1

type State int

const (
	StatePending State = iota
	StateActive
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Observation is an author-attached note bound to a world location.
// Apart from the marker and expiry, fields never change after construction.
// All access happens on the coordinator loop goroutine.
type Observation struct {
	id        int64
	key       string
	createdAt time.Time
	author    string
	source    Location
	display   Location
	text      string
	expiresAt *time.Time

	state  State
	marker Marker

	// Destroyed while pending: deactivate once the id arrives.
	deactivateOnResolve bool
	onDeactivated       func(error)
	expiryDirty         bool
}

func newObservation(id int64, createdAt time.Time, author string, source Location, text string, expiresAt *time.Time) *Observation {
	o := &Observation{
		id:        id,
		createdAt: createdAt,
		author:    author,
		source:    source,
		display:   displayFor(source),
		text:      text,
		expiresAt: copyTime(expiresAt),
		state:     StatePending,
	}
	return o
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func (o *Observation) ID() int64            { return o.id }
func (o *Observation) CreatedAt() time.Time { return o.createdAt }
func (o *Observation) Author() string       { return o.author }
func (o *Observation) Source() Location     { return o.source }
func (o *Observation) Display() Location    { return o.display }
func (o *Observation) Text() string         { return o.text }
func (o *Observation) State() State         { return o.state }
func (o *Observation) Rendered() bool       { return o.marker != nil }

// ExpiresAt reports the expiry time, if any.
func (o *Observation) ExpiresAt() (time.Time, bool) {
	if o.expiresAt == nil {
		return time.Time{}, false
	}
	return *o.expiresAt, true
}

// ExpiredAt reports whether the observation has an expiry at or before now.
func (o *Observation) ExpiredAt(now time.Time) bool {
	return o.expiresAt != nil && !o.expiresAt.After(now)
}

// Record is the persistence view of an observation.
// Key is generated once per create and lets the gateway recognize a retried StoreNew.
type Record struct {
	ID        int64      `json:"id"`
	Key       string     `json:"key,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Author    string     `json:"author"`
	Source    Location   `json:"source"`
	Text      string     `json:"text"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (o *Observation) Record() Record {
	return Record{
		ID:        o.id,
		Key:       o.key,
		CreatedAt: o.createdAt,
		Author:    o.author,
		Source:    o.source,
		Text:      o.text,
		ExpiresAt: copyTime(o.expiresAt),
	}
}
