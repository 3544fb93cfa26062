package observation

import (
	"time"

	"fieldnotes.ai/internal/markup"
)

type LineKind string

const (
	LineItem LineKind = "item"
	LineText LineKind = "text"
)

// Line is one row of a marker. Item lines show an item icon, text lines resolved markup.
type Line struct {
	Kind LineKind `json:"kind"`
	Text string   `json:"text,omitempty"`
	Item string   `json:"item,omitempty"`
}

// Actor is whoever touched a marker.
type Actor interface {
	ID() string
	Teleport(loc Location)
}

type TouchFunc func(actor Actor)

// Marker is a live visual handle. Destroy must be idempotent.
type Marker interface {
	Destroy()
}

// MarkerHost is the rendering toolkit that actually displays markers.
type MarkerHost interface {
	CreateMarker(loc Location, lines []Line, onTouch TouchFunc) (Marker, error)
}

// Teleporter sends whoever touches a marker to the location it was created from.
type Teleporter struct {
	dest Location
}

func NewTeleporter(dest Location) *Teleporter { return &Teleporter{dest: dest} }

func (t *Teleporter) Touch(actor Actor) {
	if actor == nil {
		return
	}
	actor.Teleport(t.dest)
}

type RendererConfig struct {
	IconItem   string
	DateLayout string
	TimeZone   *time.Location
}

const (
	DefaultIconItem   = "OAK_SIGN"
	DefaultDateLayout = "01/02/2006 03:04 PM"
)

type Renderer struct {
	host MarkerHost
	cfg  RendererConfig
}

func NewRenderer(host MarkerHost, cfg RendererConfig) *Renderer {
	if cfg.IconItem == "" {
		cfg.IconItem = DefaultIconItem
	}
	if cfg.DateLayout == "" {
		cfg.DateLayout = DefaultDateLayout
	}
	if cfg.TimeZone == nil {
		cfg.TimeZone = time.Local
	}
	return &Renderer{host: host, cfg: cfg}
}

func (r *Renderer) date(t time.Time) string {
	return t.In(r.cfg.TimeZone).Format(r.cfg.DateLayout)
}

// Lines builds the marker rows for o: icon, text, byline and, when set, the expiry.
func (r *Renderer) Lines(o *Observation) []Line {
	lines := []Line{
		{Kind: LineItem, Item: r.cfg.IconItem},
		{Kind: LineText, Text: markup.Translate(o.text)},
		{Kind: LineText, Text: markup.Color("&7", o.author, " - ", r.date(o.createdAt))},
	}
	if exp, ok := o.ExpiresAt(); ok {
		lines = append(lines, Line{Kind: LineText, Text: markup.Color("&7Expires ", r.date(exp))})
	}
	return lines
}

// Create displays o at its fixed display location. Every line shares one Teleporter.
func (r *Renderer) Create(o *Observation) (Marker, error) {
	tp := NewTeleporter(o.source)
	return r.host.CreateMarker(o.display, r.Lines(o), tp.Touch)
}

// Destroy releases m; nil is allowed.
func (r *Renderer) Destroy(m Marker) {
	if m == nil {
		return
	}
	m.Destroy()
}
