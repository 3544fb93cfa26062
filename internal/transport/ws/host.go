// Package ws connects a marker host (the game server that actually draws markers)
// over a websocket and exposes it as an observation.MarkerHost.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"fieldnotes.ai/internal/command"
	"fieldnotes.ai/internal/observation"
	"fieldnotes.ai/internal/protocol"
)

var ErrHostClosed = errors.New("marker host closed")

const (
	sendQueue    = 256
	writeTimeout = 5 * time.Second
	readTimeout  = 60 * time.Second
	helloTimeout = 5 * time.Second
)

// Commands runs a chat command line for an actor.
type Commands interface {
	Dispatch(ctx context.Context, s command.Sender, line string) ([]string, error)
}

// Host keeps the authoritative set of live markers and mirrors it to the connected
// host session. Markers outlive connections; a reconnecting host gets them all in WELCOME.
type Host struct {
	log       *log.Logger
	validator *protocol.Validator
	upgrader  websocket.Upgrader

	mu       sync.Mutex
	seq      uint64
	markers  map[string]*marker
	sess     *session
	closed   bool
	commands Commands
}

var _ observation.MarkerHost = (*Host)(nil)

type marker struct {
	host    *Host
	id      string
	seq     uint64
	loc     observation.Location
	lines   []observation.Line
	onTouch observation.TouchFunc
	once    sync.Once
}

func (m *marker) Destroy() {
	m.once.Do(func() { m.host.remove(m) })
}

type session struct {
	id     string
	out    chan []byte
	cancel context.CancelFunc
}

func NewHost(logger *log.Logger) (*Host, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	v, err := protocol.NewValidator()
	if err != nil {
		return nil, err
	}
	return &Host{
		log:       logger,
		validator: v,
		markers:   map[string]*marker{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}, nil
}

// SetCommands installs the command dispatcher. It must be called before serving.
func (h *Host) SetCommands(c Commands) {
	h.mu.Lock()
	h.commands = c
	h.mu.Unlock()
}

// CreateMarker implements observation.MarkerHost.
func (h *Host) CreateMarker(loc observation.Location, lines []observation.Line, onTouch observation.TouchFunc) (observation.Marker, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHostClosed
	}
	h.seq++
	m := &marker{
		host:    h,
		id:      fmt.Sprintf("m%d", h.seq),
		seq:     h.seq,
		loc:     loc,
		lines:   append([]observation.Line(nil), lines...),
		onTouch: onTouch,
	}
	h.markers[m.id] = m
	h.sendLocked(protocol.MarkerCreateMsg{
		Type:            protocol.TypeMarkerCreate,
		ProtocolVersion: protocol.Version,
		MarkerID:        m.id,
		Location:        m.loc,
		Lines:           m.lines,
	})
	return m, nil
}

func (h *Host) remove(m *marker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.markers[m.id]; !ok {
		return
	}
	delete(h.markers, m.id)
	h.sendLocked(protocol.MarkerDestroyMsg{
		Type:            protocol.TypeMarkerDestroy,
		ProtocolVersion: protocol.Version,
		MarkerID:        m.id,
	})
}

// MarkerCount reports how many markers are live.
func (h *Host) MarkerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.markers)
}

// Connected reports whether a host session is attached.
func (h *Host) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sess != nil
}

// Close drops the current session; later CreateMarker calls fail.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	if h.sess != nil {
		h.sess.cancel()
		h.sess = nil
	}
}

func (h *Host) snapshotLocked() []protocol.MarkerState {
	ms := make([]*marker, 0, len(h.markers))
	for _, m := range h.markers {
		ms = append(ms, m)
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].seq < ms[j].seq })
	out := make([]protocol.MarkerState, 0, len(ms))
	for _, m := range ms {
		out = append(out, protocol.MarkerState{MarkerID: m.id, Location: m.loc, Lines: m.lines})
	}
	return out
}

// sendLocked queues v for the current session. A session that cannot keep up is
// dropped; it gets a full WELCOME when it reconnects.
func (h *Host) sendLocked(v any) {
	if h.sess == nil {
		return
	}
	h.sendTo(h.sess, v)
}

func (h *Host) sendTo(s *session, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Printf("marshal %T: %v", v, err)
		return
	}
	select {
	case s.out <- b:
	default:
		h.log.Printf("session %s: send queue full, dropping connection", s.id)
		s.cancel()
	}
}

func (h *Host) send(s *session, v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendTo(s, v)
}

func (h *Host) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello, ok := h.handshake(conn)
		if !ok {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sess, err := h.attach(cancel)
		if err != nil {
			_ = writeJSON(conn, protocol.NewError(protocol.ErrInternal, err.Error()))
			return
		}
		h.log.Printf("host %q attached (session %s)", hello.HostName, sess.id)
		defer h.detach(sess)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					_ = conn.Close()
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			h.handle(ctx, sess, msg)
		}
		h.log.Printf("host %q detached (session %s)", hello.HostName, sess.id)
	}
}

func (h *Host) handshake(conn *websocket.Conn) (protocol.HelloMsg, bool) {
	var hello protocol.HelloMsg
	_ = conn.SetReadDeadline(time.Now().Add(helloTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return hello, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoNoHello, "expected HELLO"))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return hello, false
	}
	if base.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoVersion, "protocol_version must be "+protocol.Version))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return hello, false
	}
	if err := h.validator.Validate(protocol.TypeHello, msg); err != nil {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
		return hello, false
	}
	if err := json.Unmarshal(msg, &hello); err != nil {
		return hello, false
	}
	return hello, true
}

// attach makes a new session current, replacing any previous one, and queues its WELCOME
// so no marker update can be ordered before it.
func (h *Host) attach(cancel context.CancelFunc) (*session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHostClosed
	}
	if h.sess != nil {
		h.log.Printf("session %s replaced", h.sess.id)
		h.sess.cancel()
	}
	s := &session{id: uuid.NewString(), out: make(chan []byte, sendQueue), cancel: cancel}
	h.sess = s
	h.sendTo(s, protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       s.id,
		Markers:         h.snapshotLocked(),
	})
	return s, nil
}

func (h *Host) detach(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sess == s {
		h.sess = nil
	}
}

func (h *Host) handle(ctx context.Context, sess *session, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		h.send(sess, protocol.NewError(protocol.ErrProtoBadRequest, "invalid json"))
		return
	}
	if base.ProtocolVersion != protocol.Version {
		h.send(sess, protocol.NewError(protocol.ErrProtoVersion, "protocol_version must be "+protocol.Version))
		return
	}
	switch base.Type {
	case protocol.TypeCommand, protocol.TypeTouch:
	default:
		h.send(sess, protocol.NewError(protocol.ErrProtoBadRequest, "unexpected message type "+base.Type))
		return
	}
	if err := h.validator.Validate(base.Type, msg); err != nil {
		h.send(sess, protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
		return
	}

	switch base.Type {
	case protocol.TypeCommand:
		var cmd protocol.CommandMsg
		if err := json.Unmarshal(msg, &cmd); err != nil {
			h.send(sess, protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
			return
		}
		h.runCommand(ctx, sess, cmd)
	case protocol.TypeTouch:
		var touch protocol.TouchMsg
		if err := json.Unmarshal(msg, &touch); err != nil {
			h.send(sess, protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
			return
		}
		h.mu.Lock()
		m, ok := h.markers[touch.MarkerID]
		h.mu.Unlock()
		if !ok {
			h.send(sess, protocol.NewError(protocol.ErrUnknownMarker, "unknown marker "+touch.MarkerID))
			return
		}
		if m.onTouch != nil {
			m.onTouch(&remoteActor{ref: touch.Actor, host: h, sess: sess})
		}
	}
}

func (h *Host) runCommand(ctx context.Context, sess *session, cmd protocol.CommandMsg) {
	h.mu.Lock()
	commands := h.commands
	h.mu.Unlock()
	if commands == nil {
		h.send(sess, protocol.NewError(protocol.ErrInternal, "commands unavailable"))
		return
	}
	actor := &remoteActor{ref: cmd.Actor, host: h, sess: sess}
	lines, err := commands.Dispatch(ctx, actor, cmd.Line)
	if err != nil {
		text := err.Error()
		var ce *command.Error
		if errors.As(err, &ce) && len(ce.Lines) > 0 {
			text = strings.Join(ce.Lines, "\n")
		}
		e := protocol.NewError(errorCode(err), text)
		e.ActorID = actor.ID()
		h.send(sess, e)
		return
	}
	h.send(sess, protocol.MessageMsg{
		Type:            protocol.TypeMessage,
		ProtocolVersion: protocol.Version,
		ActorID:         actor.ID(),
		Lines:           lines,
	})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, command.ErrInvalidArgument):
		return protocol.ErrBadRequest
	case errors.Is(err, command.ErrUnknownCommand):
		return protocol.ErrUnknownCmd
	case errors.Is(err, command.ErrNoPermission):
		return protocol.ErrNoPermission
	case errors.Is(err, command.ErrNotPlayer):
		return protocol.ErrNotPlayer
	case errors.Is(err, command.ErrNotFound):
		return protocol.ErrNotFound
	case errors.Is(err, command.ErrRateLimited):
		return protocol.ErrRateLimit
	default:
		return protocol.ErrInternal
	}
}

// remoteActor is a player or console on the connected host.
type remoteActor struct {
	ref  protocol.ActorRef
	host *Host
	sess *session
}

var _ command.Sender = (*remoteActor)(nil)

func (a *remoteActor) ID() string { return a.ref.ID }

func (a *remoteActor) Name() string {
	if strings.TrimSpace(a.ref.Name) == "" {
		return a.ref.ID
	}
	return a.ref.Name
}

func (a *remoteActor) IsPlayer() bool { return a.ref.Player }

func (a *remoteActor) HasPermission(node string) bool {
	for _, p := range a.ref.Permissions {
		if p == "*" || strings.EqualFold(p, node) {
			return true
		}
	}
	return false
}

func (a *remoteActor) Location() observation.Location { return a.ref.Location }

func (a *remoteActor) Teleport(loc observation.Location) {
	a.host.send(a.sess, protocol.TeleportMsg{
		Type:            protocol.TypeTeleport,
		ProtocolVersion: protocol.Version,
		ActorID:         a.ref.ID,
		Location:        loc,
	})
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
