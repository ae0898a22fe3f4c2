// Copyright (C) 2026 The Parlor Authors. All Rights Reserved.

// Package server implements the serving side of the parlor chat protocol.
//
// A Server multiplexes many framed connections over one shared
// [directory.Directory]. Exactly one goroutine, the dispatcher, owns the
// directory and the session table: the accept loop and the per-session
// readers only decode input and deliver events to it, so no locking
// discipline is needed for directory access. Handlers run to completion on
// the dispatcher before the next event is taken, which preserves per-sender
// delivery order.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/creachadair/mds/mapset"
	"github.com/creachadair/taskgroup"
	"github.com/rs/zerolog"

	"github.com/parlorchat/parlor"
	"github.com/parlorchat/parlor/channel"
	"github.com/parlorchat/parlor/directory"
)

// Default configuration values.
const (
	DefaultRoom       = "lobby"
	DefaultPassphrase = "swordfish"
	defaultTick       = 1 * time.Second
)

// Config carries the operating parameters for a Server.
// A zero Config is ready for use and selects the defaults.
type Config struct {
	// DefaultRoom is the name of the room every user joins on registration.
	// If empty, DefaultRoom is used.
	DefaultRoom string

	// Passphrase is the shared administrator passphrase. If empty,
	// DefaultPassphrase is used.
	Passphrase string

	// Tick bounds how long the dispatcher waits for an event before checking
	// the shutdown flag. If zero or negative, defaultTick is used.
	Tick time.Duration

	// Logger receives structured server logs. If nil, logging is disabled.
	Logger *zerolog.Logger
}

func (c Config) defaultRoom() string {
	if c.DefaultRoom == "" {
		return DefaultRoom
	}
	return c.DefaultRoom
}

func (c Config) passphrase() string {
	if c.Passphrase == "" {
		return DefaultPassphrase
	}
	return c.Passphrase
}

func (c Config) tick() time.Duration {
	if c.Tick <= 0 {
		return defaultTick
	}
	return c.Tick
}

func (c Config) logger() zerolog.Logger {
	if c.Logger == nil {
		return zerolog.Nop()
	}
	return *c.Logger
}

// A session is one registered connection. Sessions are created and destroyed
// only by the dispatcher.
type session struct {
	id   directory.ID
	name string
	ch   parlor.Channel
}

// An event is one unit of work for the dispatcher.
type event interface{ isEvent() }

// connectEvent reports a new connection that completed its handshake.
type connectEvent struct {
	name string
	ch   parlor.Channel
	addr string
}

// frameEvent reports one decoded frame from a registered session.
type frameEvent struct {
	id    directory.ID
	frame *parlor.Frame
}

// hangupEvent reports that a session's stream ended. err is nil for an
// orderly close and carries the transport error otherwise.
type hangupEvent struct {
	id  directory.ID
	err error
}

// listenerEvent reports an unrecoverable accept failure.
type listenerEvent struct{ err error }

func (connectEvent) isEvent()  {}
func (frameEvent) isEvent()    {}
func (hangupEvent) isEvent()   {}
func (listenerEvent) isEvent() {}

// A Server is a parlor chat server. Construct one with New and drive it with
// Run; a Server may be run at most once.
type Server struct {
	cfg Config
	log zerolog.Logger

	dir      *directory.Directory
	sessions map[directory.ID]*session

	events chan event
	done   chan struct{} // closed when the dispatcher exits
	tasks  *taskgroup.Group

	μ       sync.Mutex
	pending mapset.Set[net.Conn] // connections whose handshake is in flight

	stopping bool // set by ADMIN_SHUTOFF or context cancellation
	fatal    error

	metrics *metrics
}

// New constructs an unstarted server with the given configuration.
func New(cfg Config) *Server {
	return &Server{
		cfg:      cfg,
		log:      cfg.logger(),
		dir:      directory.New(cfg.defaultRoom()),
		sessions: make(map[directory.ID]*session),
		events:   make(chan event),
		done:     make(chan struct{}),
		pending:  mapset.New[net.Conn](),
		metrics:  newMetrics(),
	}
}

// Run serves connections accepted from ln until ctx ends, an administrator
// stops the server, or the listener fails. On return the listener is closed,
// every remaining session has been disconnected, and all service goroutines
// have exited.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Msg("server started")

	s.tasks = taskgroup.New(nil)
	s.tasks.Go(func() error { s.acceptLoop(ln); return nil })

	tick := time.NewTicker(s.cfg.tick())
	defer tick.Stop()

	for !s.stopping {
		select {
		case <-ctx.Done():
			s.stopping = true
		case <-tick.C:
			// Nothing to do: the loop condition rechecks the shutdown flag.
		case ev := <-s.events:
			s.handleEvent(ev)
		}
	}

	// Teardown: release the deliverers, the listener, and any handshake
	// still waiting for its name field, then every remaining session, and
	// wait for the service goroutines to drain.
	close(s.done)
	ln.Close()
	s.μ.Lock()
	for conn := range s.pending {
		conn.Close()
	}
	s.μ.Unlock()
	for id, sess := range s.sessions {
		sess.ch.Close()
		delete(s.sessions, id)
	}
	s.tasks.Wait()
	s.log.Info().Msg("server stopped")
	return s.fatal
}

// deliver hands ev to the dispatcher and reports whether it was accepted.
// An event offered after the dispatcher has exited is discarded.
func (s *Server) deliver(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// track records a connection whose handshake has not yet completed, so that
// teardown can release a read blocked on the name field.
func (s *Server) track(conn net.Conn) {
	s.μ.Lock()
	defer s.μ.Unlock()
	s.pending.Add(conn)
}

func (s *Server) untrack(conn net.Conn) {
	s.μ.Lock()
	defer s.μ.Unlock()
	s.pending.Remove(conn)
}

// acceptLoop accepts connections and starts a handshake task for each.
func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return // orderly shutdown closed the listener
			default:
			}
			s.deliver(listenerEvent{err: err})
			return
		}
		s.track(conn)
		s.tasks.Go(func() error { s.handshake(conn); return nil })
	}
}

// handshake reads the fixed-length registration payload from a new
// connection and delivers it to the dispatcher. The name occupies a
// NUL-padded field of MaxNameLen+1 bytes.
func (s *Server) handshake(conn net.Conn) {
	defer s.untrack(conn)

	var buf [parlor.MaxNameLen + 1]byte
	if _, err := io.ReadFull(conn, buf[:]); err != nil {
		s.log.Warn().Err(err).Str("addr", conn.RemoteAddr().String()).Msg("handshake failed")
		conn.Close()
		return
	}
	name := strings.TrimSpace(strings.TrimRight(string(buf[:]), "\x00"))
	ev := connectEvent{name: name, ch: channel.Conn(conn), addr: conn.RemoteAddr().String()}
	if !s.deliver(ev) {
		conn.Close() // the dispatcher exited before taking ownership
	}
}

// handleEvent routes one event. It runs on the dispatcher goroutine.
func (s *Server) handleEvent(ev event) {
	switch ev := ev.(type) {
	case connectEvent:
		s.handleConnect(ev)
	case frameEvent:
		s.metrics.framesIn.Add(1)
		if _, ok := s.sessions[ev.id]; ok {
			s.handleFrame(ev.id, ev.frame)
		}
	case hangupEvent:
		if _, ok := s.sessions[ev.id]; ok {
			s.dropSession(ev.id, ev.err)
		}
	case listenerEvent:
		s.fatal = fmt.Errorf("listener failed: %w", ev.err)
		s.log.Error().Err(ev.err).Msg("listener failed")
		s.stopping = true
	}
}

// handleConnect registers a new user or refuses the connection.
func (s *Server) handleConnect(ev connectEvent) {
	u, err := s.dir.Register(ev.name)
	if err != nil {
		s.metrics.connRefused.Add(1)
		s.log.Info().Err(err).Str("name", ev.name).Str("addr", ev.addr).Msg("registration refused")
		s.send(ev.ch, &parlor.Frame{Kind: parlor.KindRefuseConnection, Payload: []byte(err.Error())})
		ev.ch.Close()
		return
	}

	id := u.ID()
	sess := &session{id: id, name: u.Name(), ch: ev.ch}
	s.sessions[id] = sess
	s.metrics.connAccepted.Add(1)
	s.metrics.connActive.Add(1)
	s.log.Info().Str("name", u.Name()).Str("addr", ev.addr).Stringer("id", id).Msg("user registered")

	s.sendText(id, fmt.Sprintf("welcome to %s, %s", u.Room(), u.Name()))
	s.toAllExcept(id, fmt.Sprintf("%s has joined the server", u.Name()))

	s.tasks.Go(func() error { s.readLoop(sess); return nil })
}

// readLoop decodes frames from one session and delivers them in order.
func (s *Server) readLoop(sess *session) {
	for {
		f, err := sess.ch.Recv()
		if err != nil {
			if isOrderlyClose(err) {
				err = nil
			}
			s.deliver(hangupEvent{id: sess.id, err: err})
			return
		}
		s.deliver(frameEvent{id: sess.id, frame: f})
	}
}

// isOrderlyClose reports whether err indicates the peer closed its stream
// rather than a transport failure.
func isOrderlyClose(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

// dropSession tears down a registered session: it announces the departure to
// the user's room and friends, unregisters the user, and closes the channel.
// err carries the transport error that ended the session, or nil.
func (s *Server) dropSession(id directory.ID, err error) {
	sess := s.sessions[id]
	room, _ := s.dir.RoomOf(id)

	if err != nil {
		s.metrics.transportErrors.Add(1)
		s.log.Warn().Err(err).Str("name", sess.name).Msg("session failed")
	} else {
		s.log.Info().Str("name", sess.name).Msg("user disconnected")
	}

	gone := fmt.Sprintf("%s has left the server", sess.name)
	s.toRoomExcept(id, room, gone)
	s.toFriends(id, gone)

	s.dir.Unregister(id)
	delete(s.sessions, id)
	sess.ch.Close()
	s.metrics.connActive.Add(-1)
}
