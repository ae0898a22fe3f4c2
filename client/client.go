// Copyright (C) 2026 The Parlor Authors. All Rights Reserved.

// Package client implements the connecting side of the parlor chat protocol.
//
// A Client owns two concurrent tasks: one drains queued outbound frames to
// the server, the other blocks on the framed receive path and hands inbound
// frames to a callback. The tasks share no mutable state; they are joined by
// an errgroup and stopped together by context cancellation, a server close,
// or a refused registration.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/parlorchat/parlor"
	"github.com/parlorchat/parlor/channel"
)

// Errors reported by a Client.
var (
	// ErrRefused indicates the server rejected the registration handshake,
	// usually because the display name is already connected.
	ErrRefused = errors.New("registration refused")

	// ErrServerClosed indicates the server ended the session.
	ErrServerClosed = errors.New("server closed the connection")
)

// Config carries the parameters for a Client.
type Config struct {
	// Name is the display name sent during the registration handshake.
	// It is required and must be at most parlor.MaxNameLen bytes.
	Name string

	// OnFrame, if set, is invoked for each inbound frame, on the receive
	// task. It must not block indefinitely.
	OnFrame func(*parlor.Frame)

	// Logger receives structured client logs. If nil, logging is disabled.
	Logger *zerolog.Logger
}

// A Client is one connection to a parlor server. Construct one with Dial and
// drive it with Run.
type Client struct {
	name string
	ch   parlor.Channel
	log  zerolog.Logger
	recv func(*parlor.Frame)

	out    chan *parlor.Frame
	done   chan struct{} // closed when Run exits
	closed atomic.Bool
}

// Dial connects to a parlor server at addr and performs the registration
// handshake. The server does not acknowledge a successful registration;
// a refusal surfaces as ErrRefused from Run.
func Dial(addr string, cfg Config) (*Client, error) {
	if err := checkName(cfg.Name); err != nil {
		return nil, err
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	c := newClient(channel.Conn(conn), cfg)
	if err := writeHandshake(conn, cfg.Name); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	return c, nil
}

// NewChannel constructs a client directly over an existing channel, without
// dialing or handshaking. It is intended for tests.
func NewChannel(ch parlor.Channel, cfg Config) (*Client, error) {
	if err := checkName(cfg.Name); err != nil {
		return nil, err
	}
	return newClient(ch, cfg), nil
}

func newClient(ch parlor.Channel, cfg Config) *Client {
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	recv := cfg.OnFrame
	if recv == nil {
		recv = func(*parlor.Frame) {}
	}
	return &Client{
		name: cfg.Name,
		ch:   ch,
		log:  log,
		recv: recv,
		out:  make(chan *parlor.Frame),
		done: make(chan struct{}),
	}
}

// checkName validates a display name for the handshake: nonempty, within the
// length cap, and free of bytes the wire protocol reserves.
func checkName(name string) error {
	if name == "" {
		return errors.New("name is empty")
	}
	if len(name) > parlor.MaxNameLen {
		return fmt.Errorf("name exceeds %d bytes", parlor.MaxNameLen)
	}
	if len(parlor.CleanPayload([]byte(name))) != len(name) {
		return errors.New("name contains reserved bytes")
	}
	return nil
}

// writeHandshake sends the fixed-length registration payload: the name in a
// NUL-padded field of MaxNameLen+1 bytes.
func writeHandshake(conn net.Conn, name string) error {
	var buf [parlor.MaxNameLen + 1]byte
	copy(buf[:], name)
	_, err := conn.Write(buf[:])
	return err
}

// Run drives the client until ctx ends, the server closes the session, or
// the registration is refused. It reports nil after a local cancellation,
// ErrServerClosed when the server ends the session, and ErrRefused when the
// registration was rejected.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.done)
	defer c.closed.Store(true)

	g, gctx := errgroup.WithContext(ctx)

	// Closing the channel when the group context ends unblocks a receive
	// task stuck in Recv. Both loops report a non-nil error on every exit
	// path, so the group context always ends.
	g.Go(func() error {
		<-gctx.Done()
		c.ch.Close()
		return nil
	})
	g.Go(func() error { return c.recvLoop() })
	g.Go(func() error { return c.sendLoop(gctx) })

	err := g.Wait()
	if ctx.Err() != nil {
		return nil // local shutdown
	}
	return err
}

// recvLoop blocks on the framed receive path and hands each inbound frame to
// the configured callback.
func (c *Client) recvLoop() error {
	for {
		f, err := c.ch.Recv()
		if err != nil {
			if isOrderlyClose(err) {
				return ErrServerClosed
			}
			return fmt.Errorf("recv: %w", err)
		}
		if f.Kind == parlor.KindRefuseConnection {
			c.log.Warn().Str("name", c.name).Bytes("reason", f.Payload).Msg("registration refused")
			return fmt.Errorf("%w: %s", ErrRefused, f.Payload)
		}
		c.recv(f)
	}
}

// sendLoop drains queued outbound frames to the server.
func (c *Client) sendLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-c.out:
			if err := c.ch.Send(f); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		}
	}
}

// isOrderlyClose reports whether err indicates the stream ended rather than
// a transport failure.
func isOrderlyClose(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

// Send queues a frame of the given kind for delivery to the server. It
// blocks until the send task accepts the frame, and reports net.ErrClosed
// once the client has stopped.
func (c *Client) Send(kind parlor.Kind, payload []byte) error {
	if c.closed.Load() {
		return net.ErrClosed
	}
	select {
	case c.out <- &parlor.Frame{Kind: kind, Payload: payload}:
		return nil
	case <-c.done:
		return net.ErrClosed
	}
}

// Say sends chat text to the client's current room.
func (c *Client) Say(text string) error { return c.Send(parlor.KindMessage, []byte(text)) }

// Join moves the client to the named room.
func (c *Client) Join(room string) error { return c.Send(parlor.KindJoinRoom, []byte(room)) }

// Whisper sends a private message to the named user.
func (c *Client) Whisper(target, text string) error {
	return c.Send(parlor.KindWhisper, []byte(target+" "+text))
}

// Authenticate presents the administrator passphrase.
func (c *Client) Authenticate(code string) error {
	return c.Send(parlor.KindAuthenticate, []byte(code))
}

// RequestFriend requests or accepts a friendship with the named user.
func (c *Client) RequestFriend(name string) error {
	return c.Send(parlor.KindFriendRequest, []byte(name))
}

// Friends requests the client's confirmed and pending friend lists.
func (c *Client) Friends() error { return c.Send(parlor.KindFriendsList, nil) }

// RoomList requests the occupant list of the client's current room.
func (c *Client) RoomList() error { return c.Send(parlor.KindRoomList, nil) }

// Announce broadcasts text to every connected user (administrators only).
func (c *Client) Announce(text string) error {
	return c.Send(parlor.KindAdminAnnounce, []byte(text))
}

// Shutoff stops the server (administrators only).
func (c *Client) Shutoff() error { return c.Send(parlor.KindAdminShutoff, nil) }

// Disconnect tells the server the client is leaving.
func (c *Client) Disconnect() error { return c.Send(parlor.KindDisconnect, nil) }
