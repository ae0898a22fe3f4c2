// Copyright (C) 2026 The Parlor Authors. All Rights Reserved.

package server_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"

	"github.com/parlorchat/parlor"
	"github.com/parlorchat/parlor/channel"
	"github.com/parlorchat/parlor/server"
)

const recvTimeout = 5 * time.Second

// startServer runs a server on a loopback listener and returns its address
// and a stop function that shuts it down and reports the Run error. The stop
// function is safe to call more than once.
func startServer(t *testing.T, cfg server.Config) (addr string, stop func() error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr = ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- server.New(cfg).Run(ctx, ln) }()

	return addr, sync.OnceValue(func() error {
		cancel()
		return <-errc
	})
}

// A testClient is one scripted connection to the server under test.
type testClient struct {
	t    *testing.T
	name string
	conn net.Conn
	ch   parlor.Channel
}

func dial(t *testing.T, addr, name string) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	var buf [parlor.MaxNameLen + 1]byte
	copy(buf[:], name)
	if _, err := conn.Write(buf[:]); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	tc := &testClient{t: t, name: name, conn: conn, ch: channel.Conn(conn)}
	t.Cleanup(func() { conn.Close() })
	return tc
}

func (c *testClient) send(kind parlor.Kind, text string) {
	c.t.Helper()
	if err := c.ch.Send(&parlor.Frame{Kind: kind, Payload: []byte(text)}); err != nil {
		c.t.Fatalf("[%s] Send %v: %v", c.name, kind, err)
	}
}

// recv returns the next frame sent to the client.
func (c *testClient) recv() *parlor.Frame {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(recvTimeout))
	f, err := c.ch.Recv()
	if err != nil {
		c.t.Fatalf("[%s] Recv: %v", c.name, err)
	}
	return f
}

// expect verifies that the next frame sent to the client is a MESSAGE with
// exactly the given text.
func (c *testClient) expect(want string) {
	c.t.Helper()
	f := c.recv()
	if f.Kind != parlor.KindMessage {
		c.t.Fatalf("[%s] Recv: got kind %v, want MESSAGE", c.name, f.Kind)
	}
	if got := string(f.Payload); got != want {
		c.t.Errorf("[%s] Recv: got %q, want %q", c.name, got, want)
	}
}

func TestChat(t *testing.T) {
	defer leaktest.Check(t)()

	addr, stop := startServer(t, server.Config{})
	defer stop()

	alice := dial(t, addr, "alice")
	alice.expect("welcome to lobby, alice")

	bob := dial(t, addr, "bob")
	bob.expect("welcome to lobby, bob")
	alice.expect("bob has joined the server")

	alice.send(parlor.KindMessage, "hi")
	bob.expect("[alice] | hi")

	// Alice's next inbound frame is Bob's reply, which shows she did not
	// receive her own broadcast.
	bob.send(parlor.KindMessage, "yo")
	alice.expect("[bob] | yo")
}

func TestRefuseDuplicateName(t *testing.T) {
	defer leaktest.Check(t)()

	addr, stop := startServer(t, server.Config{})
	defer stop()

	alice := dial(t, addr, "alice")
	alice.expect("welcome to lobby, alice")

	imp := dial(t, addr, "alice")
	f := imp.recv()
	if f.Kind != parlor.KindRefuseConnection {
		t.Fatalf("Recv: got kind %v, want REFUSE_CONNECTION", f.Kind)
	}
	imp.conn.SetReadDeadline(time.Now().Add(recvTimeout))
	if f, err := imp.ch.Recv(); err == nil {
		t.Errorf("Recv after refusal: got %v, want closed stream", f)
	}

	// The registered user is unaffected and hears about no join.
	alice.send(parlor.KindRoomList, "")
	alice.expect("room lobby: alice")
}

func TestAuthenticate(t *testing.T) {
	defer leaktest.Check(t)()

	addr, stop := startServer(t, server.Config{Passphrase: "sesame"})
	defer stop()

	alice := dial(t, addr, "alice")
	alice.expect("welcome to lobby, alice")

	alice.send(parlor.KindAuthenticate, "wrong")
	alice.expect("invalid code")

	// Without the privilege, admin commands are refused.
	alice.send(parlor.KindAdminShutoff, "")
	alice.expect("must be administrator")
	alice.send(parlor.KindAdminAnnounce, "psst")
	alice.expect("must be administrator")

	alice.send(parlor.KindAuthenticate, "sesame")
	alice.expect("you are now an administrator")

	alice.send(parlor.KindAdminAnnounce, "all hands")
	alice.expect("[server] | all hands")
}

func TestJoinRoom(t *testing.T) {
	defer leaktest.Check(t)()

	addr, stop := startServer(t, server.Config{})
	defer stop()

	alice := dial(t, addr, "alice")
	alice.expect("welcome to lobby, alice")
	bob := dial(t, addr, "bob")
	bob.expect("welcome to lobby, bob")
	alice.expect("bob has joined the server")

	alice.send(parlor.KindJoinRoom, "")
	alice.expect("need a room name")

	alice.send(parlor.KindJoinRoom, "den")
	bob.expect("alice has left lobby")
	alice.expect("you are now in den")

	alice.send(parlor.KindRoomList, "")
	alice.expect("room den: alice")
	bob.send(parlor.KindRoomList, "")
	bob.expect("room lobby: bob")

	// Room broadcasts no longer reach the other room: Bob's next frame
	// after Alice's room message is her whisper.
	alice.send(parlor.KindMessage, "secret")
	alice.send(parlor.KindWhisper, "bob psst")
	bob.expect("[alice] (whisper) | psst")

	// A move to the current room performs a full leave and rejoin, so the
	// mover hears its own departure announced.
	alice.send(parlor.KindJoinRoom, "den")
	alice.expect("alice has left den")
	alice.expect("you are now in den")
}

func TestWhisper(t *testing.T) {
	defer leaktest.Check(t)()

	addr, stop := startServer(t, server.Config{})
	defer stop()

	alice := dial(t, addr, "alice")
	alice.expect("welcome to lobby, alice")
	bob := dial(t, addr, "bob")
	bob.expect("welcome to lobby, bob")
	alice.expect("bob has joined the server")

	alice.send(parlor.KindWhisper, "bob you up?")
	bob.expect("[alice] (whisper) | you up?")

	alice.send(parlor.KindWhisper, "alice echo")
	alice.expect("cannot whisper to yourself")

	alice.send(parlor.KindWhisper, "ghost hello")
	alice.expect("ghost does not exist")
}

func TestFriends(t *testing.T) {
	defer leaktest.Check(t)()

	addr, stop := startServer(t, server.Config{})
	defer stop()

	alice := dial(t, addr, "alice")
	alice.expect("welcome to lobby, alice")
	bob := dial(t, addr, "bob")
	bob.expect("welcome to lobby, bob")
	alice.expect("bob has joined the server")

	alice.send(parlor.KindFriendRequest, "bob")
	alice.expect("friend request sent to bob")
	bob.expect("alice has sent you a friend request")

	bob.send(parlor.KindFriendsList, "")
	bob.expect("friends: (none) | pending: alice")

	bob.send(parlor.KindFriendRequest, "alice")
	bob.expect("you are now friends with alice")
	alice.expect("you are now friends with bob")

	alice.send(parlor.KindFriendsList, "")
	alice.expect("friends: bob | pending: (none)")

	// A departing user is announced to its room and to its friends, so a
	// friend sharing the room hears it twice.
	bob.send(parlor.KindDisconnect, "")
	alice.expect("bob has left the server")
	alice.expect("bob has left the server")

	alice.send(parlor.KindFriendsList, "")
	alice.expect("friends: (none) | pending: (none)")
}

func TestShutdownWithPendingHandshake(t *testing.T) {
	defer leaktest.Check(t)()

	addr, stop := startServer(t, server.Config{})

	// Connect and send only part of the name field, leaving the handshake
	// read blocked on the server side.
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("mallory")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	time.Sleep(50 * time.Millisecond) // let the accept and handshake start

	done := make(chan error, 1)
	go func() { done <- stop() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop with a handshake in flight")
	}
}

func TestAdminShutoff(t *testing.T) {
	defer leaktest.Check(t)()

	addr, stop := startServer(t, server.Config{})
	defer stop()

	alice := dial(t, addr, "alice")
	alice.expect("welcome to lobby, alice")
	bob := dial(t, addr, "bob")
	bob.expect("welcome to lobby, bob")
	alice.expect("bob has joined the server")

	alice.send(parlor.KindAuthenticate, server.DefaultPassphrase)
	alice.expect("you are now an administrator")

	alice.send(parlor.KindAdminShutoff, "")
	alice.expect("server is shutting down")
	bob.expect("server is shutting down")

	if err := stop(); err != nil {
		t.Errorf("Run: unexpected error: %v", err)
	}
}
