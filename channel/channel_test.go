// Copyright (C) 2026 The Parlor Authors. All Rights Reserved.

package channel_test

import (
	"errors"
	"net"
	"testing"

	"github.com/creachadair/taskgroup"
	"github.com/google/go-cmp/cmp"

	"github.com/parlorchat/parlor"
	"github.com/parlorchat/parlor/channel"
)

func TestDirect(t *testing.T) {
	c, s := channel.Direct()

	g := taskgroup.New(nil)
	g.Go(func() error {
		f := &parlor.Frame{Kind: parlor.KindMessage, Payload: []byte("ping")}
		if err := c.Send(f); err != nil {
			t.Errorf("A Send: %v", err)
		}
		got, err := c.Recv()
		if err != nil {
			t.Errorf("A Recv: %v", err)
		}
		if got != f {
			t.Errorf("Frame: got %v, want %v", got, f)
		}
		return nil
	})
	g.Go(func() error {
		f, err := s.Recv()
		if err != nil {
			t.Errorf("B Recv: %v", err)
		}
		if err := s.Send(f); err != nil {
			t.Errorf("B Send: %v", err)
		}
		return nil
	})
	g.Wait()

	if err := c.Close(); err != nil {
		t.Errorf("c.Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("c.Close again: %v", err)
	}

	if err := c.Send(nil); !errors.Is(err, net.ErrClosed) {
		t.Errorf("c.Send after close: got %v, want %v", err, net.ErrClosed)
	}
	if f, err := c.Recv(); !errors.Is(err, net.ErrClosed) {
		t.Errorf("c.Recv after close: got %+v, %v; want %v", f, err, net.ErrClosed)
	}
}

// A close on one side must release the other side's pending operations.
func TestDirectCloseUnblocks(t *testing.T) {
	c, s := channel.Direct()

	g := taskgroup.New(nil)
	g.Go(func() error {
		if f, err := s.Recv(); !errors.Is(err, net.ErrClosed) {
			t.Errorf("B Recv: got %+v, %v; want %v", f, err, net.ErrClosed)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.Send(&parlor.Frame{Kind: parlor.KindMessage}); !errors.Is(err, net.ErrClosed) {
			t.Errorf("B Send: got %v, want %v", err, net.ErrClosed)
		}
		return nil
	})
	c.Close()
	g.Wait()
}

func TestLine(t *testing.T) {
	cc, sc := net.Pipe()
	client := channel.Conn(cc)
	server := channel.Pipe(sc, sc)

	want := &parlor.Frame{Kind: parlor.KindWhisper, Payload: []byte("bob psst")}

	g := taskgroup.New(nil)
	g.Go(func() error {
		if err := client.Send(want); err != nil {
			t.Errorf("Send: %v", err)
		}
		return nil
	})

	got, err := server.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	g.Wait()

	if got.Kind != want.Kind {
		t.Errorf("Kind: got %v, want %v", got.Kind, want.Kind)
	}
	if diff := cmp.Diff(want.Payload, got.Payload); diff != "" {
		t.Errorf("Payload (-want, +got):\n%s", diff)
	}

	// Closing the remote side surfaces an error on the next receive.
	if err := client.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if f, err := server.Recv(); err == nil {
		t.Errorf("Recv after close: got %+v", f)
	} else {
		t.Logf("Error OK: %v", err)
	}
}
