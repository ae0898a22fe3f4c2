// Copyright (C) 2026 The Parlor Authors. All Rights Reserved.

// Package channel provides concrete transports for parlor frames: a Line
// carries frames in wire format over a byte stream, and Direct gives an
// in-memory connected pair for testing without sockets.
package channel

import (
	"bufio"
	"io"
	"net"
	"sync"

	"github.com/parlorchat/parlor"
)

// A Line is a frame channel over a byte stream. Reads and writes are
// buffered at the packet size, and each Send flushes a complete frame.
type Line struct {
	r     *bufio.Reader
	w     *bufio.Writer
	close func() error
}

// Conn returns a Line over both directions of nc. Closing the line closes
// the connection, which also releases a blocked Recv.
func Conn(nc net.Conn) *Line { return Pipe(nc, nc) }

// Pipe returns a Line that receives from r and sends to wc.
func Pipe(r io.Reader, wc io.WriteCloser) *Line {
	return &Line{
		r:     bufio.NewReaderSize(r, parlor.PacketSize),
		w:     bufio.NewWriterSize(wc, parlor.PacketSize),
		close: wc.Close,
	}
}

// Send implements a method of the [parlor.Channel] interface.
func (ln *Line) Send(f *parlor.Frame) error {
	if _, err := f.WriteTo(ln.w); err != nil {
		return err
	}
	return ln.w.Flush()
}

// Recv implements a method of the [parlor.Channel] interface.
func (ln *Line) Recv() (*parlor.Frame, error) {
	f := new(parlor.Frame)
	if _, err := f.ReadFrom(ln.r); err != nil {
		return nil, err
	}
	return f, nil
}

// Close implements a method of the [parlor.Channel] interface.
func (ln *Line) Close() error { return ln.close() }

// Direct returns a connected pair of channels that exchange frames in memory
// without wire encoding. Frames sent on one side are received intact by the
// other. Closing either side unblocks pending operations on both, which then
// report net.ErrClosed.
func Direct() (a, b parlor.Channel) {
	ab := make(chan *parlor.Frame)
	ba := make(chan *parlor.Frame)
	astop := make(chan struct{})
	bstop := make(chan struct{})
	a = &half{send: ab, recv: ba, stop: astop, peer: bstop}
	b = &half{send: ba, recv: ab, stop: bstop, peer: astop}
	return
}

// A half is one side of a Direct pair. Sends rendezvous with the peer's
// receives, so a frame is either delivered or reported undeliverable; none
// are buffered.
type half struct {
	send chan<- *parlor.Frame
	recv <-chan *parlor.Frame
	stop chan struct{} // closed by Close on this side
	peer <-chan struct{}
	once sync.Once
}

// Send implements a method of the [parlor.Channel] interface.
func (h *half) Send(f *parlor.Frame) error {
	select {
	case h.send <- f:
		return nil
	case <-h.stop:
		return net.ErrClosed
	case <-h.peer:
		return net.ErrClosed
	}
}

// Recv implements a method of the [parlor.Channel] interface.
func (h *half) Recv() (*parlor.Frame, error) {
	select {
	case f := <-h.recv:
		return f, nil
	case <-h.stop:
		return nil, net.ErrClosed
	case <-h.peer:
		return nil, net.ErrClosed
	}
}

// Close implements a method of the [parlor.Channel] interface. Close is
// idempotent and always reports nil.
func (h *half) Close() error {
	h.once.Do(func() { close(h.stop) })
	return nil
}
