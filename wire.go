// Copyright (C) 2026 The Parlor Authors. All Rights Reserved.

package parlor

import (
	"fmt"
	"io"
)

// Kind identifies the application meaning of a frame. The kind of a frame is
// carried in the header byte of each of its packets.
//
// All kind values from 0 to 12 inclusive are reserved by the protocol and are
// stripped from payload bytes during encoding and decoding (see CleanPayload).
type Kind byte

const (
	KindDisconnect       Kind = 0  // Sender is leaving the server
	KindMessage          Kind = 1  // Chat text for the sender's room
	KindJoinRoom         Kind = 2  // Move the sender to a named room
	KindAuthenticate     Kind = 3  // Present the administrator passphrase
	KindRoomList         Kind = 4  // Request the sender's room occupant list
	KindFriendRequest    Kind = 5  // Request or accept a friendship
	KindFriendsList      Kind = 6  // Request the sender's friend list
	KindWhisper          Kind = 7  // Private message to a named user
	KindAdminShutoff     Kind = 8  // Stop the server (administrators only)
	KindAdminAnnounce    Kind = 9  // Broadcast to all users (administrators only)
	KindRefuseConnection Kind = 12 // Registration was rejected; connection closes

	// Trailer markers. Every packet ends with one of these: trailerContinue
	// when more packets of the same frame follow, trailerEnd on the last.
	trailerEnd      byte = 10
	trailerContinue byte = 11

	maxReservedByte byte = 12
)

func (k Kind) String() string {
	switch k {
	case KindDisconnect:
		return "DISCONNECT"
	case KindMessage:
		return "MESSAGE"
	case KindJoinRoom:
		return "JOIN_ROOM"
	case KindAuthenticate:
		return "AUTHENTICATE"
	case KindRoomList:
		return "ROOM_LIST"
	case KindFriendRequest:
		return "FRIEND_REQUEST"
	case KindFriendsList:
		return "FRIENDS_LIST"
	case KindWhisper:
		return "WHISPER"
	case KindAdminShutoff:
		return "ADMIN_SHUTOFF"
	case KindAdminAnnounce:
		return "ADMIN_ANNOUNCE"
	case KindRefuseConnection:
		return "REFUSE_CONNECTION"
	default:
		return fmt.Sprintf("KIND:%d", byte(k))
	}
}

const (
	// PacketSize is the fixed capacity of one wire packet: a header byte, up
	// to PacketSize-2 payload bytes, and a trailer byte.
	PacketSize = 1024

	chunkSize = PacketSize - 2

	// MaxNameLen is the maximum length in bytes of a display name sent during
	// the registration handshake.
	MaxNameLen = 63
)

// isReserved reports whether b is one of the protocol marker bytes that must
// not appear raw inside a packet's payload bytes.
func isReserved(b byte) bool { return b <= maxReservedByte }

// CleanPayload returns payload with every reserved protocol byte removed. If
// payload contains no reserved bytes it is returned unchanged without copying.
//
// The protocol is not byte-transparent: payload bytes that collide with the
// marker values are silently dropped rather than escaped. The reserved range
// covers the low control bytes, so printable text passes through intact but
// tabs and newlines do not survive a round trip.
func CleanPayload(payload []byte) []byte {
	i := 0
	for i < len(payload) && !isReserved(payload[i]) {
		i++
	}
	if i == len(payload) {
		return payload
	}
	clean := make([]byte, i, len(payload)-1)
	copy(clean, payload)
	for _, b := range payload[i+1:] {
		if !isReserved(b) {
			clean = append(clean, b)
		}
	}
	return clean
}

// A Frame is one logical message: a kind plus an arbitrary-length payload.
// On the wire a frame is carried as one or more fixed-capacity packets, each
// [header byte][chunk][trailer byte].
type Frame struct {
	Kind    Kind
	Payload []byte
}

// String returns a human-friendly rendering of the frame.
func (f *Frame) String() string {
	if len(f.Payload) > 32 {
		return fmt.Sprintf("Frame(%v, %q ...)", f.Kind, f.Payload[:32])
	}
	return fmt.Sprintf("Frame(%v, %q)", f.Kind, f.Payload)
}

// Encode encodes f into its wire packets.
func (f *Frame) Encode() []byte {
	clean := CleanPayload(f.Payload)
	np := numPackets(len(clean))
	buf := make([]byte, 0, len(clean)+2*np)
	for i := range np {
		chunk := clean[i*chunkSize : min((i+1)*chunkSize, len(clean))]
		buf = append(buf, byte(f.Kind))
		buf = append(buf, chunk...)
		if i == np-1 {
			buf = append(buf, trailerEnd)
		} else {
			buf = append(buf, trailerContinue)
		}
	}
	return buf
}

// WriteTo writes the wire packets of f to w. It satisfies io.WriterTo.
// The payload is split into chunks of at most PacketSize-2 bytes; an empty
// payload still produces a single packet with an empty chunk.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	clean := CleanPayload(f.Payload)
	np := numPackets(len(clean))
	var nw int64
	pkt := make([]byte, 0, PacketSize)
	for i := range np {
		chunk := clean[i*chunkSize : min((i+1)*chunkSize, len(clean))]
		pkt = append(pkt[:0], byte(f.Kind))
		pkt = append(pkt, chunk...)
		if i == np-1 {
			pkt = append(pkt, trailerEnd)
		} else {
			pkt = append(pkt, trailerContinue)
		}
		n, err := w.Write(pkt)
		nw += int64(n)
		if err != nil {
			return nw, err
		}
	}
	return nw, nil
}

// ReadFrom reads one complete frame from r. It satisfies io.ReaderFrom.
//
// The first byte read is the frame kind. Subsequent bytes accumulate into the
// payload until a packet with the end trailer arrives; continuation trailers
// and the repeated header bytes of follow-on packets are reserved values and
// are dropped along with any other reserved byte.
//
// An io.EOF before any byte is read reports an orderly end of stream. An EOF
// inside a frame is reported as io.ErrUnexpectedEOF. ReadFrom blocks until a
// full frame or a stream event arrives; there is no partial-frame timeout, so
// a peer that sends continuation packets forever stalls the read.
func (f *Frame) ReadFrom(r io.Reader) (int64, error) {
	var one [1]byte
	var nr int64

	if _, err := io.ReadFull(r, one[:]); err != nil {
		return nr, err // io.EOF here is an orderly close
	}
	nr++
	f.Kind = Kind(one[0])

	var payload []byte
	for {
		if _, err := io.ReadFull(r, one[:]); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nr, fmt.Errorf("short frame: %w", err)
		}
		nr++
		b := one[0]
		if b == trailerEnd {
			break
		}
		if isReserved(b) {
			continue // continuation trailer or a follow-on packet header
		}
		payload = append(payload, b)
	}
	f.Payload = payload
	return nr, nil
}

// numPackets reports the number of wire packets needed for n payload bytes.
// A zero-length payload still occupies one packet.
func numPackets(n int) int {
	if n == 0 {
		return 1
	}
	return (n + chunkSize - 1) / chunkSize
}

// A Channel is a reliable ordered stream of frames shared by two endpoints.
//
// The methods of an implementation must be safe for concurrent use by one
// sender and one receiver.
type Channel interface {
	// Send the frame in wire format to the receiver.
	Send(*Frame) error

	// Receive the next available frame from the channel.
	Recv() (*Frame, error)

	// Close the channel, causing any pending send or receive operations to
	// terminate and report an error. After a channel is closed, all further
	// operations on it must report an error.
	Close() error
}
