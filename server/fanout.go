// Copyright (C) 2026 The Parlor Authors. All Rights Reserved.

package server

import (
	"github.com/parlorchat/parlor"
	"github.com/parlorchat/parlor/directory"
)

// The fan-out helpers resolve their audience from the directory at call time
// and send one MESSAGE frame per recipient. A send failure to one recipient
// is logged and does not abort delivery to the rest.

// send writes a frame to one channel, counting and logging failures.
func (s *Server) send(ch parlor.Channel, f *parlor.Frame) {
	if err := ch.Send(f); err != nil {
		s.metrics.sendErrors.Add(1)
		s.log.Warn().Err(err).Stringer("kind", f.Kind).Msg("send failed")
		return
	}
	s.metrics.framesOut.Add(1)
}

// sendText sends a MESSAGE frame with the given text to one registered user.
func (s *Server) sendText(id directory.ID, text string) {
	if sess, ok := s.sessions[id]; ok {
		s.send(sess.ch, &parlor.Frame{Kind: parlor.KindMessage, Payload: []byte(text)})
	}
}

// toAll sends text to every registered user.
func (s *Server) toAll(text string) {
	s.metrics.broadcasts.Add(1)
	for _, id := range s.dir.Users() {
		s.sendText(id, text)
	}
}

// toAllExcept sends text to every registered user but one.
func (s *Server) toAllExcept(except directory.ID, text string) {
	s.metrics.broadcasts.Add(1)
	for _, id := range s.dir.Users() {
		if id != except {
			s.sendText(id, text)
		}
	}
}

// toRoom sends text to every occupant of the named room.
func (s *Server) toRoom(room, text string) {
	s.metrics.broadcasts.Add(1)
	ids, err := s.dir.Occupants(room)
	if err != nil {
		return
	}
	for _, id := range ids {
		s.sendText(id, text)
	}
}

// toRoomExcept sends text to every occupant of the named room but one.
func (s *Server) toRoomExcept(except directory.ID, room, text string) {
	s.metrics.broadcasts.Add(1)
	ids, err := s.dir.Occupants(room)
	if err != nil {
		return
	}
	for _, id := range ids {
		if id != except {
			s.sendText(id, text)
		}
	}
}

// toFriends sends text to every confirmed friend of the given user.
func (s *Server) toFriends(id directory.ID, text string) {
	ids, err := s.dir.FriendIDs(id)
	if err != nil {
		return
	}
	for _, fid := range ids {
		s.sendText(fid, text)
	}
}
