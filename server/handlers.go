// Copyright (C) 2026 The Parlor Authors. All Rights Reserved.

package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/parlorchat/parlor"
	"github.com/parlorchat/parlor/directory"
)

// handleFrame routes one inbound frame from a registered session by kind.
// Handlers only touch the directory and emit frames; they never block on
// other I/O. Command rejections are answered to the requester only and never
// terminate the connection.
func (s *Server) handleFrame(id directory.ID, f *parlor.Frame) {
	u, ok := s.dir.UserByID(id)
	if !ok {
		return
	}
	text := string(f.Payload)

	switch f.Kind {
	case parlor.KindDisconnect:
		s.dropSession(id, nil)

	case parlor.KindMessage:
		s.toRoomExcept(id, u.Room(), fmt.Sprintf("[%s] | %s", u.Name(), text))

	case parlor.KindJoinRoom:
		s.handleJoinRoom(id, u, strings.TrimSpace(text))

	case parlor.KindAuthenticate:
		if text != s.cfg.passphrase() {
			s.log.Warn().Str("name", u.Name()).Msg("bad administrator passphrase")
			s.sendText(id, "invalid code")
			return
		}
		s.dir.SetAdmin(id)
		s.log.Info().Str("name", u.Name()).Msg("administrator authenticated")
		s.sendText(id, "you are now an administrator")

	case parlor.KindFriendRequest:
		s.handleFriendRequest(id, u, strings.TrimSpace(text))

	case parlor.KindFriendsList:
		friends, _ := s.dir.FriendNames(id)
		pending, _ := s.dir.PendingNames(id)
		s.sendText(id, fmt.Sprintf("friends: %s | pending: %s", nameList(friends), nameList(pending)))

	case parlor.KindRoomList:
		names, _ := s.dir.OccupantNames(u.Room())
		s.sendText(id, fmt.Sprintf("room %s: %s", u.Room(), nameList(names)))

	case parlor.KindWhisper:
		s.handleWhisper(id, u, text)

	case parlor.KindAdminShutoff:
		if !s.dir.IsAdmin(id) {
			s.sendText(id, "must be administrator")
			return
		}
		s.log.Info().Str("name", u.Name()).Msg("administrator stopped the server")
		s.toAll("server is shutting down")
		s.stopping = true

	case parlor.KindAdminAnnounce:
		if !s.dir.IsAdmin(id) {
			s.sendText(id, "must be administrator")
			return
		}
		s.toAll(fmt.Sprintf("[server] | %s", text))

	default:
		s.metrics.framesDropped.Add(1)
		s.log.Warn().Stringer("kind", f.Kind).Str("name", u.Name()).Msg("unrecognized frame kind")
	}
}

// handleJoinRoom moves a user between rooms, announcing the departure to the
// old room and the arrival to the new one. A move to the user's current room
// performs a full leave and rejoin, announcements included.
func (s *Server) handleJoinRoom(id directory.ID, u *directory.User, room string) {
	if room == "" {
		s.sendText(id, "need a room name")
		return
	}
	left, err := s.dir.Move(id, room)
	if err != nil {
		return // the session raced its own teardown
	}
	s.log.Info().Str("name", u.Name()).Str("from", left).Str("to", room).Msg("user moved")
	s.toRoom(left, fmt.Sprintf("%s has left %s", u.Name(), left))
	s.toRoomExcept(id, room, fmt.Sprintf("%s has joined %s", u.Name(), room))
	s.sendText(id, fmt.Sprintf("you are now in %s", room))
}

// handleFriendRequest records or resolves a friend request and notifies the
// parties involved.
func (s *Server) handleFriendRequest(id directory.ID, u *directory.User, target string) {
	st, err := s.dir.RequestFriend(id, target)
	if err != nil {
		switch {
		case errors.Is(err, directory.ErrUnknownUser):
			s.sendText(id, fmt.Sprintf("%s does not exist", target))
		case errors.Is(err, directory.ErrSelfFriend):
			s.sendText(id, "cannot friend yourself")
		case errors.Is(err, directory.ErrAlreadyPending):
			s.sendText(id, "friend request already pending")
		case errors.Is(err, directory.ErrAlreadyFriends):
			s.sendText(id, fmt.Sprintf("%s is already your friend", target))
		}
		return
	}
	t, _ := s.dir.UserByName(target)
	switch st {
	case directory.FriendAccepted:
		s.sendText(id, fmt.Sprintf("you are now friends with %s", target))
		s.sendText(t.ID(), fmt.Sprintf("you are now friends with %s", u.Name()))
	case directory.FriendPending:
		s.sendText(id, fmt.Sprintf("friend request sent to %s", target))
		s.sendText(t.ID(), fmt.Sprintf("%s has sent you a friend request", u.Name()))
	}
}

// handleWhisper delivers a private message. The payload is the target name
// followed by the message text, separated by a space.
func (s *Server) handleWhisper(id directory.ID, u *directory.User, payload string) {
	target, text, _ := strings.Cut(payload, " ")
	t, ok := s.dir.UserByName(target)
	if !ok {
		s.sendText(id, fmt.Sprintf("%s does not exist", target))
		return
	}
	if t.ID() == id {
		s.sendText(id, "cannot whisper to yourself")
		return
	}
	s.sendText(t.ID(), fmt.Sprintf("[%s] (whisper) | %s", u.Name(), text))
}

// nameList renders a list of names for a reply payload.
func nameList(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}
