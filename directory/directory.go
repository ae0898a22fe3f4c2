// Copyright (C) 2026 The Parlor Authors. All Rights Reserved.

// Package directory maintains the server's in-memory registry of connected
// users, their room memberships, the friendship graph, and the administrator
// set.
//
// Users are stored in a single arena keyed by a stable [ID]; rooms, friend
// sets, and pending requests refer to users by ID and are resolved through
// the Directory. A Directory is not safe for concurrent use: it is owned by
// exactly one dispatching goroutine.
package directory

import (
	"errors"
	"fmt"
	"slices"

	"github.com/creachadair/mds/mapset"
	"github.com/google/uuid"
)

// Errors reported by Directory operations.
var (
	ErrNameTaken      = errors.New("name already taken")
	ErrInvalidName    = errors.New("invalid name")
	ErrUnknownUser    = errors.New("unknown user")
	ErrUnknownRoom    = errors.New("unknown room")
	ErrSelfFriend     = errors.New("cannot friend yourself")
	ErrAlreadyFriends = errors.New("already friends")
	ErrAlreadyPending = errors.New("friend request already pending")
	ErrNotFriends     = errors.New("not friends")
)

// An ID uniquely identifies a registered user for the lifetime of the
// process. IDs are never reused, even after the user unregisters.
type ID uuid.UUID

// NewID returns a fresh unique ID.
func NewID() ID { return ID(uuid.New()) }

func (id ID) String() string { return uuid.UUID(id).String() }

// A User is one registered chat participant. All fields are managed by the
// owning Directory; a User value obtained from a Directory remains valid only
// until the user unregisters.
type User struct {
	id   ID
	name string
	room string

	friends mapset.Set[ID] // confirmed friendships, symmetric
	pending mapset.Set[ID] // inbound requests not yet accepted
}

// ID reports the stable ID of u.
func (u *User) ID() ID { return u.id }

// Name reports the display name of u. Names are unique among registered
// users and immutable after registration.
func (u *User) Name() string { return u.name }

// Room reports the name of the room u currently occupies.
func (u *User) Room() string { return u.room }

// A Directory is the aggregate registry of users, rooms, friendships, and
// administrators. The zero value is not ready for use; call New.
type Directory struct {
	defaultRoom string

	users  map[ID]*User              // arena of live users
	byName map[string]ID             // display name -> ID, agrees with users
	rooms  map[string]mapset.Set[ID] // room name -> occupants
	admins mapset.Set[ID]            // subset of live users
}

// New constructs an empty Directory whose default room has the given name.
// The default room exists before any user registers.
func New(defaultRoom string) *Directory {
	return &Directory{
		defaultRoom: defaultRoom,
		users:       make(map[ID]*User),
		byName:      make(map[string]ID),
		rooms:       map[string]mapset.Set[ID]{defaultRoom: mapset.New[ID]()},
		admins:      mapset.New[ID](),
	}
}

// DefaultRoom reports the name of the default room.
func (d *Directory) DefaultRoom() string { return d.defaultRoom }

// Register creates a new user with the given display name and places it in
// the default room. It reports ErrInvalidName if name is empty, and
// ErrNameTaken if another registered user already holds the name.
func (d *Directory) Register(name string) (*User, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	if _, ok := d.byName[name]; ok {
		return nil, fmt.Errorf("register %q: %w", name, ErrNameTaken)
	}
	u := &User{
		id:      NewID(),
		name:    name,
		room:    d.defaultRoom,
		friends: mapset.New[ID](),
		pending: mapset.New[ID](),
	}
	d.users[u.id] = u
	d.byName[name] = u.id
	r := d.rooms[d.defaultRoom]
	r.Add(u.id)
	return u, nil
}

// Unregister removes the user with the given ID: it drops administrator
// status, clears the user from every friend's confirmed set and every pending
// set, removes it from its room, and deletes it from both indices.
func (d *Directory) Unregister(id ID) error {
	u, ok := d.users[id]
	if !ok {
		return ErrUnknownUser
	}
	d.admins.Remove(id)
	for fid := range u.friends {
		if f, ok := d.users[fid]; ok {
			f.friends.Remove(id)
		}
	}
	// Withdraw any requests the user sent that were never answered.
	for _, other := range d.users {
		other.pending.Remove(id)
	}
	d.rooms[u.room].Remove(id)
	delete(d.byName, u.name)
	delete(d.users, id)
	return nil
}

// Move transfers the user to the named room, creating the room if it does
// not exist, and reports the name of the room the user left. Moving a user
// to its current room performs a full leave and rejoin.
func (d *Directory) Move(id ID, room string) (left string, _ error) {
	u, ok := d.users[id]
	if !ok {
		return "", ErrUnknownUser
	}
	left = u.room
	d.rooms[left].Remove(id)
	r, ok := d.rooms[room]
	if !ok {
		r = mapset.New[ID]()
		d.rooms[room] = r
	}
	r.Add(id)
	u.room = room
	return left, nil
}

// FriendStatus describes the outcome of a successful RequestFriend call.
type FriendStatus int

const (
	FriendPending  FriendStatus = iota // request recorded, awaiting acceptance
	FriendAccepted                     // both sides are now confirmed friends
)

// RequestFriend records or resolves a friend request from the user with ID
// from toward the user named target.
//
// If from already holds a pending request sent by target, the two requests
// resolve as an acceptance: both pending entries are cleared and the mutual
// confirmed edges are created atomically, reported as FriendAccepted.
// Otherwise a directional pending entry is recorded on the target, reported
// as FriendPending.
func (d *Directory) RequestFriend(from ID, target string) (FriendStatus, error) {
	u, ok := d.users[from]
	if !ok {
		return 0, ErrUnknownUser
	}
	tid, ok := d.byName[target]
	if !ok {
		return 0, fmt.Errorf("friend %q: %w", target, ErrUnknownUser)
	}
	if tid == from {
		return 0, ErrSelfFriend
	}
	t := d.users[tid]
	if u.friends.Has(tid) {
		return 0, ErrAlreadyFriends
	}
	if u.pending.Has(tid) {
		u.pending.Remove(tid)
		t.pending.Remove(from)
		u.friends.Add(tid)
		t.friends.Add(from)
		return FriendAccepted, nil
	}
	if t.pending.Has(from) {
		return 0, ErrAlreadyPending
	}
	t.pending.Add(from)
	return FriendPending, nil
}

// Unfriend removes the confirmed friendship between the user with ID from
// and the user named target, clearing both edges.
func (d *Directory) Unfriend(from ID, target string) error {
	u, ok := d.users[from]
	if !ok {
		return ErrUnknownUser
	}
	tid, ok := d.byName[target]
	if !ok {
		return fmt.Errorf("unfriend %q: %w", target, ErrUnknownUser)
	}
	if !u.friends.Has(tid) {
		return ErrNotFriends
	}
	u.friends.Remove(tid)
	d.users[tid].friends.Remove(from)
	return nil
}

// SetAdmin grants administrator privilege to the user with the given ID.
// The privilege lasts until the user unregisters.
func (d *Directory) SetAdmin(id ID) error {
	if _, ok := d.users[id]; !ok {
		return ErrUnknownUser
	}
	d.admins.Add(id)
	return nil
}

// IsAdmin reports whether the user with the given ID holds administrator
// privilege.
func (d *Directory) IsAdmin(id ID) bool { return d.admins.Has(id) }

// UserByID returns the user with the given ID, if one is registered.
func (d *Directory) UserByID(id ID) (*User, bool) {
	u, ok := d.users[id]
	return u, ok
}

// UserByName returns the user with the given display name, if one is
// registered.
func (d *Directory) UserByName(name string) (*User, bool) {
	id, ok := d.byName[name]
	if !ok {
		return nil, false
	}
	return d.users[id], true
}

// RoomOf reports the name of the room occupied by the user with the given ID.
func (d *Directory) RoomOf(id ID) (string, error) {
	u, ok := d.users[id]
	if !ok {
		return "", ErrUnknownUser
	}
	return u.room, nil
}

// Users returns the IDs of all registered users, in unspecified order.
func (d *Directory) Users() []ID {
	ids := make([]ID, 0, len(d.users))
	for id := range d.users {
		ids = append(ids, id)
	}
	return ids
}

// Occupants returns the IDs of the users currently in the named room, in
// unspecified order. It reports ErrUnknownRoom if no such room exists.
func (d *Directory) Occupants(room string) ([]ID, error) {
	occ, ok := d.rooms[room]
	if !ok {
		return nil, fmt.Errorf("room %q: %w", room, ErrUnknownRoom)
	}
	ids := make([]ID, 0, len(occ))
	for id := range occ {
		ids = append(ids, id)
	}
	return ids, nil
}

// OccupantNames returns the sorted display names of the users currently in
// the named room.
func (d *Directory) OccupantNames(room string) ([]string, error) {
	ids, err := d.Occupants(room)
	if err != nil {
		return nil, err
	}
	return d.sortedNames(ids), nil
}

// Rooms returns the names of all rooms in lexicographic order. Rooms persist
// once created, even when they become empty.
func (d *Directory) Rooms() []string {
	names := make([]string, 0, len(d.rooms))
	for name := range d.rooms {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// FriendIDs returns the IDs of the confirmed friends of the user with the
// given ID, in unspecified order.
func (d *Directory) FriendIDs(id ID) ([]ID, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, ErrUnknownUser
	}
	ids := make([]ID, 0, len(u.friends))
	for fid := range u.friends {
		ids = append(ids, fid)
	}
	return ids, nil
}

// FriendNames returns the sorted display names of the confirmed friends of
// the user with the given ID.
func (d *Directory) FriendNames(id ID) ([]string, error) {
	ids, err := d.FriendIDs(id)
	if err != nil {
		return nil, err
	}
	return d.sortedNames(ids), nil
}

// PendingNames returns the sorted display names of the users whose friend
// requests toward the given user are still awaiting acceptance.
func (d *Directory) PendingNames(id ID) ([]string, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, ErrUnknownUser
	}
	ids := make([]ID, 0, len(u.pending))
	for pid := range u.pending {
		ids = append(ids, pid)
	}
	return d.sortedNames(ids), nil
}

func (d *Directory) sortedNames(ids []ID) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			names = append(names, u.name)
		}
	}
	slices.Sort(names)
	return names
}
