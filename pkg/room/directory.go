// Copyright © 2026 The claspd authors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package room

import (
	"github.com/sirupsen/logrus"

	"github.com/claspvr/claspd/pkg/proto"
)

// A Directory creates, looks up, and destroys rooms by id. Like Room it is
// not safe for concurrent use; the server serializes access.
type Directory struct {
	rooms map[string]*Room
	log   *logrus.Logger
}

// NewDirectory makes an empty directory.
func NewDirectory(log *logrus.Logger) *Directory {
	return &Directory{
		rooms: make(map[string]*Room),
		log:   log,
	}
}

// Create makes a new room owned by the given connection.
func (d *Directory) Create(owner Conn) *Room {
	r := newRoom(owner, d.log)
	d.rooms[r.id] = r
	return r
}

// Find returns the room with the given id, or nil.
func (d *Directory) Find(roomID string) *Room {
	if roomID == "" {
		return nil
	}
	return d.rooms[roomID]
}

// Destroy ejects all members of a room and removes it. Only the owning
// connection may destroy a room; ownership is checked by reference identity.
func (d *Directory) Destroy(requester Conn, roomID string) proto.Result {
	r := d.Find(roomID)
	if r == nil {
		return proto.NoSuchRoom
	}
	if r.owner != requester {
		return proto.PermissionDenied
	}

	r.EjectAll()
	delete(d.rooms, roomID)
	return proto.Success
}

// Remove drops a room without notifying anyone. Used by the server's
// empty-room collection; destruction on behalf of a client goes through
// Destroy.
func (d *Directory) Remove(roomID string) {
	delete(d.rooms, roomID)
}

// Len returns the number of live rooms.
func (d *Directory) Len() int {
	return len(d.rooms)
}
