// Copyright © 2026 The claspd authors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package server

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/claspvr/claspd/pkg/proto"
	"github.com/claspvr/claspd/pkg/room"
)

// Buffer size of the outbound frame channel per connection.
const sendBuffSize = 32

// A Connection adapts one websocket to the room protocol: it parses inbound
// envelopes, dispatches them to the server, and pumps outbound frames back.
type Connection struct {
	id   uint64
	srv  *Server
	sock *websocket.Conn

	send      chan proto.Envelope
	done      chan struct{}
	closeOnce sync.Once

	// rooms and the hand pose are guarded by srv.mu, like all room state.
	rooms               []*room.Room
	leftHand, rightHand proto.Vector
}

func newConnection(id uint64, srv *Server, sock *websocket.Conn) *Connection {
	return &Connection{
		id:   id,
		srv:  srv,
		sock: sock,
		send: make(chan proto.Envelope, sendBuffSize),
		done: make(chan struct{}),
	}
}

// Send queues an envelope for delivery. It never blocks: frames to a closed
// connection are discarded, and a client that cannot drain its buffer loses
// frames rather than stalling the room.
func (c *Connection) Send(env proto.Envelope) {
	select {
	case <-c.done:
	case c.send <- env:
	default:
		c.srv.Log.WithFields(logrus.Fields{
			"connection": c.id,
			"msg_type":   env.Type,
		}).Warn("Dropping frame to slow client")
	}
}

// closed reports whether the connection has been shut down.
func (c *Connection) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// close shuts the socket down. Idempotent.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.sock.Close()
	})
}

// currentRoom returns the room the connection most recently joined, or nil.
// Callers hold srv.mu.
func (c *Connection) currentRoom() *room.Room {
	if len(c.rooms) == 0 {
		return nil
	}
	return c.rooms[len(c.rooms)-1]
}

// dropRoom forgets a room membership. Callers hold srv.mu.
func (c *Connection) dropRoom(r *room.Room) {
	for i, existing := range c.rooms {
		if existing == r {
			c.rooms = append(c.rooms[:i], c.rooms[i+1:]...)
			return
		}
	}
}

// writePump drains the send channel onto the socket. Write errors close the
// connection; the read pump notices and runs the teardown.
func (c *Connection) writePump() {
	for {
		select {
		case env := <-c.send:
			if err := c.sock.WriteJSON(env); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// readPump decodes inbound frames and hands them to the dispatcher. When it
// returns the connection is removed from the server, which makes it leave
// its rooms.
func (c *Connection) readPump() {
	defer func() {
		c.close()
		c.srv.removeConnection(c)
	}()

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			return
		}

		var env proto.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.srv.protocolError(c, logrus.Fields{"error": err}, "Undecodable frame")
			continue
		}
		c.srv.dispatch(c, &env)
	}
}
