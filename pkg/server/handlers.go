// Copyright © 2026 The claspd authors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package server

import (
	"github.com/sirupsen/logrus"

	"github.com/claspvr/claspd/pkg/geom"
	"github.com/claspvr/claspd/pkg/match"
	"github.com/claspvr/claspd/pkg/proto"
	"github.com/claspvr/claspd/pkg/room"
)

// dispatch routes one inbound envelope to its handler. The switch is
// deliberately closed: a new message type must be wired here or it is a
// protocol error.
func (s *Server) dispatch(c *Connection, env *proto.Envelope) {
	switch env.Type {
	case proto.TypeJoinRoom:
		s.handleJoinRoom(c, env)
	case proto.TypeJoinRoomWithMatch:
		s.handleJoinRoomWithMatch(c, env)
	case proto.TypeLeaveRoom:
		s.handleLeaveRoom(c, env)
	case proto.TypeCreateRoom:
		s.handleCreateRoom(c, env)
	case proto.TypeDestroyRoom:
		s.handleDestroyRoom(c, env)
	case proto.TypeRequestMemberResponse:
		s.handleRequestMemberResponse(c, env)
	case proto.TypeMessageFromPrimary:
		s.handleMessageFromPrimary(c, env)
	case proto.TypeMessageFromSecondary:
		s.handleMessageFromSecondary(c, env)
	default:
		s.protocolError(c, logrus.Fields{"msg_type": int(env.Type)}, "No handler for message type")
	}
}

func (s *Server) handleJoinRoom(c *Connection, env *proto.Envelope) {
	result := proto.InvalidParameters
	if env.RoomID != "" {
		s.mu.Lock()
		r := s.directory.Find(env.RoomID)
		if r == nil {
			result = proto.NoSuchRoom
		} else {
			result = r.Join(c, nil)
			if result == proto.Success {
				c.rooms = append(c.rooms, r)
			}
		}
		s.mu.Unlock()
	}

	c.Send(proto.Envelope{
		Type:   proto.TypeJoinRoomResponse,
		RoomID: env.RoomID,
		Result: result.Ptr(),
	})
}

func (s *Server) handleJoinRoomWithMatch(c *Connection, env *proto.Envelope) {
	if env.LeftHandPosition == nil || env.RightHandPosition == nil {
		c.Send(proto.Envelope{
			Type:   proto.TypeJoinRoomWithMatchResponse,
			Result: proto.InvalidParameters.Ptr(),
		})
		return
	}

	left := *env.LeftHandPosition
	right := *env.RightHandPosition

	s.mu.Lock()
	c.leftHand = left
	c.rightHand = right
	s.mu.Unlock()

	// The matcher is fed outside the server lock; its match callback takes
	// the lock itself.
	s.matcher.AddSample(match.Sample{
		LeftHeight:  left.Y,
		RightHeight: right.Y,
		Distance:    geom.Distance(left, right),
		Context:     c,
	})
}

func (s *Server) handleLeaveRoom(c *Connection, env *proto.Envelope) {
	result := proto.InvalidParameters
	if env.RoomID != "" {
		s.mu.Lock()
		r := s.directory.Find(env.RoomID)
		if r == nil {
			result = proto.NoSuchRoom
		} else {
			result = r.Leave(c)
			if result == proto.Success {
				c.dropRoom(r)
				s.collectRoomLocked(r)
			}
		}
		s.mu.Unlock()
	}

	c.Send(proto.Envelope{
		Type:   proto.TypeLeaveRoomResponse,
		RoomID: env.RoomID,
		Result: result.Ptr(),
	})
}

func (s *Server) handleCreateRoom(c *Connection, env *proto.Envelope) {
	s.mu.Lock()
	r := s.directory.Create(c)
	s.trackRoomHighWaterLocked()
	s.mu.Unlock()

	s.Log.WithFields(logrus.Fields{
		"connection": c.id,
		"room":       r.ID(),
	}).Info("Room created")

	c.Send(proto.Envelope{
		Type:   proto.TypeCreateRoomResponse,
		RoomID: r.ID(),
		Result: proto.Success.Ptr(),
	})
}

func (s *Server) handleDestroyRoom(c *Connection, env *proto.Envelope) {
	result := proto.InvalidParameters
	if env.RoomID != "" {
		s.mu.Lock()
		var members []room.Conn
		if r := s.directory.Find(env.RoomID); r != nil {
			members = r.MemberConns()
		}
		result = s.directory.Destroy(c, env.RoomID)
		if result == proto.Success {
			// Ejected members no longer belong to the room.
			for _, member := range members {
				if mc, ok := member.(*Connection); ok {
					mc.rooms = removeRoomByID(mc.rooms, env.RoomID)
				}
			}
		}
		s.mu.Unlock()
	}

	c.Send(proto.Envelope{
		Type:   proto.TypeDestroyRoomResponse,
		RoomID: env.RoomID,
		Result: result.Ptr(),
	})
}

func removeRoomByID(rooms []*room.Room, roomID string) []*room.Room {
	out := rooms[:0]
	for _, r := range rooms {
		if r.ID() != roomID {
			out = append(out, r)
		}
	}
	return out
}

func (s *Server) handleRequestMemberResponse(c *Connection, env *proto.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.directory.Find(env.RoomID); r != nil {
		r.MemberInitInfo(c, env.InitInfo)
	}
}

func (s *Server) handleMessageFromPrimary(c *Connection, env *proto.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.directory.Find(env.RoomID); r != nil {
		r.MessageFromPrimary(c, env.Message, env.MessageIsReliable)
	}
}

func (s *Server) handleMessageFromSecondary(c *Connection, env *proto.Envelope) {
	if env.MemberID == 0 {
		s.protocolError(c, nil, "MessageFromSecondary missing required memberId")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.directory.Find(env.RoomID); r != nil {
		r.MessageFromSecondary(c, env.MemberID, env.Message, env.MessageIsReliable)
	}
}

// onHandMatch reacts to gesture matcher events. Timeouts and replacements
// turn into failed join responses; a match merges the two users into the
// host's room.
func (s *Server) onHandMatch(result match.Result, contexts []any) {
	switch result {
	case match.TimedOut, match.Replaced:
		code := proto.MatchTimedOut
		if result == match.Replaced {
			code = proto.ClickReplaced
		}
		for _, ctx := range contexts {
			ctx.(*Connection).Send(proto.Envelope{
				Type:   proto.TypeJoinRoomWithMatchResponse,
				Result: code.Ptr(),
			})
		}

	case match.Matched:
		s.joinMatched(contexts[0].(*Connection), contexts[1].(*Connection))
	}
}

// joinMatched places two matched connections into one shared room. The side
// whose current room has more members hosts; ties go to the first context.
func (s *Server) joinMatched(a, b *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A match that completes after one side already disconnected cannot be
	// honored; tell the survivor its peer is gone.
	disconnected := proto.Envelope{
		Type:   proto.TypeJoinRoomWithMatchResponse,
		Result: proto.Disconnected.Ptr(),
	}
	switch {
	case a.closed() && b.closed():
		return
	case a.closed():
		b.Send(disconnected)
		return
	case b.closed():
		a.Send(disconnected)
		return
	}

	roomA, roomB := a.currentRoom(), b.currentRoom()
	if roomA != nil && roomA == roomB {
		// Re-matching within one room would reposition the members relative
		// to each other, which is not supported yet. Drop the match; the
		// clients already share a room.
		s.Log.WithField("room", roomA.ID()).Warn("Matched members already share a room; reposition is not supported")
		return
	}

	host, joiner := a, b
	if memberCount(roomB) > memberCount(roomA) {
		host, joiner = b, a
	}

	hostRoom := host.currentRoom()
	if hostRoom == nil {
		hostRoom = s.directory.Create(host)
		s.trackRoomHighWaterLocked()
		hostRoom.Join(host, nil)
		host.rooms = append(host.rooms, hostRoom)
	}

	roomFromHost, ok := hostRoom.RoomFromMember(host)
	if !ok {
		s.Log.WithField("room", hostRoom.ID()).Error("Host is not a member of its own room")
		return
	}
	hostFromJoiner := geom.HostFromJoiner(roomFromHost, host.leftHand, host.rightHand, joiner.leftHand, joiner.rightHand)

	response := proto.Envelope{
		Type:   proto.TypeJoinRoomWithMatchResponse,
		RoomID: hostRoom.ID(),
		Result: proto.Success.Ptr(),
	}
	host.Send(response)
	joiner.Send(response)

	for _, r := range joiner.rooms {
		r.Leave(joiner)
		s.collectRoomLocked(r)
	}
	joiner.rooms = nil

	if res := hostRoom.JoinViaHost(joiner, host, hostFromJoiner); res != proto.Success {
		s.Log.WithFields(logrus.Fields{
			"room":   hostRoom.ID(),
			"result": res,
		}).Error("Matched join failed")
		return
	}
	joiner.rooms = append(joiner.rooms, hostRoom)

	s.Log.WithFields(logrus.Fields{
		"room":   hostRoom.ID(),
		"host":   host.id,
		"joiner": joiner.id,
	}).Info("Gesture match joined room")
}

func memberCount(r *room.Room) int {
	if r == nil {
		return 0
	}
	return r.Len()
}
