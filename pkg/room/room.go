// Copyright © 2026 The claspd authors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package room owns room membership and message relay between members.
// Rooms do no locking of their own; the server serializes every operation
// that touches a room, and the only I/O a room performs is fire-and-forget
// sends through the Conn interface.
package room

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/claspvr/claspd/pkg/geom"
	"github.com/claspvr/claspd/pkg/proto"
)

// Conn is the transport-facing side of a room member. Send must never block
// and must be safe to call on a closed connection. Members are identified by
// Conn reference identity, never by transmitted credentials.
type Conn interface {
	Send(env proto.Envelope)
}

// A Member is one connection's membership record within a room.
type Member struct {
	conn Conn

	// id is unique within the room, never 0; call sites use 0 as a
	// "no member" sentinel.
	id int

	// roomFromMember is the member's pose in the room frame.
	roomFromMember proto.Transform

	// peersToCreate holds the members who joined before this one's init info
	// was broadcast. Primary messages from this member are withheld from
	// them until the info goes out, so no peer sees an update for a member
	// it has not been told to create.
	peersToCreate []Conn
}

// ID returns the member's room-scoped id.
func (m *Member) ID() int {
	return m.id
}

// Conn returns the member's connection.
func (m *Member) Conn() Conn {
	return m.conn
}

// A Room relays state between an ordered list of members. The owner is the
// connection the room was created for; only the owner may destroy it.
type Room struct {
	id      string
	owner   Conn
	members []*Member

	// nextMemberID starts at 1 so 0 stays free as a sentinel.
	nextMemberID int

	// pending tracks deferred notices so destroying the room cannot leave a
	// timer firing into cleared state.
	pending []*time.Timer

	log *logrus.Logger
}

func newRoom(owner Conn, log *logrus.Logger) *Room {
	return &Room{
		id:           uuid.NewString(),
		owner:        owner,
		nextMemberID: 1,
		log:          log,
	}
}

// ID returns the room's unique id.
func (r *Room) ID() string {
	return r.id
}

// Owner returns the connection that created the room.
func (r *Room) Owner() Conn {
	return r.owner
}

// Len returns the current member count.
func (r *Room) Len() int {
	return len(r.members)
}

// MemberConns returns the connections of all current members.
func (r *Room) MemberConns() []Conn {
	conns := make([]Conn, len(r.members))
	for i, m := range r.members {
		conns[i] = m.conn
	}
	return conns
}

func (r *Room) findMember(conn Conn) *Member {
	for _, m := range r.members {
		if m.conn == conn {
			return m
		}
	}
	return nil
}

func (r *Room) findMemberByID(id int) *Member {
	for _, m := range r.members {
		if m.id == id {
			return m
		}
	}
	return nil
}

// Join adds a connection to the room. Every existing member is told to
// broadcast its init info for the newcomer, and the newcomer is asked for its
// own info on a deferred notice so the existing members have registered it as
// a pending peer before its info can arrive. A nil roomFromMember means the
// identity transform.
func (r *Room) Join(conn Conn, roomFromMember *proto.Transform) proto.Result {
	if r.findMember(conn) != nil {
		return proto.AlreadyInThisRoom
	}

	infoRequest := proto.Envelope{
		Type:   proto.TypeRequestMemberInfo,
		RoomID: r.id,
	}
	for _, m := range r.members {
		m.conn.Send(infoRequest)
		m.peersToCreate = append(m.peersToCreate, conn)
	}

	if len(r.members) > 0 {
		r.pending = append(r.pending, time.AfterFunc(0, func() {
			conn.Send(infoRequest)
		}))
	}

	tf := proto.Transform{}
	if roomFromMember != nil {
		tf = *roomFromMember
	}

	member := &Member{
		conn:           conn,
		id:             r.nextMemberID,
		roomFromMember: tf,
		peersToCreate:  r.MemberConns(),
	}
	r.nextMemberID++
	r.members = append(r.members, member)

	conn.Send(proto.Envelope{
		Type:           proto.TypeUpdateRoomInfo,
		RoomID:         r.id,
		RoomFromMember: &member.roomFromMember,
	})
	return proto.Success
}

// JoinViaHost places a gesture-matched connection into the room relative to
// the host it matched with: the newcomer's room pose is the host's room pose
// composed with the host-from-member transform from the alignment.
func (r *Room) JoinViaHost(conn, host Conn, hostFromMember proto.Transform) proto.Result {
	hostMember := r.findMember(host)
	if hostMember == nil {
		return proto.UnknownMember
	}

	roomFromMember := geom.Compose(hostMember.roomFromMember, hostFromMember)
	return r.Join(conn, &roomFromMember)
}

// Leave removes a connection from the room and tells the remaining members
// it is gone.
func (r *Room) Leave(conn Conn) proto.Result {
	memberID := 0
	for i, m := range r.members {
		if m.conn == conn {
			memberID = m.id
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
	if memberID == 0 {
		return proto.UnknownMember
	}

	left := proto.Envelope{
		Type:     proto.TypeMemberLeft,
		RoomID:   r.id,
		MemberID: memberID,
	}
	for _, m := range r.members {
		m.conn.Send(left)
	}
	return proto.Success
}

// EjectAll notifies every member that the room is gone and clears
// membership. Used when the room is destroyed.
func (r *Room) EjectAll() {
	for _, t := range r.pending {
		t.Stop()
	}
	r.pending = nil

	ejected := proto.Envelope{
		Type:   proto.TypeEjectedFromRoom,
		RoomID: r.id,
	}
	for _, m := range r.members {
		m.conn.Send(ejected)
	}
	r.members = nil
}

// MemberInitInfo fans a member's init payload out to every peer still
// waiting to create it, then clears the pending set.
func (r *Room) MemberInitInfo(conn Conn, initInfo json.RawMessage) {
	member := r.findMember(conn)
	if member == nil {
		r.log.WithField("room", r.id).Warn("Member init info from a non-member")
		return
	}

	add := proto.Envelope{
		Type:           proto.TypeAddRemoteMember,
		RoomID:         r.id,
		MemberID:       member.id,
		RoomFromMember: &member.roomFromMember,
		InitInfo:       initInfo,
	}
	for _, peer := range member.peersToCreate {
		peer.Send(add)
	}
	member.peersToCreate = nil
}

// MessageFromPrimary broadcasts an authoritative-state update from a member
// to every other member, except peers that have not yet been told the sender
// exists.
func (r *Room) MessageFromPrimary(conn Conn, message json.RawMessage, reliable bool) {
	member := r.findMember(conn)
	if member == nil {
		r.log.WithField("room", r.id).Warn("Primary message from a non-member")
		return
	}

	primary := proto.Envelope{
		Type:              proto.TypeMessageFromPrimary,
		RoomID:            r.id,
		MemberID:          member.id,
		Message:           message,
		MessageIsReliable: reliable,
	}
	for _, peer := range r.members {
		if peer.conn == conn || containsConn(member.peersToCreate, peer.conn) {
			continue
		}
		peer.conn.Send(primary)
	}
}

// MessageFromSecondary routes a point-to-point message to exactly the member
// identified by peerID. A bad sender or target is logged and dropped.
func (r *Room) MessageFromSecondary(conn Conn, peerID int, message json.RawMessage, reliable bool) {
	if r.findMember(conn) == nil {
		r.log.WithField("room", r.id).Warn("Secondary message from a non-member")
		return
	}
	peer := r.findMemberByID(peerID)
	if peer == nil {
		r.log.WithFields(logrus.Fields{
			"room":   r.id,
			"member": peerID,
		}).Warn("Secondary message for a non-member")
		return
	}

	peer.conn.Send(proto.Envelope{
		Type:              proto.TypeMessageFromSecondary,
		RoomID:            r.id,
		MemberID:          peerID,
		Message:           message,
		MessageIsReliable: reliable,
	})
}

// RoomFromMember returns a member's current pose in the room frame.
func (r *Room) RoomFromMember(conn Conn) (proto.Transform, bool) {
	member := r.findMember(conn)
	if member == nil {
		return proto.Transform{}, false
	}
	return member.roomFromMember, true
}

func containsConn(conns []Conn, conn Conn) bool {
	for _, c := range conns {
		if c == conn {
			return true
		}
	}
	return false
}
