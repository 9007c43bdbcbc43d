// Copyright © 2026 The claspd authors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package proto defines the wire protocol spoken between the room server and
// its clients. Every frame is one complete JSON text carrying an Envelope;
// the Type field selects which of the optional fields are meaningful.
package proto

import "encoding/json"

// MessageType identifies the kind of message carried by an Envelope.
type MessageType int

const (
	TypeUnknown MessageType = 0

	TypeJoinRoom                  MessageType = 100
	TypeJoinRoomResponse          MessageType = 101
	TypeLeaveRoom                 MessageType = 102
	TypeLeaveRoomResponse         MessageType = 103
	TypeJoinRoomWithMatch         MessageType = 104
	TypeJoinRoomWithMatchResponse MessageType = 105

	TypeCreateRoom          MessageType = 201
	TypeCreateRoomResponse  MessageType = 202
	TypeDestroyRoom         MessageType = 203
	TypeDestroyRoomResponse MessageType = 204

	TypeEjectedFromRoom       MessageType = 301
	TypeRequestMemberInfo     MessageType = 302
	TypeRequestMemberResponse MessageType = 303
	TypeAddRemoteMember       MessageType = 304
	TypeMemberLeft            MessageType = 305
	TypeMessageFromPrimary    MessageType = 306
	TypeMessageFromSecondary  MessageType = 307
	TypeUpdateRoomInfo        MessageType = 308
)

// String names a message type for logs.
func (t MessageType) String() string {
	switch t {
	case TypeJoinRoom:
		return "JoinRoom"
	case TypeJoinRoomResponse:
		return "JoinRoomResponse"
	case TypeLeaveRoom:
		return "LeaveRoom"
	case TypeLeaveRoomResponse:
		return "LeaveRoomResponse"
	case TypeJoinRoomWithMatch:
		return "JoinRoomWithMatch"
	case TypeJoinRoomWithMatchResponse:
		return "JoinRoomWithMatchResponse"
	case TypeCreateRoom:
		return "CreateRoom"
	case TypeCreateRoomResponse:
		return "CreateRoomResponse"
	case TypeDestroyRoom:
		return "DestroyRoom"
	case TypeDestroyRoomResponse:
		return "DestroyRoomResponse"
	case TypeEjectedFromRoom:
		return "EjectedFromRoom"
	case TypeRequestMemberInfo:
		return "RequestMemberInfo"
	case TypeRequestMemberResponse:
		return "RequestMemberResponse"
	case TypeAddRemoteMember:
		return "AddRemoteMember"
	case TypeMemberLeft:
		return "MemberLeft"
	case TypeMessageFromPrimary:
		return "MessageFromPrimary"
	case TypeMessageFromSecondary:
		return "MessageFromSecondary"
	case TypeUpdateRoomInfo:
		return "UpdateRoomInfo"
	default:
		return "Unknown"
	}
}

// Result reports the outcome of a room operation.
// Failures are negative so new success-ish codes can be added above zero.
type Result int

const (
	Success        Result = 0
	UnknownFailure Result = -1

	NoSuchRoom        Result = -1001
	PermissionDenied  Result = -1002
	InvalidParameters Result = -1003
	AlreadyInThisRoom Result = -1004
	UnknownMember     Result = -1005
	Disconnected      Result = -1006
	MatchTimedOut     Result = -1007
	ClickReplaced     Result = -1008
)

// Ptr returns a pointer to r, for filling the optional Result envelope field.
func (r Result) Ptr() *Result {
	return &r
}

// String names a result code for logs.
func (r Result) String() string {
	switch r {
	case Success:
		return "Success"
	case NoSuchRoom:
		return "NoSuchRoom"
	case PermissionDenied:
		return "PermissionDenied"
	case InvalidParameters:
		return "InvalidParameters"
	case AlreadyInThisRoom:
		return "AlreadyInThisRoom"
	case UnknownMember:
		return "UnknownMember"
	case Disconnected:
		return "Disconnected"
	case MatchTimedOut:
		return "MatchTimedOut"
	case ClickReplaced:
		return "ClickReplaced"
	default:
		return "UnknownFailure"
	}
}

// Vector is a position in a member's coordinate space, in meters.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is a rotation. The zero value is not a valid rotation;
// an absent Quaternion means identity.
type Quaternion struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Transform relates two coordinate spaces. Nil fields mean identity, so the
// zero Transform is the identity transform.
type Transform struct {
	Position *Vector     `json:"position,omitempty"`
	Rotation *Quaternion `json:"rotation,omitempty"`
}

// Envelope is the wire message. Type is always present; every other field is
// meaningful only for specific message types, and consumers must check Type
// before reading any of them.
type Envelope struct {
	Type              MessageType     `json:"type"`
	RoomID            string          `json:"roomId,omitempty"`
	MemberID          int             `json:"memberId,omitempty"`
	Result            *Result         `json:"result,omitempty"`
	InitInfo          json.RawMessage `json:"initInfo,omitempty"`
	Message           json.RawMessage `json:"message,omitempty"`
	MessageIsReliable bool            `json:"messageIsReliable,omitempty"`
	RoomFromMember    *Transform      `json:"roomFromMember,omitempty"`
	LeftHandPosition  *Vector         `json:"leftHandPosition,omitempty"`
	RightHandPosition *Vector         `json:"rightHandPosition,omitempty"`
}
