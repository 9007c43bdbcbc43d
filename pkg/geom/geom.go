// Copyright © 2026 The claspd authors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package geom computes the relative transform between two gesture-matched
// members so that both can share one room coordinate frame. All functions are
// pure; transforms use the wire representation from pkg/proto.
package geom

import (
	"math"

	"github.com/claspvr/claspd/pkg/proto"
)

// Points closer than this in the horizontal plane have no meaningful bearing.
const minYawDistance = 0.001

// Add returns a + b.
func Add(a, b proto.Vector) proto.Vector {
	return proto.Vector{X: a.X + b.X, Y: a.Y + b.Y, Z: a.Z + b.Z}
}

// Sub returns a - b.
func Sub(a, b proto.Vector) proto.Vector {
	return proto.Vector{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z}
}

// Length returns the euclidean length of v.
func Length(v proto.Vector) float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Distance returns the euclidean distance between a and b.
func Distance(a, b proto.Vector) float64 {
	return Length(Sub(a, b))
}

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b proto.Vector) proto.Vector {
	return proto.Vector{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2, Z: (a.Z + b.Z) / 2}
}

// Yaw returns the horizontal bearing from start to end, ignoring the Y axis.
// Nearly coincident points have an undefined bearing and yield 0.
func Yaw(start, end proto.Vector) float64 {
	dx := end.X - start.X
	dz := end.Z - start.Z
	if math.Hypot(dx, dz) < minYawDistance {
		return 0
	}
	return math.Atan2(dz, dx)
}

// YawRotation builds a rotation of angle radians about the vertical axis.
func YawRotation(angle float64) proto.Quaternion {
	return proto.Quaternion{W: math.Cos(angle / 2), Y: math.Sin(angle / 2)}
}

// Rotate applies the rotation q to v.
func Rotate(q proto.Quaternion, v proto.Vector) proto.Vector {
	// v' = v + 2w(u × v) + 2(u × (u × v)), u = (q.X, q.Y, q.Z)
	u := proto.Vector{X: q.X, Y: q.Y, Z: q.Z}
	t := cross(u, v)
	t = proto.Vector{X: 2 * t.X, Y: 2 * t.Y, Z: 2 * t.Z}
	ut := cross(u, t)
	return proto.Vector{
		X: v.X + q.W*t.X + ut.X,
		Y: v.Y + q.W*t.Y + ut.Y,
		Z: v.Z + q.W*t.Z + ut.Z,
	}
}

func cross(a, b proto.Vector) proto.Vector {
	return proto.Vector{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

func multiply(a, b proto.Quaternion) proto.Quaternion {
	return proto.Quaternion{
		W: a.W*b.W - a.X*b.X - a.Y*b.Y - a.Z*b.Z,
		X: a.W*b.X + a.X*b.W + a.Y*b.Z - a.Z*b.Y,
		Y: a.W*b.Y - a.X*b.Z + a.Y*b.W + a.Z*b.X,
		Z: a.W*b.Z + a.X*b.Y - a.Y*b.X + a.Z*b.W,
	}
}

func rotation(t proto.Transform) proto.Quaternion {
	if t.Rotation == nil {
		return proto.Quaternion{W: 1}
	}
	return *t.Rotation
}

func position(t proto.Transform) proto.Vector {
	if t.Position == nil {
		return proto.Vector{}
	}
	return *t.Position
}

// Apply transforms the point p by t.
func Apply(t proto.Transform, p proto.Vector) proto.Vector {
	return Add(Rotate(rotation(t), p), position(t))
}

// Compose returns the transform a ∘ b, mapping through b first and then a.
func Compose(a, b proto.Transform) proto.Transform {
	pos := Apply(a, position(b))
	rot := multiply(rotation(a), rotation(b))
	return proto.Transform{Position: &pos, Rotation: &rot}
}

// HostFromJoiner reconciles the coordinate spaces of two members whose hands
// were matched in a clasp gesture. Each side reports its own left and right
// hand positions in its own space; the host additionally has an established
// pose in the room frame. The joiner's space is rotated about the vertical
// axis so the two users face each other, then translated so the joiner's
// clasp center lands on the host's clasp center in the room frame.
func HostFromJoiner(roomFromHost proto.Transform, hostLeft, hostRight, joinerLeft, joinerRight proto.Vector) proto.Transform {
	hostLeftRoom := Apply(roomFromHost, hostLeft)
	hostRightRoom := Apply(roomFromHost, hostRight)
	hostCenter := Midpoint(hostLeftRoom, hostRightRoom)
	joinerCenter := Midpoint(joinerLeft, joinerRight)

	angle := Yaw(joinerLeft, joinerRight) + Yaw(hostLeftRoom, hostRightRoom)
	rot := YawRotation(angle)

	trans := Sub(hostCenter, Rotate(rot, joinerCenter))
	return proto.Transform{Position: &trans, Rotation: &rot}
}
