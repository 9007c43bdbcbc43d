// Copyright © 2026 The claspd authors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package server implements the claspd room relay server: it owns the room
// directory, the connection set, and the gesture matcher, and wires freshly
// accepted websockets into the room protocol.
package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/claspvr/claspd/pkg/match"
	"github.com/claspvr/claspd/pkg/room"
)

// Options configures a Server.
type Options struct {
	// AutoCreateRoom places every new connection in a private solo room
	// immediately instead of waiting for an explicit CreateRoom/JoinRoom
	// request. Both protocol shapes are in use by clients.
	AutoCreateRoom bool

	// EagerRoomGC deletes a room as soon as it is empty and its owner's
	// connection is gone. A live owner always keeps its rooms, since it may
	// rejoin them. When unset, rooms persist until explicitly destroyed.
	EagerRoomGC bool

	// TestMode surfaces protocol errors loudly: bad frames close the
	// offending connection instead of being logged and dropped.
	TestMode bool

	// StatsPassword guards the stats endpoint. Empty disables stats.
	StatsPassword string

	// AssetsDir, when set, is served under /gadget/ for the AR gadget.
	AssetsDir string
}

// Server is the top-level room relay process state.
type Server struct {
	Log *logrus.Logger

	opts    Options
	matcher *match.Matcher

	// mu serializes all room, directory, and connection-set state. Handlers
	// hold it for the duration of one operation and never block on I/O
	// under it; outbound sends are fire-and-forget.
	mu          sync.Mutex
	directory   *room.Directory
	connections map[uint64]*Connection
	nextConnID  uint64

	startedAt  time.Time
	maxRooms   int
	maxRoomsAt time.Time
	maxConns   int
	maxConnsAt time.Time
}

// New creates a Server. Shutdown must be called to stop the matcher sweep.
func New(log *logrus.Logger, opts Options) *Server {
	now := time.Now()
	s := &Server{
		Log:         log,
		opts:        opts,
		directory:   room.NewDirectory(log),
		connections: make(map[uint64]*Connection),
		startedAt:   now,
		maxRoomsAt:  now,
		maxConnsAt:  now,
	}
	s.matcher = match.New(s.onHandMatch)
	return s
}

// Shutdown stops the matcher sweep and closes every connection.
func (s *Server) Shutdown() {
	s.matcher.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.connections {
		c.close()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler returns the HTTP handler serving the websocket endpoint, the
// gadget's static assets, and the stats endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleSocket)
	mux.HandleFunc("/stats", s.handleStats)
	if s.opts.AssetsDir != "" {
		mux.Handle("/gadget/", http.StripPrefix("/gadget/", http.FileServer(http.Dir(s.opts.AssetsDir))))
	}
	return mux
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.WithField("error", err).Warn("Websocket upgrade failed")
		return
	}

	s.mu.Lock()
	id := s.nextConnID
	s.nextConnID++
	c := newConnection(id, s, sock)
	s.connections[id] = c
	if len(s.connections) > s.maxConns {
		s.maxConns = len(s.connections)
		s.maxConnsAt = time.Now()
	}

	if s.opts.AutoCreateRoom {
		solo := s.directory.Create(c)
		s.trackRoomHighWaterLocked()
		solo.Join(c, nil)
		c.rooms = append(c.rooms, solo)
	}
	s.mu.Unlock()

	s.Log.WithFields(logrus.Fields{
		"connection": id,
		"remote":     r.RemoteAddr,
	}).Info("New connection")

	go c.writePump()
	go c.readPump()
}

// removeConnection takes a closed connection out of its rooms and out of the
// server. Called from the connection's read pump on socket close.
func (s *Server) removeConnection(c *Connection) {
	s.mu.Lock()
	for _, r := range c.rooms {
		r.Leave(c)
		s.collectRoomLocked(r)
	}
	c.rooms = nil
	delete(s.connections, c.id)
	s.mu.Unlock()

	s.Log.WithField("connection", c.id).Info("Connection closed")
}

// collectRoomLocked applies the empty-room collection policy. A room is only
// collected once its owner can no longer rejoin it.
func (s *Server) collectRoomLocked(r *room.Room) {
	if !s.opts.EagerRoomGC || r.Len() > 0 {
		return
	}
	if owner, ok := r.Owner().(*Connection); ok && !owner.closed() {
		return
	}
	s.directory.Remove(r.ID())
	s.Log.WithField("room", r.ID()).Debug("Collected empty room")
}

func (s *Server) trackRoomHighWaterLocked() {
	if s.directory.Len() > s.maxRooms {
		s.maxRooms = s.directory.Len()
		s.maxRoomsAt = time.Now()
	}
}

// protocolError reports a malformed or unknown frame. The frame is dropped
// and the connection stays open, except in test mode where the connection is
// closed so broken clients fail fast.
func (s *Server) protocolError(c *Connection, fields logrus.Fields, msg string) {
	entry := s.Log.WithField("connection", c.id)
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	if s.opts.TestMode {
		entry.Error(msg)
		c.close()
		return
	}
	entry.Warn(msg)
}

// Stats contains summary information about a running server.
type Stats struct {
	Uptime           time.Duration `json:"uptime"`
	NumRooms         int           `json:"num_rooms"`
	MaxRooms         int           `json:"max_rooms"`
	MaxRoomsAt       time.Time     `json:"max_rooms_at"`
	NumConnections   int           `json:"num_connections"`
	MaxConnections   int           `json:"max_connections"`
	MaxConnectionsAt time.Time     `json:"max_connections_at"`
}

// Stats gets stats for the running server.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Uptime:           time.Since(s.startedAt),
		NumRooms:         s.directory.Len(),
		MaxRooms:         s.maxRooms,
		MaxRoomsAt:       s.maxRoomsAt,
		NumConnections:   len(s.connections),
		MaxConnections:   s.maxConns,
		MaxConnectionsAt: s.maxConnsAt,
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.opts.StatsPassword == "" || r.Header.Get("X-Stats-Password") != s.opts.StatsPassword {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Stats()); err != nil {
		s.Log.WithField("error", err).Warn("Error writing stats")
	}
}
