// Copyright © 2026 The claspd authors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package server

import (
	"crypto/tls"
	"net"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ListenAndServe listens for connections on the network, and serves them the
// room relay. A listen failure is returned so the caller can exit with a
// distinct status; everything after that is non-fatal.
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "Listen")
	}
	defer listener.Close()

	s.Log.WithFields(logrus.Fields{
		"addr":        addr,
		"tls_enabled": false,
	}).Info("Listening for incoming connections")
	return http.Serve(listener, s.Handler())
}

// ListenAndServeTLS behaves just like ListenAndServe, but wraps the
// connection with TLS.
func (s *Server) ListenAndServeTLS(addr, certFile, keyFile string) error {
	if certFile == "" || keyFile == "" {
		return errors.New("No certFile/keyFile given")
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return errors.Wrap(err, "Load X.509 key pair")
	}

	listener, err := tls.Listen("tcp", addr, &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		return errors.Wrap(err, "Listen TLS")
	}
	defer listener.Close()

	s.Log.WithFields(logrus.Fields{
		"addr":        addr,
		"tls_enabled": true,
	}).Info("Listening for incoming connections")
	return http.Serve(listener, s.Handler())
}
