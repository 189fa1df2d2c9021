// Package server runs the HTTP listener for the job API
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// Server represents an HTTP server
type Server struct {
	srv *http.Server
}

// New creates a server for handler on port
func New(handler http.Handler, port string) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              ":" + port,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			// submissions may wait for their execution
			WriteTimeout: 6 * time.Minute,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Addr is the address the server listens on
func (s *Server) Addr() string { return s.srv.Addr }

// Start binds the port and serves in the background. Bind errors are
// returned directly; later serve errors arrive on the channel.
func (s *Server) Start() (<-chan error, error) {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return nil, err
	}
	s.srv.Addr = ln.Addr().String()

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh, nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
