// Package server runs the RESP accept loop: one goroutine per
// connection, each running a decode-dispatch-reply cycle until the
// client disconnects, sends QUIT, or the shutdown deadline closes it.
//
// The shutdown choreography — signal.NotifyContext upstream, a
// goroutine-run accept loop, <-ctx.Done(), a bounded shutdown deadline,
// and a sync.WaitGroup draining in-flight work — is grounded on
// hyperengineering-engram's cmd/engram/root.go, adapted from
// http.Server.Shutdown (which has no RESP equivalent) to closing the
// net.Listener directly. Open connections are not signaled when
// shutdown begins: each keeps serving commands until its client
// disconnects or sends QUIT, and any still open when the shutdown
// deadline passes is closed outright.
package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/prismcache/prismcache/internal/dispatcher"
	"github.com/prismcache/prismcache/internal/resp"
)

// DefaultShutdownTimeout is a 5 second shutdown deadline for callers
// to build Shutdown's context from. Shutdown itself does not read it;
// it waits until the context it is given is done.
const DefaultShutdownTimeout = 5 * time.Second

// Server accepts RESP connections on a net.Listener and dispatches
// their commands.
type Server struct {
	listener   net.Listener
	dispatcher *dispatcher.Dispatcher

	wg      sync.WaitGroup
	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	closing bool
}

// New wraps ln, serving commands through d.
func New(ln net.Listener, d *dispatcher.Dispatcher) *Server {
	return &Server{
		listener:   ln,
		dispatcher: d,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Serve runs the accept loop until the listener is closed (typically by
// Shutdown). It always returns a non-nil error: net.ErrClosed on a
// clean shutdown, or whatever the listener failed with otherwise.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Error().Err(err).Msg("server: accept failed")
			return err
		}

		s.mu.Lock()
		if s.closing {
			s.mu.Unlock()
			conn.Close()
			continue
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handle(conn)
	}
}

// handle runs one connection's decode-dispatch-reply loop until it
// disconnects, sends QUIT, or sends a frame the decoder rejects.
func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	ctx := context.Background()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	for {
		args, err := resp.ReadCommand(r)
		if err != nil {
			if !errors.Is(err, resp.ErrMalformed) {
				return // clean disconnect (io.EOF) or connection error
			}
			if werr := resp.WriteError(w, "ERR", "protocol error"); werr == nil {
				w.Flush()
			}
			return
		}

		closeConn, err := s.dispatcher.Dispatch(ctx, args, w)
		if err != nil {
			log.Warn().Err(err).Msg("server: failed to write reply")
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
		if closeConn {
			return
		}
	}
}

// Shutdown closes the listener and waits until ctx is done for
// in-flight connections to drain. Connections still open when ctx is
// done are forcibly closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Warn().Err(err).Msg("server: error closing listener")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.closeAllConns()
		return ctx.Err()
	}
}

func (s *Server) closeAllConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}
