// Package netserver implements the TCP accept loop and per-connection line
// framing that internal/server/server.go's Serve/handleWebSocket and
// bot.go's ReadPump/WritePump implement for a WebSocket+msgpack transport.
// Here the wire format is plain line-delimited ASCII, so framing collapses
// to one bufio.Scanner per connection instead of a websocket read pump.
package netserver

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"zeroserver/internal/pool"
	"zeroserver/internal/worker"
)

// writeTimeout bounds how long a single line write may block, mirroring
// bot.go's writeWait for the websocket write pump.
const writeTimeout = 10 * time.Second

// maxLineSize bounds one inbound line, generous enough for a self-play
// record's embedded move list.
const maxLineSize = 1 << 20

// Server accepts worker connections and feeds them into a pool.Pool.
type Server struct {
	pool   *pool.Pool
	logger zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

// New creates a Server that dispatches accepted connections into p.
func New(p *pool.Pool, logger zerolog.Logger) *Server {
	return &Server{pool: p, logger: logger}
}

// Start listens on addr and serves until ctx is cancelled or Shutdown runs.
func (s *Server) Start(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on an existing listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		listener.Close()
		return nil
	}
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("Server initialize over.")

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// Shutdown closes the listener, causing Serve to return. It is idempotent.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	var writeMu sync.Mutex
	session := worker.New(func(line string) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_, err := conn.Write([]byte(line + "\n"))
		return err
	})

	s.pool.Register(session)
	defer s.pool.CloseSession(session)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	for scanner.Scan() {
		if s.pool.HandleLine(session, scanner.Text()) {
			break
		}
		if session.IsClosed() {
			break
		}
	}

	conn.Close()
}
