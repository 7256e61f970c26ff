package netserver

import (
	"bufio"
	"context"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"zeroserver/internal/config"
	"zeroserver/internal/pool"
	"zeroserver/internal/trainlog"
)

func testPool(t *testing.T) *pool.Pool {
	t.Helper()
	dir := t.TempDir()
	logger, err := trainlog.New(dir)
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })

	cfg := config.DefaultConfig()
	cfg.TrainingDirectory = dir
	return pool.New(cfg, logger, rand.New(rand.NewSource(1)), 0)
}

func TestServeAcceptsConnectionsAndDispatchesLines(t *testing.T) {
	p := testPool(t)
	srv := New(p, zerolog.Nop())

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx, listener) }()

	conn, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("Info sp1 sp\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, reply, "Job_SelfPlay")

	cancel()
	require.NoError(t, <-serveErr)
}

func TestShutdownIsIdempotent(t *testing.T) {
	p := testPool(t)
	srv := New(p, zerolog.Nop())

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx := context.Background()
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx, listener) }()

	srv.Shutdown()
	srv.Shutdown()

	require.NoError(t, <-serveErr)
}
