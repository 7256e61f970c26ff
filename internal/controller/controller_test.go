package controller

import (
	"context"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"

	"zeroserver/internal/config"
	"zeroserver/internal/pool"
	"zeroserver/internal/trainlog"
	"zeroserver/internal/worker"
)

func testSetup(t *testing.T, gamesPerIteration int) (*Controller, *pool.Pool, config.Config) {
	t.Helper()
	dir := t.TempDir()
	logger, err := trainlog.New(dir)
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })

	cfg := config.DefaultConfig()
	cfg.TrainingDirectory = dir
	cfg.GamesPerIteration = gamesPerIteration
	cfg.StartIteration = 1
	cfg.EndIteration = 1
	cfg.ReplayBufferWindow = 1

	p := pool.New(cfg, logger, rand.New(rand.NewSource(1)), 0)
	c := New(cfg, p, logger, quartz.NewReal())
	return c, p, cfg
}

// newIdleSelfPlayWorker registers and identifies a self-play worker,
// capturing every line written to it.
func newIdleSelfPlayWorker(t *testing.T, p *pool.Pool) *[]string {
	t.Helper()
	var sent []string
	s := worker.New(func(line string) error {
		sent = append(sent, line)
		return nil
	})
	p.Register(s)
	p.HandleLine(s, "Info sp1 sp")
	return &sent
}

func TestSelfPlayCollectsExactlyConfiguredGames(t *testing.T) {
	c, p, cfg := testSetup(t, 4)

	go func() {
		for i := 0; i < cfg.GamesPerIteration; i++ {
			p.HandleLine(nil, "SelfPlay 7 (weight_iter_0 moves)")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, c.selfPlay(ctx, 1))
}

func TestSelfPlayFiltersStaleRecords(t *testing.T) {
	c, p, cfg := testSetup(t, 1)

	go func() {
		// A stale record (from the wrong model iteration) must be dropped,
		// not counted toward the target.
		p.HandleLine(nil, "SelfPlay 5 (weight_iter_99 moves)")
		p.HandleLine(nil, "SelfPlay 5 (weight_iter_0 moves)")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, c.selfPlay(ctx, 1))

	data, err := os.ReadFile(cfg.RecordFilePath(1))
	require.NoError(t, err)
	require.Equal(t, "0 5 (weight_iter_0 moves)\n", string(data))
}

func TestSelfPlayBroadcastsToIdleWorkers(t *testing.T) {
	c, p, _ := testSetup(t, 1)
	sent := newIdleSelfPlayWorker(t, p)
	*sent = nil

	go p.HandleLine(nil, "SelfPlay 3 (weight_iter_0 moves)")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.selfPlay(ctx, 1))

	require.NotEmpty(t, *sent, "expected at least one broadcast burst to the self-play worker")
	require.Equal(t, "stop", (*sent)[len(*sent)-1], "expected StopJob to send stop as the final line")
}

func TestOptimizationReturnsOnOptimizationDone(t *testing.T) {
	c, p, _ := testSetup(t, 1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		p.HandleLine(nil, "Optimization_Done 2")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, c.optimization(ctx, 1))
	require.Equal(t, 2, p.ModelIteration())
	require.False(t, p.IsOptimizationPhase())
}

func TestRunKeepAliveSendsProbesUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	logger, err := trainlog.New(dir)
	require.NoError(t, err)
	defer logger.Close()

	cfg := config.DefaultConfig()
	cfg.TrainingDirectory = dir
	cfg.KeepAlivePeriod = 10 * time.Millisecond

	p := pool.New(cfg, logger, rand.New(rand.NewSource(1)), 0)
	c := New(cfg, p, logger, quartz.NewReal())

	var sent []string
	s := worker.New(func(line string) error {
		sent = append(sent, line)
		return nil
	})
	p.Register(s)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	require.Error(t, c.RunKeepAlive(ctx), "expected RunKeepAlive to return the context's cancellation error")
	require.NotEmpty(t, sent, "expected at least one keep-alive probe to have been sent")
}

// TestSelfPlayIdleWaitUsesInjectedClock drives selfPlay's empty-queue sleep
// with a mock clock instead of real time, the way
// internal/testing/sitting_out_test.go drives a timeout with
// mockClock.Advance(...).MustWait(ctx) instead of a real time.Sleep race.
func TestSelfPlayIdleWaitUsesInjectedClock(t *testing.T) {
	dir := t.TempDir()
	logger, err := trainlog.New(dir)
	require.NoError(t, err)
	defer logger.Close()

	cfg := config.DefaultConfig()
	cfg.TrainingDirectory = dir
	cfg.GamesPerIteration = 1
	cfg.StartIteration = 1
	cfg.EndIteration = 1

	p := pool.New(cfg, logger, rand.New(rand.NewSource(1)), 0)
	mockClock := quartz.NewMock(t)
	c := New(cfg, p, logger, mockClock)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.selfPlay(ctx, 1) }()

	// selfPlay finds the queue empty and calls clock.Sleep(selfPlayIdleWait);
	// advance the mock clock past that wait instead of sleeping for real,
	// then deliver the record so the loop can exit.
	mockClock.Advance(selfPlayIdleWait).MustWait(ctx)
	p.HandleLine(nil, "SelfPlay 9 (weight_iter_0 moves)")

	require.NoError(t, <-done)
}

// TestRunKeepAliveAdvancesOnMockTicker verifies RunKeepAlive's ticker fires
// off the injected clock rather than wall time: advancing a quartz.Mock by
// KeepAlivePeriod must produce a keep-alive probe with no real sleep at all.
func TestRunKeepAliveAdvancesOnMockTicker(t *testing.T) {
	dir := t.TempDir()
	logger, err := trainlog.New(dir)
	require.NoError(t, err)
	defer logger.Close()

	cfg := config.DefaultConfig()
	cfg.TrainingDirectory = dir
	cfg.KeepAlivePeriod = time.Minute

	p := pool.New(cfg, logger, rand.New(rand.NewSource(1)), 0)
	mockClock := quartz.NewMock(t)
	c := New(cfg, p, logger, mockClock)

	var sent []string
	s := worker.New(func(line string) error {
		sent = append(sent, line)
		return nil
	})
	p.Register(s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.RunKeepAlive(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	mockClock.Advance(cfg.KeepAlivePeriod).MustWait(waitCtx)

	cancel()
	require.Error(t, <-done)
	require.NotEmpty(t, sent, "expected the mock-clock tick to produce a keep-alive probe")
}
