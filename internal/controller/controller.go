// Package controller implements the top-level iteration driver: it loops
// self-play then optimization for a configured iteration range, runs the
// keep-alive timer alongside it, and shuts the worker fleet down at the
// end. Grounded on zero_server.cpp's ZeroServer::run/selfPlay/optimization,
// reorganized the way internal/server/game_manager.go organizes its
// Start/StopAll lifecycle, and driven by an injectable coder/quartz.Clock
// so every sleep and timer in it is deterministic under test.
package controller

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	"zeroserver/internal/config"
	"zeroserver/internal/pool"
	"zeroserver/internal/trainlog"
	"zeroserver/internal/wire"
	"zeroserver/internal/worker"
)

const (
	selfPlayIdleWait        = 100 * time.Millisecond
	optimizationRebroadcast = 200 * time.Millisecond
)

// Controller drives the self-play/optimization iteration loop.
type Controller struct {
	cfg    config.Config
	pool   *pool.Pool
	logger *trainlog.Logger
	clock  quartz.Clock

	// Snapshot, when set, receives a status on every pass of the self-play
	// loop and once at the start of each optimization phase, for an
	// optional status dashboard. Nil is fine.
	Snapshot func(Status)
}

// Status is a point-in-time view of the run, used by internal/statusview.
type Status struct {
	Iteration      int
	Phase          string
	ModelIteration int
	Workers        int
	GamesCollected int
	GamesTarget    int
}

// New constructs a Controller. clock defaults to quartz.NewReal() if nil.
func New(cfg config.Config, p *pool.Pool, logger *trainlog.Logger, clock quartz.Clock) *Controller {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Controller{cfg: cfg, pool: p, logger: logger, clock: clock}
}

// Run loops self-play then optimization for every configured iteration,
// then sends quit to every worker. It returns when EndIteration completes
// or ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.AddTrainingLog(fmt.Sprintf("[Run] %s", uuid.New().String()))
	for iter := c.cfg.StartIteration; iter <= c.cfg.EndIteration; iter++ {
		if err := c.selfPlay(ctx, iter); err != nil {
			return err
		}
		if err := c.optimization(ctx, iter); err != nil {
			return err
		}
	}
	c.pool.Shutdown()
	return nil
}

func (c *Controller) selfPlay(ctx context.Context, iter int) error {
	if err := c.logger.OpenRecordFile(c.cfg, iter); err != nil {
		return err
	}
	c.logger.AddTrainingLog(fmt.Sprintf("[Iteration] =====%d=====", iter))
	c.logger.AddTrainingLog(fmt.Sprintf("[SelfPlay] Start %d", c.pool.ModelIteration()))

	stride := int(float64(c.cfg.GamesPerIteration) * 0.25)
	numCollected := 0
	gameLengthSum := 0

	for numCollected < c.cfg.GamesPerIteration {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c.pool.BroadcastSelfPlayJob()
		c.emitSnapshot(iter, "self-play", numCollected)

		record, ok := c.pool.Dequeue()
		if !ok {
			c.clock.Sleep(selfPlayIdleWait)
			continue
		}

		if !c.cfg.AcceptDifferentModelGames && !wire.ContainsWeightIter(record, c.pool.ModelIteration()) {
			continue
		}

		moveCountStr, payload, ok := wire.SplitRecord(record)
		if !ok {
			continue
		}
		moveCount, err := strconv.Atoi(moveCountStr)
		if err != nil {
			continue
		}

		if err := c.logger.AppendRecord(moveCount, payload); err != nil {
			return err
		}
		numCollected++
		gameLengthSum += moveCount

		if stride > 0 && numCollected%stride == 0 {
			c.logger.AddTrainingLog(fmt.Sprintf("[SelfPlay Progress] %d / %d", numCollected, c.cfg.GamesPerIteration))
		}
	}

	c.pool.StopJob(worker.RoleSelfPlay)
	if err := c.logger.CloseRecordFile(); err != nil {
		return err
	}
	c.logger.AddTrainingLog("[SelfPlay] Finished.")
	c.logger.AddTrainingLog(fmt.Sprintf("[SelfPlay Game Lengths] %f", float64(gameLengthSum)/float64(numCollected)))
	return nil
}

func (c *Controller) optimization(ctx context.Context, iter int) error {
	c.logger.AddTrainingLog("[Optimization] Start.")

	firstIter := iter - c.cfg.ReplayBufferWindow + 1
	if firstIter < 1 {
		firstIter = 1
	}
	command := wire.OptimizationCommand(c.pool.ModelIteration(), firstIter, iter)

	done := c.pool.BeginOptimizationPhase()
	c.emitSnapshot(iter, "optimization", c.cfg.GamesPerIteration)

	for {
		c.pool.BroadcastOptimizationJob(command)

		select {
		case <-done:
			c.pool.StopJob(worker.RoleOptimization)
			c.logger.AddTrainingLog("[Optimization] Finished.")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(optimizationRebroadcast):
		}
	}
}

func (c *Controller) emitSnapshot(iter int, phase string, collected int) {
	if c.Snapshot == nil {
		return
	}
	c.Snapshot(Status{
		Iteration:      iter,
		Phase:          phase,
		ModelIteration: c.pool.ModelIteration(),
		Workers:        c.pool.WorkerCount(),
		GamesCollected: collected,
		GamesTarget:    c.cfg.GamesPerIteration,
	})
}

// RunKeepAlive sends a keep-alive probe to every connected worker every
// cfg.KeepAlivePeriod until ctx is cancelled.
func (c *Controller) RunKeepAlive(ctx context.Context) error {
	ticker := c.clock.NewTicker(c.cfg.KeepAlivePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.pool.KeepAliveTick()
		}
	}
}
