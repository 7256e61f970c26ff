// Package pool implements the shared worker-pool state: the self-play
// record queue, the current model iteration, the optimization-phase flag,
// the connected worker set, and the dispatcher broadcasts over it.
// Grounded on internal/server/pool.go's BotPool (register/unregister,
// mutex-guarded collections, atomic counters) and re-expressed against
// zero_server.cpp's ZeroWorkerSharedData/ZeroServer broadcast methods.
package pool

import (
	"fmt"
	"math/rand"
	"sync"

	"zeroserver/internal/config"
	"zeroserver/internal/trainlog"
	"zeroserver/internal/wire"
	"zeroserver/internal/worker"
)

// Pool owns the state and worker set for one training run.
type Pool struct {
	cfg    config.Config
	logger *trainlog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	stateMu           sync.Mutex
	queue             []string
	modelIteration    int
	optimizationPhase bool
	optimizationDone  chan struct{}

	workerMu sync.Mutex
	workers  map[*worker.Session]struct{}
}

// New creates a pool seeded with the configured initial model iteration.
func New(cfg config.Config, logger *trainlog.Logger, rng *rand.Rand, initialModelIteration int) *Pool {
	return &Pool{
		cfg:            cfg,
		logger:         logger,
		rng:            rng,
		modelIteration: initialModelIteration,
		workers:        make(map[*worker.Session]struct{}),
	}
}

// Register adds a newly-accepted, not-yet-identified session to the pool.
func (p *Pool) Register(s *worker.Session) {
	p.workerMu.Lock()
	defer p.workerMu.Unlock()
	p.workers[s] = struct{}{}
}

// CloseSession closes a session, logs its disconnection on the first
// close, and removes it from the worker set.
func (p *Pool) CloseSession(s *worker.Session) {
	p.workerMu.Lock()
	defer p.workerMu.Unlock()
	p.closeSessionLocked(s)
}

func (p *Pool) closeSessionLocked(s *worker.Session) {
	if s.Close() {
		p.logger.AddWorkerLog("[Worker Disconnection] " + s.Name() + " " + string(s.Role()))
	}
	delete(p.workers, s)
}

// HandleLine dispatches one inbound line from a worker per the verb table
// in spec §4.1. It returns true if the session should be closed by the
// caller's read loop (the session is already closed by the time this
// returns true).
func (p *Pool) HandleLine(s *worker.Session, line string) (shouldClose bool) {
	switch wire.Verb(line) {
	case wire.VerbInfo:
		return p.handleInfo(s, line)
	case wire.VerbSelfPlay:
		p.handleSelfPlay(s, line)
		return false
	case wire.VerbOptimizationDone:
		p.handleOptimizationDone(line)
		return false
	default:
		p.logger.AddWorkerLog("[Worker Error] " + wire.SanitizeErrorLine(line))
		p.CloseSession(s)
		return true
	}
}

func (p *Pool) handleInfo(s *worker.Session, line string) (shouldClose bool) {
	name, roleStr, ok := wire.ParseInfo(line)
	if !ok || !s.Identify(name, worker.Role(roleStr)) {
		p.logger.AddWorkerLog("[Worker Error] " + wire.SanitizeErrorLine(line))
		p.CloseSession(s)
		return true
	}

	p.workerMu.Lock()
	defer p.workerMu.Unlock()

	p.logger.AddWorkerLog("[Worker Connection] " + s.Name() + " " + roleStr)

	switch worker.Role(roleStr) {
	case worker.RoleSelfPlay:
		s.Write(wire.JobSelfPlay(p.cfg.TrainingDirectory, p.cfg.WeightPath(p.ModelIteration()), p.nextSeed()))
		s.Idle = true
	case worker.RoleOptimization:
		s.Write(wire.JobOptimization(p.cfg.TrainingDirectory))
		s.Idle = true
	default:
		p.closeSessionLocked(s)
		return true
	}
	return false
}

func (p *Pool) nextSeed() int64 {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return p.rng.Int63()
}

func (p *Pool) handleSelfPlay(s *worker.Session, line string) {
	if wire.IsDuplicateSelfPlay(line) {
		return
	}
	record, ok := wire.SelfPlayRecord(line)
	if !ok {
		return
	}

	size := p.enqueue(record)

	stride := int(float64(p.cfg.GamesPerIteration) * 0.25)
	if stride > 0 && size%stride == 0 {
		p.logger.AddWorkerLog(fmt.Sprintf("[SelfPlay Game Buffer] %d games", size))
	}
}

func (p *Pool) handleOptimizationDone(line string) {
	newIter, ok := wire.ParseOptimizationDone(line)
	if !ok {
		return
	}

	p.stateMu.Lock()
	p.modelIteration = newIter
	done := p.optimizationDone
	p.optimizationPhase = false
	p.optimizationDone = nil
	p.stateMu.Unlock()

	if done != nil {
		close(done)
	}
}

// enqueue appends a record to the self-play queue and returns the new size.
func (p *Pool) enqueue(record string) int {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	p.queue = append(p.queue, record)
	return len(p.queue)
}

// Dequeue atomically pops one record from the self-play queue.
func (p *Pool) Dequeue() (string, bool) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if len(p.queue) == 0 {
		return "", false
	}
	record := p.queue[0]
	p.queue = p.queue[1:]
	return record, true
}

// ModelIteration returns the current model iteration.
func (p *Pool) ModelIteration() int {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.modelIteration
}

// BeginOptimizationPhase sets the optimization-phase flag and returns a
// channel that closes exactly once, when a worker reports
// Optimization_Done. Per spec, while the flag is set no self-play dispatch
// may occur.
func (p *Pool) BeginOptimizationPhase() <-chan struct{} {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	p.optimizationPhase = true
	p.optimizationDone = make(chan struct{})
	return p.optimizationDone
}

// IsOptimizationPhase reports whether the flag is currently set.
func (p *Pool) IsOptimizationPhase() bool {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.optimizationPhase
}

// BroadcastSelfPlayJob sends load_model/reset_actors/start to every idle
// self-play worker, in one atomic-per-worker burst, and marks each busy.
func (p *Pool) BroadcastSelfPlayJob() {
	weightPath := p.cfg.WeightPath(p.ModelIteration())

	p.workerMu.Lock()
	defer p.workerMu.Unlock()
	for s := range p.workers {
		if s.Role() != worker.RoleSelfPlay || !s.Idle {
			continue
		}
		s.Idle = false
		s.WriteLines(wire.LoadModel(weightPath), wire.LineResetActors, wire.LineStart)
	}
}

// BroadcastOptimizationJob sends the optimization command line to every
// idle optimization worker and marks each busy.
func (p *Pool) BroadcastOptimizationJob(command string) {
	p.workerMu.Lock()
	defer p.workerMu.Unlock()
	for s := range p.workers {
		if s.Role() != worker.RoleOptimization || !s.Idle {
			continue
		}
		s.Idle = false
		s.Write(command)
	}
}

// StopJob marks every worker of the given role idle again, first sending
// stop to each one when the role is self-play. Optimization workers get no
// wire message; handling Optimization_Done does not change any worker's
// Idle flag, so this call is what makes them idle again.
func (p *Pool) StopJob(role worker.Role) {
	p.workerMu.Lock()
	defer p.workerMu.Unlock()
	for s := range p.workers {
		if s.Role() != role {
			continue
		}
		if role == worker.RoleSelfPlay {
			s.Write(wire.LineStop)
		}
		s.Idle = true
	}
}

// KeepAliveTick sends a liveness probe to every connected worker.
func (p *Pool) KeepAliveTick() {
	p.workerMu.Lock()
	defer p.workerMu.Unlock()
	for s := range p.workers {
		if s.IsClosed() {
			continue
		}
		s.Write(wire.LineKeepAlive)
	}
}

// Shutdown sends quit to every connected worker.
func (p *Pool) Shutdown() {
	p.workerMu.Lock()
	defer p.workerMu.Unlock()
	for s := range p.workers {
		s.Write(wire.LineQuit)
	}
}

// WorkerCount returns the number of connected sessions, for status display.
func (p *Pool) WorkerCount() int {
	p.workerMu.Lock()
	defer p.workerMu.Unlock()
	return len(p.workers)
}
