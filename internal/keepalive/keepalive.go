// Package keepalive periodically probes pooled connections so that idle ones
// are not dropped by the server or by middleboxes.
//
// Each tracked handle gets one cron entry. A tick borrows the handle from the
// pool without blocking, runs the probe, and gives it back. Handles that are
// busy are skipped for that tick. Probe failures are logged and never reach
// the caller.
package keepalive

import (
	"context"
	"sync"
	"time"

	"github.com/koustreak/sqlsession/internal/errs"
	"github.com/koustreak/sqlsession/internal/logger"
	"github.com/koustreak/sqlsession/internal/pool"
	"github.com/robfig/cron/v3"
)

// Probe checks one borrowed handle. ctx expires after one interval.
type Probe func(ctx context.Context, h *pool.Handle) error

// Pool is the part of *pool.Pool the scheduler needs.
type Pool interface {
	Claim(h *pool.Handle) bool
	Release(h *pool.Handle) error
	Discard(h *pool.Handle) error
	Live(h *pool.Handle) bool
}

type entry struct {
	runner *cron.Cron
	id     cron.EntryID
}

// Scheduler owns the keepalive timers of one session.
type Scheduler struct {
	pool     Pool
	probe    Probe
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	runner  *cron.Cron
	entries map[string]entry
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger probe results are reported to.
func WithLogger(l *logger.Logger) Option {
	return func(s *Scheduler) { s.log = l.Component("keepalive") }
}

// New returns a scheduler that runs probe on every tracked handle once per
// interval. Nothing runs until the first Attach.
func New(p Pool, probe Probe, interval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		pool:     p,
		probe:    probe,
		interval: interval,
		log:      logger.Nop(),
		entries:  make(map[string]entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.runner = s.newRunner()
	return s
}

func (s *Scheduler) newRunner() *cron.Cron {
	cl := cronLogger{log: s.log}
	return cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
}

// Attach starts probing h. It returns false when h is already tracked.
func (s *Scheduler) Attach(h *pool.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[h.ID()]; ok {
		return false
	}

	runner := s.runner
	id := runner.Schedule(every(s.interval), cron.FuncJob(func() { s.tick(runner, h) }))
	s.entries[h.ID()] = entry{runner: runner, id: id}

	if len(s.entries) == 1 {
		runner.Start()
	}

	s.log.DebugWith("keepalive attached", map[string]interface{}{
		"handle":   h.ID(),
		"interval": s.interval.String(),
	})
	return true
}

// Tracked returns the number of handles with an active timer.
func (s *Scheduler) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// CancelAll removes every timer and waits for running probes to finish.
// The scheduler can be used again afterwards.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	old := s.runner
	n := len(s.entries)
	s.runner = s.newRunner()
	s.entries = make(map[string]entry)
	s.mu.Unlock()

	// Probes may call detach, so the lock must not be held while waiting.
	<-old.Stop().Done()

	if n > 0 {
		s.log.DebugWith("keepalive cancelled", map[string]interface{}{"handles": n})
	}
}

func (s *Scheduler) detach(runner *cron.Cron, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || e.runner != runner {
		return
	}
	runner.Remove(e.id)
	delete(s.entries, id)
}

func (s *Scheduler) tick(runner *cron.Cron, h *pool.Handle) {
	if !s.pool.Live(h) {
		s.detach(runner, h.ID())
		return
	}
	if !s.pool.Claim(h) {
		// In use; the borrower keeps it alive.
		return
	}

	var err error
	defer func() { s.settle(runner, h, err) }()

	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	err = s.probe(ctx, h)
}

// settle gives a probed handle back. Handles whose connection is gone are
// discarded and stop being tracked.
func (s *Scheduler) settle(runner *cron.Cron, h *pool.Handle, err error) {
	if err == nil {
		_ = s.pool.Release(h)
		s.log.DebugWith("keepalive", map[string]interface{}{"handle": h.ID()})
		return
	}

	s.log.ErrorWith("Keepalive probe failed", err, map[string]interface{}{"handle": h.ID()})

	if errs.IsConnection(err) {
		_ = s.pool.Discard(h)
		s.detach(runner, h.ID())
		return
	}
	_ = s.pool.Release(h)
}

// every fires at a fixed interval. cron.Every rounds to whole seconds.
type every time.Duration

func (e every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

// cronLogger routes cron's own messages into the session logger.
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.DebugWith("cron: "+msg, fields(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.ErrorWith("cron: "+msg, err, fields(keysAndValues))
}

func fields(kv []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			out[k] = kv[i+1]
		}
	}
	return out
}
