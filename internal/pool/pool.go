// Package pool owns the live connections of one session.
//
// The pool is created empty and initialized lazily on the first Reserve.
// Initialization is single-flight: concurrent callers share one attempt.
// At most MaxPoolSize handles are reserved at once; further Reserve calls
// block until a Release or until their context ends.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/koustreak/sqlsession/internal/driver"
	"github.com/koustreak/sqlsession/internal/errs"
	"github.com/koustreak/sqlsession/internal/logger"
	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// State is the lifecycle state of a Pool.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateClosed // purged; the next Reserve initializes again
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "uninitialized"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

const replenishTimeout = 10 * time.Second

// Stats is a point-in-time view of the pool.
type Stats struct {
	State   State `json:"state"`
	Open    int   `json:"open"` // live connections, idle or in use
	Idle    int   `json:"idle"`
	InUse   int   `json:"in_use"`
	Waiting int   `json:"waiting"` // Reserve calls blocked on capacity
	Min     int   `json:"min"`
	Max     int   `json:"max"`
}

// generation is everything created by one successful initialization.
type generation struct {
	connector driver.Connector
	sem       *semaphore.Weighted
	idle      []*Handle
	handles   map[string]*Handle
	waiting   int
	closed    bool
}

// Pool hands out exclusive connection handles. It is safe for concurrent use.
type Pool struct {
	drv      driver.Driver
	settings driver.Settings
	log      *logger.Logger

	group singleflight.Group

	mu          sync.Mutex
	state       State
	gen         *generation
	beforePurge []func()
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger failures are reported to.
func WithLogger(l *logger.Logger) Option {
	return func(p *Pool) { p.log = l.Component("pool") }
}

// New returns an uninitialized pool. It performs no I/O.
func New(drv driver.Driver, s driver.Settings, opts ...Option) *Pool {
	if s.MaxPoolSize < 1 {
		s.MaxPoolSize = 1
	}
	if s.MinPoolSize > s.MaxPoolSize {
		s.MinPoolSize = s.MaxPoolSize
	}
	p := &Pool{drv: drv, settings: s, log: logger.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BeforePurge registers fn to run at the start of every PurgeAll.
func (p *Pool) BeforePurge(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.beforePurge = append(p.beforePurge, fn)
}

// State returns the current lifecycle state.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Initialize sets the pool up if it is not ready yet. It is idempotent.
func (p *Pool) Initialize(ctx context.Context) error {
	_, err := p.ready(ctx)
	return err
}

func (p *Pool) ready(ctx context.Context) (*generation, error) {
	p.mu.Lock()
	if p.state == StateReady {
		g := p.gen
		p.mu.Unlock()
		return g, nil
	}
	p.mu.Unlock()

	// The winner's context must not cancel the attempt for everyone else.
	initCtx := context.WithoutCancel(ctx)
	ch := p.group.DoChan("initialize", func() (any, error) {
		return p.initialize(initCtx)
	})

	select {
	case <-ctx.Done():
		return nil, errs.Wrap(errs.ErrKindTimeout, "gave up waiting for pool initialization", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*generation), nil
	}
}

func (p *Pool) initialize(ctx context.Context) (*generation, error) {
	p.mu.Lock()
	if p.state == StateReady {
		g := p.gen
		p.mu.Unlock()
		return g, nil
	}
	p.state = StateInitializing
	p.mu.Unlock()

	g, err := p.open(ctx)
	if err != nil {
		p.mu.Lock()
		p.state = StateUninitialized
		p.mu.Unlock()

		p.log.ErrorWith("Unable to connect to server", err, map[string]interface{}{
			"driver": p.drv.Name(),
			"url":    p.settings.URL,
		})
		return nil, asConnection("unable to connect to server", err)
	}

	p.mu.Lock()
	p.gen = g
	p.state = StateReady
	p.mu.Unlock()

	p.log.InfoWith("pool initialized", map[string]interface{}{
		"driver": p.drv.Name(),
		"min":    p.settings.MinPoolSize,
		"max":    p.settings.MaxPoolSize,
	})
	return g, nil
}

// open runs driver setup and pre-creates MinPoolSize connections.
func (p *Pool) open(ctx context.Context) (*generation, error) {
	connector, err := p.drv.Open(ctx, p.settings)
	if err != nil {
		return nil, err
	}

	g := &generation{
		connector: connector,
		sem:       semaphore.NewWeighted(int64(p.settings.MaxPoolSize)),
		handles:   make(map[string]*Handle, p.settings.MaxPoolSize),
	}

	for i := 0; i < p.settings.MinPoolSize; i++ {
		conn, err := connector.Connect(ctx)
		if err != nil {
			for _, h := range g.idle {
				multierr.AppendInto(&err, h.conn.Close())
			}
			multierr.AppendInto(&err, connector.Close())
			return nil, err
		}
		h := newHandle(conn, g, handleIdle)
		g.idle = append(g.idle, h)
		g.handles[h.id] = h
	}

	return g, nil
}

// Reserve returns an exclusively owned handle, initializing the pool first if
// needed. It blocks while MaxPoolSize handles are reserved.
func (p *Pool) Reserve(ctx context.Context) (*Handle, error) {
	g, err := p.ready(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	g.waiting++
	p.mu.Unlock()

	err = g.sem.Acquire(ctx, 1)

	p.mu.Lock()
	g.waiting--
	if err != nil {
		p.mu.Unlock()
		return nil, errs.Wrap(errs.ErrKindTimeout, "timed out waiting for a connection", err)
	}
	if g.closed {
		p.mu.Unlock()
		g.sem.Release(1)
		return nil, errs.New(errs.ErrKindConnection, "pool was purged while waiting for a connection")
	}
	if n := len(g.idle); n > 0 {
		h := g.idle[n-1]
		g.idle = g.idle[:n-1]
		h.state = handleReserved
		p.mu.Unlock()
		return h, nil
	}
	p.mu.Unlock()

	conn, err := g.connector.Connect(ctx)
	if err != nil {
		g.sem.Release(1)
		p.log.ErrorWith("Unable to open connection", err, map[string]interface{}{"driver": p.drv.Name()})
		return nil, asConnection("unable to open connection", err)
	}

	p.mu.Lock()
	if g.closed {
		p.mu.Unlock()
		_ = conn.Close()
		g.sem.Release(1)
		return nil, errs.New(errs.ErrKindConnection, "pool was purged while opening a connection")
	}
	h := newHandle(conn, g, handleReserved)
	g.handles[h.id] = h
	p.mu.Unlock()

	return h, nil
}

// Release returns a reserved or claimed handle to the pool. Releasing a nil,
// idle or already released handle is a no-op.
func (p *Pool) Release(h *Handle) error {
	if h == nil {
		return nil
	}

	p.mu.Lock()
	if !h.state.holdsSlot() {
		p.mu.Unlock()
		return nil
	}
	g := h.gen
	h.state = handleIdle
	g.idle = append(g.idle, h)
	p.mu.Unlock()

	g.sem.Release(1)
	return nil
}

// Discard closes a reserved or claimed handle instead of pooling it, for
// connections the driver reported as broken. The pool is topped back up to
// MinPoolSize in the background.
func (p *Pool) Discard(h *Handle) error {
	if h == nil {
		return nil
	}

	p.mu.Lock()
	if !h.state.holdsSlot() {
		p.mu.Unlock()
		return nil
	}
	g := h.gen
	h.state = handleClosed
	delete(g.handles, h.id)
	p.mu.Unlock()

	g.sem.Release(1)
	go p.replenish(g)

	if err := h.conn.Close(); err != nil {
		p.log.ErrorWith("Unable to release connection", err, map[string]interface{}{"handle": h.id})
		return asConnection("unable to release connection "+h.id, err)
	}
	return nil
}

// replenish opens idle connections until the generation holds MinPoolSize.
func (p *Pool) replenish(g *generation) {
	ctx, cancel := context.WithTimeout(context.Background(), replenishTimeout)
	defer cancel()

	for {
		if !g.sem.TryAcquire(1) {
			return
		}

		p.mu.Lock()
		short := !g.closed && len(g.handles) < p.settings.MinPoolSize
		p.mu.Unlock()
		if !short {
			g.sem.Release(1)
			return
		}

		conn, err := g.connector.Connect(ctx)
		if err != nil {
			g.sem.Release(1)
			p.log.ErrorWith("Unable to replenish pool", err, nil)
			return
		}

		p.mu.Lock()
		if g.closed {
			p.mu.Unlock()
			_ = conn.Close()
			g.sem.Release(1)
			return
		}
		h := newHandle(conn, g, handleIdle)
		g.handles[h.id] = h
		g.idle = append(g.idle, h)
		p.mu.Unlock()

		g.sem.Release(1)
	}
}

// Claim borrows h without blocking when it is idle in the pool and capacity
// allows. It returns false when h is reserved, claimed or closed. A claimed
// handle is given back with Release or Discard.
func (p *Pool) Claim(h *Handle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	g := h.gen
	if h.state != handleIdle || g.closed {
		return false
	}
	if !g.sem.TryAcquire(1) {
		return false
	}
	for i, idle := range g.idle {
		if idle == h {
			g.idle = append(g.idle[:i], g.idle[i+1:]...)
			break
		}
	}
	h.state = handleClaimed
	return true
}

// Live reports whether h still refers to an open pooled connection.
func (p *Pool) Live(h *Handle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return h.state != handleClosed && !h.gen.closed
}

// PurgeAll runs the BeforePurge hooks, then terminates every idle and
// reserved connection and tears the driver down. Handles reserved at that
// point become unusable; releasing them afterwards is a no-op. PurgeAll on a
// pool that was never initialized does nothing.
func (p *Pool) PurgeAll(ctx context.Context) error {
	if p.State() == StateInitializing {
		_, _ = p.ready(ctx)
	}

	p.mu.Lock()
	hooks := append([]func(){}, p.beforePurge...)
	p.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}

	p.mu.Lock()
	g := p.gen
	if g == nil || p.state != StateReady {
		p.mu.Unlock()
		return nil
	}
	g.closed = true
	p.gen = nil
	p.state = StateClosed

	handles := make([]*Handle, 0, len(g.handles))
	held := 0
	for _, h := range g.handles {
		if h.state.holdsSlot() {
			held++
		}
		h.state = handleClosed
		handles = append(handles, h)
	}
	g.idle = nil
	g.handles = make(map[string]*Handle)
	p.mu.Unlock()

	// Wake blocked Reserve calls; they observe g.closed and fail.
	if held > 0 {
		g.sem.Release(int64(held))
	}

	var err error
	for _, h := range handles {
		multierr.AppendInto(&err, h.conn.Close())
	}
	multierr.AppendInto(&err, g.connector.Close())

	if err != nil {
		p.log.ErrorWith("Unable to close all connections", err, nil)
		return asConnection("unable to close all connections", err)
	}

	p.log.InfoWith("pool purged", map[string]interface{}{"closed": len(handles)})
	return nil
}

// Stats returns a snapshot of the pool.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{State: p.state, Min: p.settings.MinPoolSize, Max: p.settings.MaxPoolSize}
	if p.gen != nil {
		s.Open = len(p.gen.handles)
		s.Idle = len(p.gen.idle)
		s.InUse = s.Open - s.Idle
		s.Waiting = p.gen.waiting
	}
	return s
}

// asConnection keeps driver-classified connection and timeout errors as they
// are and wraps everything else as a connection error.
func asConnection(msg string, err error) error {
	switch errs.KindOf(err) {
	case errs.ErrKindConnection, errs.ErrKindTimeout:
		return err
	}
	return errs.Wrap(errs.ErrKindConnection, msg, err)
}
