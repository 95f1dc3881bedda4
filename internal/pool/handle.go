package pool

import (
	"time"

	"github.com/google/uuid"
	"github.com/koustreak/sqlsession/internal/driver"
)

type handleState int

const (
	handleIdle     handleState = iota // parked in the pool
	handleReserved                    // owned by a borrower
	handleClaimed                     // borrowed by the keepalive probe
	handleClosed                      // discarded or purged
)

// Handle is an owned reference to one live connection. It is held by at most
// one borrower between Reserve and Release. Handles are identified by a UUID
// that stays stable while the connection lives, across reservations.
type Handle struct {
	id        string
	conn      driver.Conn
	gen       *generation
	createdAt time.Time

	// guarded by Pool.mu
	state handleState
}

func newHandle(conn driver.Conn, g *generation, state handleState) *Handle {
	return &Handle{
		id:        uuid.NewString(),
		conn:      conn,
		gen:       g,
		createdAt: time.Now(),
		state:     state,
	}
}

// ID returns the stable identifier of the underlying connection.
func (h *Handle) ID() string { return h.id }

// Conn returns the driver connection. Only the current borrower may use it.
func (h *Handle) Conn() driver.Conn { return h.conn }

// CreatedAt is when the connection was established.
func (h *Handle) CreatedAt() time.Time { return h.createdAt }

// holdsSlot reports whether the handle occupies a capacity slot.
func (s handleState) holdsSlot() bool {
	return s == handleReserved || s == handleClaimed
}
