package radius

import (
	"context"
	"errors"
	"time"

	"github.com/jazanet/backend/internal/models"
)

// ErrNotFound is returned by Store lookups when no row matches.
// Handlers branch on it: a missing NAS drops the datagram, a missing
// subscriber rejects, a transient store failure does neither.
var ErrNotFound = errors.New("not found")

// SessionStart carries everything an Accounting-Start materialises
type SessionStart struct {
	AcctSessionID    string
	TenantID         uint
	SubscriberID     *uint
	NasID            uint
	Username         string
	FramedIP         string
	CallingStationID string
	StartTime        time.Time
}

// SessionInterim carries the mutable fields of an Interim-Update.
// Octet counters are already reconstructed to 64 bits.
type SessionInterim struct {
	AcctSessionID string
	FramedIP      string
	InputOctets   int64
	OutputOctets  int64
	SessionTime   int
}

// SessionStop closes a session. Stop time, final counters and the
// terminate cause land in one write.
type SessionStop struct {
	AcctSessionID  string
	InputOctets    int64
	OutputOctets   int64
	SessionTime    int
	TerminateCause string
	StopTime       time.Time
}

// Store is the persistence surface the RADIUS path runs against. Every
// implementation must scope subscriber, session and NAS queries to one
// tenant; the server derives the tenant from the NAS that sent the
// packet and never trusts anything on the wire for it.
type Store interface {
	// FindNasByAddress matches addr against the primary and secondary
	// NAS addresses across tenants (source addresses are how tenants
	// are told apart in the first place).
	FindNasByAddress(ctx context.Context, addr string) (*models.Nas, error)

	// FindNasByID fetches one NAS within a tenant
	FindNasByID(ctx context.Context, tenantID, nasID uint) (*models.Nas, error)

	// FindSubscriberByUsername fetches a non-deleted subscriber with
	// the package preloaded.
	FindSubscriberByUsername(ctx context.Context, tenantID uint, username string) (*models.Subscriber, error)

	// TouchSubscriberSeen records the last observed address and MAC
	TouchSubscriberSeen(ctx context.Context, subscriberID uint, ip, mac string, online bool) error

	// UpsertSessionStart creates the session row or, when the NAS
	// replays a Start for an id it already used, revives the existing
	// row (clearing any stop time).
	UpsertSessionStart(ctx context.Context, start SessionStart) error

	// UpdateSessionInterim updates counters on a live session. Rows
	// already stopped are left alone. Returns false when no row
	// matched.
	UpdateSessionInterim(ctx context.Context, interim SessionInterim) (bool, error)

	// CloseSession finalises a session in a single write
	CloseSession(ctx context.Context, stop SessionStop) error

	// CloseAllSessionsForNas stops every live session of one NAS,
	// stamping the given terminate cause. Returns the number of rows
	// closed.
	CloseAllSessionsForNas(ctx context.Context, tenantID, nasID uint, cause string) (int64, error)

	// ActiveSessionsForUsername lists live sessions for a subscriber
	ActiveSessionsForUsername(ctx context.Context, tenantID uint, username string) ([]models.Session, error)

	// ActiveSessionCount counts live sessions across all tenants
	ActiveSessionCount(ctx context.Context) (int64, error)

	// TouchNas stamps last-seen and flips the NAS online
	TouchNas(ctx context.Context, nasID uint, seen time.Time) error
}
