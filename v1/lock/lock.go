package lock

import (
	"context"
	"errors"
	"time"
)

// ErrStorageUnavailable marks failures of the backing store itself, as
// opposed to lock-semantics outcomes. Implementations wrap transport and
// timeout errors with it so callers can tell "the answer is no" apart from
// "there was no answer".
var ErrStorageUnavailable = errors.New("lock: storage unavailable")

// IsStorageUnavailable reports whether err marks a backend failure rather
// than a lock-semantics outcome.
func IsStorageUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// Key identifies the resource a lock protects.
type Key struct {
	Namespace  string
	BusinessID string
}

// String returns the canonical storage form of the key.
func (k Key) String() string {
	return k.Namespace + ":" + k.BusinessID
}

// Owner is the display identity of a lock holder. Name is surfaced in
// conflict messages.
type Owner struct {
	ID   string
	Name string
}

// Record is the stored state of one live grant.
type Record struct {
	Token      string    `json:"token"`
	Namespace  string    `json:"namespace"`
	BusinessID string    `json:"business_id"`
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	Timeout    int64     `json:"timeout"` // original TTL in seconds, also the heartbeat renewal window
	GrantedAt  time.Time `json:"granted_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Key returns the Key this record belongs to.
func (r *Record) Key() Key {
	return Key{Namespace: r.Namespace, BusinessID: r.BusinessID}
}

// Expired reports whether the grant is void at time now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// AcquireResult is the outcome of a Store.Acquire call.
type AcquireResult struct {
	// OK reports whether the caller now holds the lock.
	OK bool
	// Token is the capability proving ownership. Set only when OK.
	Token string
	// Reentrant is set when OK and the caller already held the lock; the
	// existing token is returned and the deadline refreshed, no new token
	// is minted.
	Reentrant bool
	// HeldBy is the current holder's display name. Set only when !OK.
	HeldBy string
}

// Store is the contract both backends implement. Every operation is atomic
// with respect to concurrent callers on the same key: of two racing Acquires
// on a free key exactly one succeeds, and a Heartbeat or Release can never
// act on a record it does not own.
//
// Expired records are treated as absent everywhere. "Unknown token",
// "expired" and "superseded" are deliberately collapsed into a plain false
// from Heartbeat and Release; only infrastructure failure is an error.
type Store interface {
	// Acquire grants the lock for key to owner for ttl, or reports who
	// holds it. A re-acquire by the same owner id refreshes the deadline
	// and returns the existing token.
	Acquire(ctx context.Context, key Key, owner Owner, ttl time.Duration) (AcquireResult, error)

	// Heartbeat extends the deadline of the record matching token by the
	// record's original timeout. Returns false if the token no longer
	// names a live grant.
	Heartbeat(ctx context.Context, token string) (bool, error)

	// Release removes the record matching token. Returns false if the
	// token no longer names a live grant; releasing twice is a no-op.
	Release(ctx context.Context, token string) (bool, error)

	// Get returns the live record for key, if any. Diagnostic only.
	Get(ctx context.Context, key Key) (*Record, bool, error)
}
