// Package manager translates API-level lock requests into Store calls. It
// validates inputs and normalizes outcomes; all atomicity lives in the store.
package manager

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mirkobrombin/go-lockd/v1/lock"
	"github.com/mirkobrombin/go-lockd/v1/metrics"
)

// InvalidInputError rejects a request before it reaches the store.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsInvalidInput reports whether err is a validation rejection.
func IsInvalidInput(err error) bool {
	var ie *InvalidInputError
	return errors.As(err, &ie)
}

// AcquireRequest carries one acquire attempt.
type AcquireRequest struct {
	Namespace  string
	BusinessID string
	UserID     string
	UserName   string
	Timeout    time.Duration
}

func (r *AcquireRequest) validate() error {
	switch {
	case r.Namespace == "":
		return &InvalidInputError{Field: "namespace", Reason: "must not be empty"}
	case r.BusinessID == "":
		return &InvalidInputError{Field: "business_id", Reason: "must not be empty"}
	case r.UserID == "":
		return &InvalidInputError{Field: "user_id", Reason: "must not be empty"}
	case r.UserName == "":
		return &InvalidInputError{Field: "user_name", Reason: "must not be empty"}
	case r.Timeout <= 0:
		return &InvalidInputError{Field: "timeout", Reason: "must be positive"}
	}
	return nil
}

// Manager is the orchestration layer between transport and store. It holds no
// lock state, so any number of managers may share one store.
type Manager struct {
	store lock.Store
}

// New returns a Manager backed by store.
func New(store lock.Store) *Manager {
	return &Manager{store: store}
}

// Acquire validates req and attempts the grant.
func (m *Manager) Acquire(ctx context.Context, req AcquireRequest) (lock.AcquireResult, error) {
	if err := req.validate(); err != nil {
		return lock.AcquireResult{}, err
	}
	key := lock.Key{Namespace: req.Namespace, BusinessID: req.BusinessID}
	owner := lock.Owner{ID: req.UserID, Name: req.UserName}
	res, err := m.store.Acquire(ctx, key, owner, req.Timeout)
	if err != nil {
		metrics.StorageErrorCounter.Inc()
		return lock.AcquireResult{}, err
	}
	if res.OK {
		metrics.AcquireCounter.Inc()
	} else {
		metrics.ConflictCounter.Inc()
	}
	return res, nil
}

// Heartbeat renews the grant named by token.
func (m *Manager) Heartbeat(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, &InvalidInputError{Field: "lock_id", Reason: "must not be empty"}
	}
	renewed, err := m.store.Heartbeat(ctx, token)
	if err != nil {
		metrics.StorageErrorCounter.Inc()
		return false, err
	}
	metrics.HeartbeatCounter.WithLabelValues(strconv.FormatBool(renewed)).Inc()
	return renewed, nil
}

// Release removes the grant named by token.
func (m *Manager) Release(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, &InvalidInputError{Field: "lock_id", Reason: "must not be empty"}
	}
	released, err := m.store.Release(ctx, token)
	if err != nil {
		metrics.StorageErrorCounter.Inc()
		return false, err
	}
	metrics.ReleaseCounter.WithLabelValues(strconv.FormatBool(released)).Inc()
	return released, nil
}
