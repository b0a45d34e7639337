package manager

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mirkobrombin/go-lockd/v1/lock"
)

func TestAcquireValidation(t *testing.T) {
	m := New(lock.NewInMemory())
	ctx := context.Background()

	valid := AcquireRequest{
		Namespace:  "orders",
		BusinessID: "order-001",
		UserID:     "u1",
		UserName:   "Alice",
		Timeout:    time.Minute,
	}

	cases := []struct {
		name   string
		mutate func(*AcquireRequest)
	}{
		{"empty namespace", func(r *AcquireRequest) { r.Namespace = "" }},
		{"empty business id", func(r *AcquireRequest) { r.BusinessID = "" }},
		{"empty user id", func(r *AcquireRequest) { r.UserID = "" }},
		{"empty user name", func(r *AcquireRequest) { r.UserName = "" }},
		{"zero timeout", func(r *AcquireRequest) { r.Timeout = 0 }},
		{"negative timeout", func(r *AcquireRequest) { r.Timeout = -time.Second }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			_, err := m.Acquire(ctx, req)
			if !IsInvalidInput(err) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}

	res, err := m.Acquire(ctx, valid)
	if err != nil || !res.OK {
		t.Fatalf("valid request rejected: ok %v err %v", res.OK, err)
	}
}

func TestHeartbeatAndReleaseRequireToken(t *testing.T) {
	m := New(lock.NewInMemory())
	ctx := context.Background()

	if _, err := m.Heartbeat(ctx, ""); !IsInvalidInput(err) {
		t.Fatalf("heartbeat with empty token: %v", err)
	}
	if _, err := m.Release(ctx, ""); !IsInvalidInput(err) {
		t.Fatalf("release with empty token: %v", err)
	}
}

func TestOutcomeMapping(t *testing.T) {
	m := New(lock.NewInMemory())
	ctx := context.Background()

	res, err := m.Acquire(ctx, AcquireRequest{
		Namespace: "orders", BusinessID: "order-001",
		UserID: "u1", UserName: "Alice", Timeout: time.Minute,
	})
	if err != nil || !res.OK {
		t.Fatalf("acquire: ok %v err %v", res.OK, err)
	}

	conflict, err := m.Acquire(ctx, AcquireRequest{
		Namespace: "orders", BusinessID: "order-001",
		UserID: "u2", UserName: "Bob", Timeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if conflict.OK || conflict.HeldBy != "Alice" {
		t.Fatalf("conflict outcome %+v", conflict)
	}

	if ok, err := m.Heartbeat(ctx, res.Token); err != nil || !ok {
		t.Fatalf("heartbeat: ok %v err %v", ok, err)
	}
	if ok, err := m.Release(ctx, res.Token); err != nil || !ok {
		t.Fatalf("release: ok %v err %v", ok, err)
	}
	if ok, err := m.Release(ctx, res.Token); err != nil || ok {
		t.Fatalf("double release: ok %v err %v", ok, err)
	}
}

// failingStore reports storage unavailability for every operation.
type failingStore struct{}

func (failingStore) Acquire(context.Context, lock.Key, lock.Owner, time.Duration) (lock.AcquireResult, error) {
	return lock.AcquireResult{}, fmt.Errorf("%w: down", lock.ErrStorageUnavailable)
}

func (failingStore) Heartbeat(context.Context, string) (bool, error) {
	return false, fmt.Errorf("%w: down", lock.ErrStorageUnavailable)
}

func (failingStore) Release(context.Context, string) (bool, error) {
	return false, fmt.Errorf("%w: down", lock.ErrStorageUnavailable)
}

func (failingStore) Get(context.Context, lock.Key) (*lock.Record, bool, error) {
	return nil, false, fmt.Errorf("%w: down", lock.ErrStorageUnavailable)
}

func TestStorageFailurePassthrough(t *testing.T) {
	m := New(failingStore{})
	ctx := context.Background()

	_, err := m.Acquire(ctx, AcquireRequest{
		Namespace: "orders", BusinessID: "order-001",
		UserID: "u1", UserName: "Alice", Timeout: time.Minute,
	})
	if !lock.IsStorageUnavailable(err) {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := m.Heartbeat(ctx, "tok"); !lock.IsStorageUnavailable(err) {
		t.Fatalf("heartbeat: %v", err)
	}
	if _, err := m.Release(ctx, "tok"); !lock.IsStorageUnavailable(err) {
		t.Fatalf("release: %v", err)
	}
}
