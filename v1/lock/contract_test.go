package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

// backends lists the Store implementations the contract tests run against.
var backends = []struct {
	name string
	make func(t *testing.T) (Store, func())
}{
	{
		name: "memory",
		make: func(t *testing.T) (Store, func()) {
			return NewInMemory(), func() {}
		},
	},
	{
		name: "redis",
		make: func(t *testing.T) (Store, func()) {
			t.Helper()
			mr, err := miniredis.Run()
			if err != nil {
				t.Fatalf("miniredis run: %v", err)
			}
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			cleanup := func() {
				_ = client.Close()
				mr.Close()
			}
			return NewRedis(client), cleanup
		},
	},
}

var (
	ownerA = Owner{ID: "user-a", Name: "Alice"}
	ownerB = Owner{ID: "user-b", Name: "Bob"}
	keyK   = Key{Namespace: "orders", BusinessID: "order-001"}
)

func mustAcquire(t *testing.T, s Store, key Key, owner Owner, ttl time.Duration) string {
	t.Helper()
	res, err := s.Acquire(context.Background(), key, owner, ttl)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !res.OK {
		t.Fatalf("acquire failed, held by %q", res.HeldBy)
	}
	return res.Token
}

func TestAcquireConflictCarriesHolderName(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s, cleanup := b.make(t)
			defer cleanup()
			ctx := context.Background()

			mustAcquire(t, s, keyK, ownerA, time.Minute)
			res, err := s.Acquire(ctx, keyK, ownerB, time.Minute)
			if err != nil {
				t.Fatalf("acquire: %v", err)
			}
			if res.OK {
				t.Fatal("second acquire should conflict")
			}
			if res.HeldBy != ownerA.Name {
				t.Fatalf("held by %q, want %q", res.HeldBy, ownerA.Name)
			}
		})
	}
}

func TestMutualExclusion(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s, cleanup := b.make(t)
			defer cleanup()
			ctx := context.Background()

			const callers = 16
			var wg sync.WaitGroup
			granted := make(chan string, callers)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				owner := Owner{ID: "caller-" + string(rune('a'+i)), Name: "caller"}
				go func() {
					defer wg.Done()
					res, err := s.Acquire(ctx, keyK, owner, time.Minute)
					if err != nil {
						t.Errorf("acquire: %v", err)
						return
					}
					if res.OK {
						granted <- res.Token
					}
				}()
			}
			wg.Wait()
			close(granted)

			var tokens []string
			for tok := range granted {
				tokens = append(tokens, tok)
			}
			if len(tokens) != 1 {
				t.Fatalf("%d concurrent acquires succeeded, want exactly 1", len(tokens))
			}
		})
	}
}

func TestTokenUniqueAcrossCycles(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s, cleanup := b.make(t)
			defer cleanup()
			ctx := context.Background()

			seen := make(map[string]bool)
			for i := 0; i < 5; i++ {
				tok := mustAcquire(t, s, keyK, ownerA, time.Minute)
				if seen[tok] {
					t.Fatalf("token %q minted twice", tok)
				}
				seen[tok] = true
				if ok, err := s.Release(ctx, tok); err != nil || !ok {
					t.Fatalf("release: ok %v err %v", ok, err)
				}
			}
		})
	}
}

func TestStaleTokenRejected(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s, cleanup := b.make(t)
			defer cleanup()
			ctx := context.Background()

			t1 := mustAcquire(t, s, keyK, ownerA, time.Minute)
			if ok, err := s.Release(ctx, t1); err != nil || !ok {
				t.Fatalf("release t1: ok %v err %v", ok, err)
			}
			t2 := mustAcquire(t, s, keyK, ownerB, time.Minute)
			if t1 == t2 {
				t.Fatal("reassigned key produced the same token")
			}

			if ok, err := s.Heartbeat(ctx, t1); err != nil || ok {
				t.Fatalf("heartbeat with stale token: ok %v err %v", ok, err)
			}
			if ok, err := s.Release(ctx, t1); err != nil || ok {
				t.Fatalf("release with stale token: ok %v err %v", ok, err)
			}

			if ok, err := s.Heartbeat(ctx, t2); err != nil || !ok {
				t.Fatalf("heartbeat with live token: ok %v err %v", ok, err)
			}
			if ok, err := s.Release(ctx, t2); err != nil || !ok {
				t.Fatalf("release with live token: ok %v err %v", ok, err)
			}
		})
	}
}

func TestReleaseIdempotent(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s, cleanup := b.make(t)
			defer cleanup()
			ctx := context.Background()

			tok := mustAcquire(t, s, keyK, ownerA, time.Minute)
			if ok, err := s.Release(ctx, tok); err != nil || !ok {
				t.Fatalf("first release: ok %v err %v", ok, err)
			}
			if ok, err := s.Release(ctx, tok); err != nil || ok {
				t.Fatalf("second release: ok %v err %v", ok, err)
			}
			if ok, err := s.Release(ctx, "never-issued"); err != nil || ok {
				t.Fatalf("release of unknown token: ok %v err %v", ok, err)
			}
		})
	}
}

func TestReentrantAcquire(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s, cleanup := b.make(t)
			defer cleanup()
			ctx := context.Background()

			t1 := mustAcquire(t, s, keyK, ownerA, time.Minute)
			res, err := s.Acquire(ctx, keyK, ownerA, time.Minute)
			if err != nil {
				t.Fatalf("re-acquire: %v", err)
			}
			if !res.OK || !res.Reentrant {
				t.Fatalf("re-acquire by holder: ok %v reentrant %v", res.OK, res.Reentrant)
			}
			if res.Token != t1 {
				t.Fatalf("re-acquire minted a new token %q, want %q", res.Token, t1)
			}
		})
	}
}

func TestGetReturnsLiveRecord(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s, cleanup := b.make(t)
			defer cleanup()
			ctx := context.Background()

			if _, found, err := s.Get(ctx, keyK); err != nil || found {
				t.Fatalf("get on free key: found %v err %v", found, err)
			}
			tok := mustAcquire(t, s, keyK, ownerA, time.Minute)
			rec, found, err := s.Get(ctx, keyK)
			if err != nil || !found {
				t.Fatalf("get: found %v err %v", found, err)
			}
			if rec.Token != tok || rec.UserName != ownerA.Name || rec.Namespace != keyK.Namespace {
				t.Fatalf("unexpected record %+v", rec)
			}
			if !rec.ExpiresAt.After(time.Now()) {
				t.Fatalf("record already expired: %v", rec.ExpiresAt)
			}
		})
	}
}

func TestKeysAreIndependent(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s, cleanup := b.make(t)
			defer cleanup()

			other := Key{Namespace: "orders", BusinessID: "order-002"}
			mustAcquire(t, s, keyK, ownerA, time.Minute)
			mustAcquire(t, s, other, ownerB, time.Minute)
		})
	}
}
