package otp

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	hashCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type storeFactory func(t *testing.T, now func() time.Time) Store

func matchCode(code string) func(Record) bool {
	return func(r Record) bool { return CodeMatches(r.Code, code) }
}

func putHashed(t *testing.T, s Store, phone, code string, ttl time.Duration) {
	t.Helper()
	hash, err := HashCode(code)
	if err != nil {
		t.Fatalf("hash code: %v", err)
	}
	if _, err := s.Put(context.Background(), phone, hash, ttl); err != nil {
		t.Fatalf("put: %v", err)
	}
}

func runStoreSuite(t *testing.T, factory storeFactory) {
	const phone = "+971501111111"
	ctx := context.Background()

	t.Run("consume once", func(t *testing.T) {
		s := factory(t, nil)
		putHashed(t, s, phone, "004821", time.Minute)

		rec, err := s.ConsumeLatest(ctx, phone, matchCode("004821"))
		if err != nil {
			t.Fatalf("consume: %v", err)
		}
		if rec.Phone != phone {
			t.Fatalf("expected phone %s got %s", phone, rec.Phone)
		}
		if _, err := s.ConsumeLatest(ctx, phone, matchCode("004821")); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected replay to fail with ErrNotFound, got %v", err)
		}
	})

	t.Run("mismatch keeps record", func(t *testing.T) {
		s := factory(t, nil)
		putHashed(t, s, phone, "123456", time.Minute)

		if _, err := s.ConsumeLatest(ctx, phone, matchCode("654321")); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for wrong code, got %v", err)
		}
		if _, err := s.ConsumeLatest(ctx, phone, matchCode("123456")); err != nil {
			t.Fatalf("expected correct code to still work: %v", err)
		}
	})

	t.Run("repeated wrong codes drop the record", func(t *testing.T) {
		s := factory(t, nil)
		putHashed(t, s, phone, "123456", time.Minute)

		for i := 0; i < MaxAttempts; i++ {
			if _, err := s.ConsumeLatest(ctx, phone, matchCode("000000")); !errors.Is(err, ErrNotFound) {
				t.Fatalf("wrong code #%d: expected ErrNotFound, got %v", i+1, err)
			}
		}
		if _, err := s.ConsumeLatest(ctx, phone, matchCode("123456")); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected code to be unusable after %d wrong guesses, got %v", MaxAttempts, err)
		}
	})

	t.Run("wrong codes below the cap keep the record", func(t *testing.T) {
		s := factory(t, nil)
		putHashed(t, s, phone, "123456", time.Minute)

		for i := 0; i < MaxAttempts-1; i++ {
			_, _ = s.ConsumeLatest(ctx, phone, matchCode("000000"))
		}
		rec, err := s.ConsumeLatest(ctx, phone, matchCode("123456"))
		if err != nil {
			t.Fatalf("expected correct code to still work: %v", err)
		}
		if rec.Attempts != MaxAttempts-1 {
			t.Fatalf("expected %d recorded attempts, got %d", MaxAttempts-1, rec.Attempts)
		}
	})

	t.Run("new code issued during a check survives", func(t *testing.T) {
		s := factory(t, nil)
		putHashed(t, s, phone, "111111", time.Minute)

		_, err := s.ConsumeLatest(ctx, phone, func(r Record) bool {
			putHashed(t, s, phone, "222222", time.Minute)
			return CodeMatches(r.Code, "111111")
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected stale check to fail, got %v", err)
		}
		if _, err := s.ConsumeLatest(ctx, phone, matchCode("222222")); err != nil {
			t.Fatalf("expected newer code to survive: %v", err)
		}
	})

	t.Run("new code supersedes old", func(t *testing.T) {
		s := factory(t, nil)
		putHashed(t, s, phone, "111111", time.Minute)
		putHashed(t, s, phone, "222222", time.Minute)

		if _, err := s.ConsumeLatest(ctx, phone, matchCode("111111")); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected superseded code to fail, got %v", err)
		}
		if _, err := s.ConsumeLatest(ctx, phone, matchCode("222222")); err != nil {
			t.Fatalf("expected latest code to work: %v", err)
		}
	})

	t.Run("expired is not found", func(t *testing.T) {
		clock := newFakeClock()
		s := factory(t, clock.Now)
		putHashed(t, s, phone, "999999", 10*time.Minute)

		clock.Advance(10 * time.Minute)
		if _, err := s.ConsumeLatest(ctx, phone, matchCode("999999")); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected expired code to fail, got %v", err)
		}
	})

	t.Run("unknown phone", func(t *testing.T) {
		s := factory(t, nil)
		if _, err := s.ConsumeLatest(ctx, "+971509999999", matchCode("123456")); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("phones are independent", func(t *testing.T) {
		s := factory(t, nil)
		putHashed(t, s, phone, "123456", time.Minute)
		putHashed(t, s, "+971502222222", "654321", time.Minute)

		if _, err := s.ConsumeLatest(ctx, phone, matchCode("654321")); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected other phone's code to be rejected, got %v", err)
		}
		if _, err := s.ConsumeLatest(ctx, "+971502222222", matchCode("654321")); err != nil {
			t.Fatalf("consume second phone: %v", err)
		}
	})

	t.Run("concurrent consume succeeds once", func(t *testing.T) {
		s := factory(t, nil)
		putHashed(t, s, phone, "314159", time.Minute)

		const workers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.ConsumeLatest(ctx, phone, matchCode("314159")); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Fatalf("expected exactly one successful consume, got %d", wins)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(_ *testing.T, now func() time.Time) Store {
		return NewMemoryStore(now)
	})
}

func TestRedisStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T, now func() time.Time) Store {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("start miniredis: %v", err)
		}
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() {
			client.Close()
			mr.Close()
		})
		return NewRedisStore(client, now)
	})
}

func TestMemoryStoreChecksWithoutHoldingLock(t *testing.T) {
	s := NewMemoryStore(nil)
	putHashed(t, s, "+971501111111", "123456", time.Minute)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := s.ConsumeLatest(context.Background(), "+971501111111", func(r Record) bool {
			close(started)
			<-release
			return CodeMatches(r.Code, "123456")
		})
		done <- err
	}()

	<-started
	putDone := make(chan struct{})
	go func() {
		putHashed(t, s, "+971502222222", "654321", time.Minute)
		close(putDone)
	}()
	select {
	case <-putDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected other phones to proceed while a code is being compared")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("consume: %v", err)
	}
}

func TestRedisStoreRejectionKeepsTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStore(client, nil)
	putHashed(t, s, "+971501111111", "123456", time.Minute)
	if _, err := s.ConsumeLatest(context.Background(), "+971501111111", matchCode("000000")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if ttl := mr.TTL(redisKeyPrefix + "+971501111111"); ttl != time.Minute {
		t.Fatalf("expected rejection to keep the 1m ttl, got %s", ttl)
	}
}

func TestRedisStoreKeyExpiresWithTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStore(client, nil)
	putHashed(t, s, "+971501111111", "123456", time.Minute)
	if !mr.Exists(redisKeyPrefix + "+971501111111") {
		t.Fatalf("expected otp key to exist")
	}

	mr.FastForward(61 * time.Second)
	if mr.Exists(redisKeyPrefix + "+971501111111") {
		t.Fatalf("expected otp key to be reaped by redis ttl")
	}
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	runStoreSuite(t, func(t *testing.T, now func() time.Time) Store {
		ctx := context.Background()
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			t.Fatalf("connect mongo: %v", err)
		}
		db := client.Database("storefront_auth_test")
		t.Cleanup(func() {
			_ = db.Collection(mongoCollection).Drop(ctx)
			_ = client.Disconnect(ctx)
		})
		_ = db.Collection(mongoCollection).Drop(ctx)
		s := NewMongoStore(db, now)
		if err := s.EnsureIndexes(ctx); err != nil {
			t.Fatalf("ensure indexes: %v", err)
		}
		return s
	})
}

func TestHashCodeIsOpaque(t *testing.T) {
	hash, err := HashCode("012345")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "012345" {
		t.Fatalf("expected code to be hashed")
	}
	if !CodeMatches(hash, "012345") {
		t.Fatalf("expected hash to match its code")
	}
	if CodeMatches(hash, "12345") {
		t.Fatalf("expected leading-zero-less code to be rejected")
	}
}
