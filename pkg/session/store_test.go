package session

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"bookchain/pkg/domain"
)

var baseTime = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func testSession(key string, expires time.Time) domain.Session {
	return domain.Session{PublicKeyHex: key, ExpiresAt: expires, GrantedFlags: []string{"MySession"}}
}

func TestStoreSetOverwritesAndPersists(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: baseTime}
	pointers := NewMemoryPointerStore()
	s := NewStore(Config{Pointers: pointers, Now: clock.Now})

	if _, ok := s.Current(); ok {
		t.Fatalf("expected no session initially")
	}
	if err := s.Set(ctx, testSession("aa", baseTime.Add(time.Hour))); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, domain.Session{PublicKeyHex: "bb", ExpiresAt: baseTime.Add(2 * time.Hour)}); err != nil {
		t.Fatalf("set: %v", err)
	}
	cur, ok := s.Current()
	if !ok || cur.PublicKeyHex != "bb" || len(cur.GrantedFlags) != 0 {
		t.Fatalf("unexpected current session: %+v ok=%v", cur, ok)
	}
	value, ok, _ := pointers.Get(ctx, SessionPointerKey)
	if !ok || !strings.Contains(value, `"bb"`) {
		t.Fatalf("unexpected pointer: %q ok=%v", value, ok)
	}
}

func TestStoreCurrentHidesExpiredSession(t *testing.T) {
	clock := &testClock{now: baseTime}
	s := NewStore(Config{Now: clock.Now})
	if err := s.Set(context.Background(), testSession("aa", baseTime.Add(time.Minute))); err != nil {
		t.Fatalf("set: %v", err)
	}
	clock.now = baseTime.Add(2 * time.Minute)
	if _, ok := s.Current(); ok {
		t.Fatalf("expected expired session to be hidden")
	}
	if _, err := s.Require(); err != ErrSessionExpired {
		t.Fatalf("require err = %v, want ErrSessionExpired", err)
	}
}

func TestStoreClearRemovesPointer(t *testing.T) {
	ctx := context.Background()
	pointers := NewMemoryPointerStore()
	s := NewStore(Config{Pointers: pointers, Now: (&testClock{now: baseTime}).Now})
	if err := s.Set(ctx, testSession("aa", baseTime.Add(time.Hour))); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := pointers.Get(ctx, SessionPointerKey); ok {
		t.Fatalf("expected pointer deleted")
	}
	if _, err := s.Require(); err != ErrNoSession {
		t.Fatalf("require err = %v, want ErrNoSession", err)
	}
}

func TestStoreRestoreValidSession(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: baseTime}
	pointers := NewMemoryPointerStore()
	first := NewStore(Config{Pointers: pointers, Now: clock.Now})
	if err := first.Set(ctx, testSession("aa", baseTime.Add(time.Hour))); err != nil {
		t.Fatalf("set: %v", err)
	}

	clock.now = baseTime.Add(30 * time.Minute)
	second := NewStore(Config{Pointers: pointers, Now: clock.Now})
	sess, ok, err := second.Restore(ctx)
	if err != nil || !ok {
		t.Fatalf("restore: ok=%v err=%v", ok, err)
	}
	if sess.PublicKeyHex != "aa" || !sess.ExpiresAt.Equal(baseTime.Add(time.Hour)) {
		t.Fatalf("unexpected restored session: %+v", sess)
	}
	if cur, ok := second.Current(); !ok || cur.PublicKeyHex != "aa" {
		t.Fatalf("restored session not published")
	}
}

func TestStoreRestoreExpiredSessionReturnsNone(t *testing.T) {
	for _, tc := range []struct {
		name  string
		codec PointerCodec
	}{
		{name: "json", codec: JSONCodec{}},
		{name: "jwt", codec: mustJWTCodec(t)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			clock := &testClock{now: baseTime}
			pointers := NewMemoryPointerStore()
			first := NewStore(Config{Pointers: pointers, Codec: tc.codec, Now: clock.Now})
			if err := first.Set(ctx, testSession("aa", baseTime.Add(time.Hour))); err != nil {
				t.Fatalf("set: %v", err)
			}

			clock.now = baseTime.Add(2 * time.Hour)
			second := NewStore(Config{Pointers: pointers, Codec: tc.codec, Now: clock.Now})
			var notified bool
			second.Subscribe(func(domain.Session, bool) { notified = true })
			sess, ok, err := second.Restore(ctx)
			if err != nil {
				t.Fatalf("restore: %v", err)
			}
			if ok || sess.PublicKeyHex != "" {
				t.Fatalf("expected no session, got %+v", sess)
			}
			if _, ok := second.Current(); ok {
				t.Fatalf("expired session must not be published")
			}
			if notified {
				t.Fatalf("expired restore must not notify")
			}
			if _, ok, _ := pointers.Get(ctx, SessionPointerKey); ok {
				t.Fatalf("expected expired pointer deleted")
			}
		})
	}
}

func TestStoreRestoreRejectsTamperedPointer(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: baseTime}
	pointers := NewMemoryPointerStore()
	codec := mustJWTCodec(t)
	s := NewStore(Config{Pointers: pointers, Codec: codec, Now: clock.Now})
	if err := s.Set(ctx, testSession("aa", baseTime.Add(time.Hour))); err != nil {
		t.Fatalf("set: %v", err)
	}

	forged, err := (&JWTCodec{secret: []byte("other-secret")}).Encode(testSession("aa", baseTime.Add(48*time.Hour)))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := pointers.Set(ctx, SessionPointerKey, forged); err != nil {
		t.Fatalf("set pointer: %v", err)
	}
	restored := NewStore(Config{Pointers: pointers, Codec: codec, Now: clock.Now})
	if _, ok, err := restored.Restore(ctx); ok || err != nil {
		t.Fatalf("expected forged pointer discarded, ok=%v err=%v", ok, err)
	}
}

func TestStoreListenersObserveChangesInOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Config{Now: (&testClock{now: baseTime}).Now})
	var events []string
	unsubscribe := s.Subscribe(func(sess domain.Session, ok bool) {
		if ok {
			events = append(events, "set:"+sess.PublicKeyHex)
		} else {
			events = append(events, "clear")
		}
	})
	_ = s.Set(ctx, testSession("aa", baseTime.Add(time.Hour)))
	_ = s.Clear(ctx)
	unsubscribe()
	_ = s.Set(ctx, testSession("bb", baseTime.Add(time.Hour)))

	if strings.Join(events, ",") != "set:aa,clear" {
		t.Fatalf("unexpected events: %v", events)
	}
}

var errDiskFull = errors.New("disk full")

type failingPointerStore struct {
	*MemoryPointerStore
	fail bool
}

func (f *failingPointerStore) Set(ctx context.Context, key, value string) error {
	if f.fail {
		return errDiskFull
	}
	return f.MemoryPointerStore.Set(ctx, key, value)
}

func (f *failingPointerStore) Delete(ctx context.Context, key string) error {
	if f.fail {
		return errDiskFull
	}
	return f.MemoryPointerStore.Delete(ctx, key)
}

func TestStoreKeepsPriorStateWhenPointerWriteFails(t *testing.T) {
	ctx := context.Background()
	pointers := &failingPointerStore{MemoryPointerStore: NewMemoryPointerStore()}
	s := NewStore(Config{Pointers: pointers, Now: (&testClock{now: baseTime}).Now})
	var events []string
	s.Subscribe(func(sess domain.Session, ok bool) {
		events = append(events, sess.PublicKeyHex)
	})

	pointers.fail = true
	if err := s.Set(ctx, testSession("aa", baseTime.Add(time.Hour))); !errors.Is(err, errDiskFull) {
		t.Fatalf("set err = %v, want disk full", err)
	}
	if _, ok := s.Current(); ok {
		t.Fatalf("failed set must not publish a session")
	}

	pointers.fail = false
	if err := s.Set(ctx, testSession("bb", baseTime.Add(time.Hour))); err != nil {
		t.Fatalf("set: %v", err)
	}
	pointers.fail = true
	if err := s.Clear(ctx); !errors.Is(err, errDiskFull) {
		t.Fatalf("clear err = %v, want disk full", err)
	}
	cur, ok := s.Current()
	if !ok || cur.PublicKeyHex != "bb" {
		t.Fatalf("failed clear must keep session, got %+v ok=%v", cur, ok)
	}
	if _, ok, _ := pointers.Get(ctx, SessionPointerKey); !ok {
		t.Fatalf("pointer should still be stored")
	}
	if strings.Join(events, ",") != "bb" {
		t.Fatalf("listeners should only see the successful set: %v", events)
	}
}

func TestFilePointerStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "pointers.json")
	first, err := NewFilePointerStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if err := first.Set(ctx, LastViewedKey, "ISBN1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := first.Set(ctx, SessionPointerKey, "x"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := first.Delete(ctx, SessionPointerKey); err != nil {
		t.Fatalf("delete: %v", err)
	}

	second, err := NewFilePointerStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if v, ok, err := second.Get(ctx, LastViewedKey); err != nil || !ok || v != "ISBN1" {
		t.Fatalf("get = %q ok=%v err=%v", v, ok, err)
	}
	if _, ok, _ := second.Get(ctx, SessionPointerKey); ok {
		t.Fatalf("expected deleted key to stay deleted")
	}
}

func TestRedisPointerStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	redis := miniredis.RunT(t)
	s := NewRedisPointerStore(redis.Addr(), "", time.Hour)
	defer s.Close()

	if _, ok, err := s.Get(ctx, SessionPointerKey); ok || err != nil {
		t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, SessionPointerKey, "ptr"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := redis.Get(redisPointerPrefix + SessionPointerKey); got != "ptr" {
		t.Fatalf("unexpected raw value: %q", got)
	}
	if ttl := redis.TTL(redisPointerPrefix + SessionPointerKey); ttl != time.Hour {
		t.Fatalf("ttl = %v, want 1h", ttl)
	}
	if err := s.Delete(ctx, SessionPointerKey); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, SessionPointerKey); ok {
		t.Fatalf("expected key deleted")
	}
}

func mustJWTCodec(t *testing.T) *JWTCodec {
	t.Helper()
	c, err := NewJWTCodec("pointer-secret")
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}
