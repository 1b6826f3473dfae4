package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bookchain/pkg/domain"
)

// Config configures a Store.
type Config struct {
	Pointers PointerStore
	Codec    PointerCodec
	Now      func() time.Time
	Logger   *slog.Logger
}

// Listener observes session changes. ok is false after Clear. Listeners run
// synchronously in change order and must not call Set, Clear or Restore.
type Listener func(s domain.Session, ok bool)

// Store owns the single active session and its persisted pointer.
type Store struct {
	pointers PointerStore
	codec    PointerCodec
	now      func() time.Time
	logger   *slog.Logger

	// writeMu orders Set/Clear/Restore including their notifications.
	writeMu sync.Mutex

	mu        sync.RWMutex
	current   *domain.Session
	listeners map[int]Listener
	nextID    int
}

// NewStore constructs a session store. A nil pointer store keeps pointers in
// memory; a nil codec stores them as JSON.
func NewStore(cfg Config) *Store {
	if cfg.Pointers == nil {
		cfg.Pointers = NewMemoryPointerStore()
	}
	if cfg.Codec == nil {
		cfg.Codec = JSONCodec{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Store{
		pointers:  cfg.Pointers,
		codec:     cfg.Codec,
		now:       cfg.Now,
		logger:    cfg.Logger,
		listeners: make(map[int]Listener),
	}
}

// IsExpired reports whether s is no longer valid at now.
func IsExpired(s domain.Session, now time.Time) bool {
	return s.Expired(now)
}

// Current returns the active session. An expired session is reported as
// absent but stays stored until replaced or cleared.
func (s *Store) Current() (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || IsExpired(*s.current, s.now()) {
		return domain.Session{}, false
	}
	return *s.current, true
}

// Require returns the active session or ErrNoSession/ErrSessionExpired.
func (s *Store) Require() (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return domain.Session{}, ErrNoSession
	}
	if IsExpired(*s.current, s.now()) {
		return domain.Session{}, ErrSessionExpired
	}
	return *s.current, nil
}

// Set persists the session's pointer and then replaces any prior session.
// When persisting fails the prior session is kept.
func (s *Store) Set(ctx context.Context, sess domain.Session) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	value, err := s.codec.Encode(sess)
	if err != nil {
		return fmt.Errorf("encode session pointer: %w", err)
	}
	if err := s.pointers.Set(ctx, SessionPointerKey, value); err != nil {
		return fmt.Errorf("persist session pointer: %w", err)
	}
	s.mu.Lock()
	s.current = &sess
	s.mu.Unlock()
	s.notify(sess, true)
	return nil
}

// Clear deletes the pointer and then drops the session. When the delete
// fails the session is kept.
func (s *Store) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.pointers.Delete(ctx, SessionPointerKey); err != nil {
		return fmt.Errorf("delete session pointer: %w", err)
	}
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	s.notify(domain.Session{}, false)
	return nil
}

// Restore republishes the session named by the persisted pointer when it is
// still valid. Expired or unreadable pointers are deleted and reported as no
// session; a restored session is never extended.
func (s *Store) Restore(ctx context.Context) (domain.Session, bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	value, ok, err := s.pointers.Get(ctx, SessionPointerKey)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("read session pointer: %w", err)
	}
	if !ok {
		return domain.Session{}, false, nil
	}
	now := s.now()
	sess, err := s.codec.Decode(value, now)
	if err == nil && IsExpired(sess, now) {
		err = ErrSessionExpired
	}
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			s.logger.Info("discarding expired session pointer")
		} else {
			s.logger.Warn("discarding unreadable session pointer", "err", err)
		}
		if delErr := s.pointers.Delete(ctx, SessionPointerKey); delErr != nil {
			return domain.Session{}, false, fmt.Errorf("delete session pointer: %w", delErr)
		}
		return domain.Session{}, false, nil
	}

	s.mu.Lock()
	s.current = &sess
	s.mu.Unlock()
	s.notify(sess, true)
	return sess, true, nil
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) notify(sess domain.Session, ok bool) {
	s.mu.RLock()
	ls := make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if l, found := s.listeners[id]; found {
			ls = append(ls, l)
		}
	}
	s.mu.RUnlock()
	for _, l := range ls {
		l(sess, ok)
	}
}
