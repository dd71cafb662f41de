package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/leafsii/leafsii-vault/pkg/kv"
)

// Store is an in-memory implementation of the kv.Store interface
type Store struct {
	mu          sync.RWMutex
	strings     map[string][]byte
	hashes      map[string]map[string][]byte
	lists       map[string][][]byte
	expirations map[string]time.Time
	now         func() time.Time

	janitorInterval time.Duration
	janitorStop     chan struct{}
	janitorDone     chan struct{}
	closeOnce       sync.Once
}

// New creates a new in-memory store. A zero janitorInterval disables the
// background sweep; expired keys are still hidden from reads.
func New(janitorInterval time.Duration) *Store {
	s := &Store{
		strings:         make(map[string][]byte),
		hashes:          make(map[string]map[string][]byte),
		lists:           make(map[string][][]byte),
		expirations:     make(map[string]time.Time),
		now:             time.Now,
		janitorInterval: janitorInterval,
		janitorStop:     make(chan struct{}),
		janitorDone:     make(chan struct{}),
	}

	if janitorInterval > 0 {
		go s.janitor()
	} else {
		close(s.janitorDone)
	}
	return s
}

func (s *Store) janitor() {
	defer close(s.janitorDone)
	ticker := time.NewTicker(s.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.janitorStop:
			return
		}
	}
}

func (s *Store) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, expiry := range s.expirations {
		if !now.Before(expiry) {
			s.dropUnsafe(key)
		}
	}
}

// live reports whether key exists and has not expired. Callers hold mu.
func (s *Store) live(key string) bool {
	if expiry, ok := s.expirations[key]; ok && !s.now().Before(expiry) {
		return false
	}
	if _, ok := s.strings[key]; ok {
		return true
	}
	if _, ok := s.hashes[key]; ok {
		return true
	}
	_, ok := s.lists[key]
	return ok
}

// reap drops key when it has expired. Callers hold the write lock.
func (s *Store) reap(key string) {
	if expiry, ok := s.expirations[key]; ok && !s.now().Before(expiry) {
		s.dropUnsafe(key)
	}
}

func (s *Store) dropUnsafe(key string) {
	delete(s.strings, key)
	delete(s.hashes, key)
	delete(s.lists, key)
	delete(s.expirations, key)
}

func (s *Store) setUnsafe(key string, value []byte, ttl time.Duration) {
	s.dropUnsafe(key)
	s.strings[key] = append([]byte(nil), value...)
	if ttl > 0 {
		s.expirations[key] = s.now().Add(ttl)
	}
}

func (s *Store) hsetUnsafe(key, field string, value []byte) error {
	s.reap(key)
	h, ok := s.hashes[key]
	if !ok {
		if s.live(key) {
			return kv.ErrWrongType
		}
		h = make(map[string][]byte)
		s.hashes[key] = h
	}
	h[field] = append([]byte(nil), value...)
	return nil
}

// String operations

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expiration time.Duration
	if len(ttl) > 0 {
		expiration = ttl[0]
	}
	s.setUnsafe(key, value, expiration)
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.live(key) {
		return nil, kv.ErrNotFound
	}
	value, ok := s.strings[key]
	if !ok {
		return nil, kv.ErrWrongType
	}
	return append([]byte(nil), value...), nil
}

// Key operations

func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for _, key := range keys {
		if s.live(key) {
			deleted++
		}
		s.dropUnsafe(key)
	}
	return deleted, nil
}

func (s *Store) Exists(ctx context.Context, keys ...string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, key := range keys {
		if s.live(key) {
			n++
		}
	}
	return n, nil
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reap(key)
	if !s.live(key) {
		return false, nil
	}
	if ttl <= 0 {
		s.dropUnsafe(key)
		return true, nil
	}
	s.expirations[key] = s.now().Add(ttl)
	return true, nil
}

// TTL returns -1 for a key without expiry.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.live(key) {
		return 0, kv.ErrNotFound
	}
	expiry, ok := s.expirations[key]
	if !ok {
		return -1, nil
	}
	return expiry.Sub(s.now()), nil
}

// Counter operations

func (s *Store) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reap(key)
	var current int64
	if s.live(key) {
		value, ok := s.strings[key]
		if !ok {
			return 0, kv.ErrWrongType
		}
		parsed, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value of %q is not an integer: %w", key, err)
		}
		current = parsed
	}

	next := current + n
	s.strings[key] = []byte(strconv.FormatInt(next, 10))
	return next, nil
}

// Hash operations

func (s *Store) HSet(ctx context.Context, key string, field string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hsetUnsafe(key, field, value)
}

func (s *Store) HGet(ctx context.Context, key string, field string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.live(key) {
		return nil, kv.ErrNotFound
	}
	h, ok := s.hashes[key]
	if !ok {
		return nil, kv.ErrWrongType
	}
	value, ok := h[field]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (s *Store) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reap(key)
	h, ok := s.hashes[key]
	if !ok {
		return 0, nil
	}
	var deleted int64
	for _, field := range fields {
		if _, ok := h[field]; ok {
			delete(h, field)
			deleted++
		}
	}
	if len(h) == 0 {
		s.dropUnsafe(key)
	}
	return deleted, nil
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.live(key) {
		return nil, kv.ErrNotFound
	}
	h, ok := s.hashes[key]
	if !ok {
		return nil, kv.ErrWrongType
	}
	out := make(map[string][]byte, len(h))
	for field, value := range h {
		out[field] = append([]byte(nil), value...)
	}
	return out, nil
}

// List operations

func (s *Store) RPush(ctx context.Context, key string, values ...[]byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reap(key)
	list, ok := s.lists[key]
	if !ok && s.live(key) {
		return 0, kv.ErrWrongType
	}
	for _, v := range values {
		list = append(list, append([]byte(nil), v...))
	}
	s.lists[key] = list
	return int64(len(list)), nil
}

// LRange follows Redis index rules: negative indices count from the tail and
// stop is inclusive.
func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.live(key) {
		return nil, kv.ErrNotFound
	}
	list, ok := s.lists[key]
	if !ok {
		return nil, kv.ErrWrongType
	}

	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return [][]byte{}, nil
	}

	out := make([][]byte, 0, stop-start+1)
	for _, v := range list[start : stop+1] {
		out = append(out, append([]byte(nil), v...))
	}
	return out, nil
}

func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.live(key) {
		return 0, nil
	}
	list, ok := s.lists[key]
	if !ok {
		return 0, kv.ErrWrongType
	}
	return int64(len(list)), nil
}

// Apply validates every op before writing any, so a rejected batch leaves the
// store untouched.
func (s *Store) Apply(ctx context.Context, b *kv.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ops := b.Ops()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range ops {
		if op.Kind == kv.OpHSet {
			s.reap(op.Key)
			if _, isHash := s.hashes[op.Key]; !isHash && s.live(op.Key) {
				return fmt.Errorf("hset %q: %w", op.Key, kv.ErrWrongType)
			}
		}
	}
	for _, op := range ops {
		switch op.Kind {
		case kv.OpSet:
			s.setUnsafe(op.Key, op.Value, 0)
		case kv.OpHSet:
			if err := s.hsetUnsafe(op.Key, op.Field, op.Value); err != nil {
				return err
			}
		case kv.OpDel:
			s.dropUnsafe(op.Key)
		default:
			return fmt.Errorf("unknown batch op %s", op.Kind)
		}
	}
	return nil
}

// Ping always returns nil for the in-memory store (always available)
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close stops the background janitor and drops all data
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.janitorInterval > 0 {
			close(s.janitorStop)
		}
		<-s.janitorDone

		s.mu.Lock()
		defer s.mu.Unlock()
		s.strings = make(map[string][]byte)
		s.hashes = make(map[string]map[string][]byte)
		s.lists = make(map[string][][]byte)
		s.expirations = make(map[string]time.Time)
	})
	return nil
}
