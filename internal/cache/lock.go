package cache

import (
	"context"
	"sync"
	"time"

	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/sirupsen/logrus"
)

// UnitLocker serializes calendar writes per unit. The returned unlock is idempotent: only its first
// call releases the lock.
type UnitLocker interface {
	Lock(ctx context.Context, unitID int64) (unlock func(), err error)
}

// LocalLocker is an in-process keyed mutex. Entries are reference counted and removed when unused.
type LocalLocker struct {
	mu    sync.Mutex
	units map[int64]*unitMutex
}

type unitMutex struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{units: make(map[int64]*unitMutex)}
}

func (l *LocalLocker) Lock(ctx context.Context, unitID int64) (func(), error) {
	l.mu.Lock()
	m, ok := l.units[unitID]
	if !ok {
		m = &unitMutex{ch: make(chan struct{}, 1)}
		l.units[unitID] = m
	}
	m.refs++
	l.mu.Unlock()

	select {
	case m.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(unitID, m)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-m.ch
			l.release(unitID, m)
		})
	}, nil
}

func (l *LocalLocker) release(unitID int64, m *unitMutex) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m.refs--
	if m.refs == 0 {
		delete(l.units, unitID)
	}
}

// RedisLocker holds the unit lock in Redis so several API replicas serialize on the same key.
// It polls until the lock is free, ctx is done, or Wait has elapsed.
type RedisLocker struct {
	cache *RedisCache
	TTL   time.Duration
	Wait  time.Duration
	Poll  time.Duration
	log   logrus.FieldLogger
}

func NewRedisLocker(cache *RedisCache, ttl time.Duration, log logrus.FieldLogger) *RedisLocker {
	return &RedisLocker{cache: cache, TTL: ttl, Wait: ttl, Poll: 50 * time.Millisecond, log: log}
}

func (l *RedisLocker) Lock(ctx context.Context, unitID int64) (func(), error) {
	deadline := time.Now().Add(l.Wait)
	for {
		token, ok, err := l.cache.AcquireUnitLock(ctx, unitID, l.TTL)
		if err != nil {
			return nil, err
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					if err := l.cache.ReleaseUnitLock(context.WithoutCancel(ctx), unitID, token); err != nil {
						l.log.WithError(err).WithField("unit_id", unitID).Warn("release unit lock")
					}
				})
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, domain.ErrUnitLocked
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.Poll):
		}
	}
}

var (
	_ UnitLocker  = (*LocalLocker)(nil)
	_ UnitLocker  = (*RedisLocker)(nil)
	_ SharedStore = (*RedisCache)(nil)
	_ SharedStore = (*MemcachedStore)(nil)
)
