package app

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"proctor-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// SessionSource lists all scheduled sessions from a backing store.
type SessionSource interface {
	Sessions(ctx context.Context) ([]domain.Session, error)
}

// CachedDirectory resolves schools to sessions from a TTL-cached snapshot of
// the source. The session list is small, so a full scan per resolve is fine;
// caching keeps the window snapshot stable for the duration of an attempt
// even if the directory is edited administratively.
type CachedDirectory struct {
	source SessionSource
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	sessions  []domain.Session
	expiresAt time.Time
}

func NewCachedDirectory(source SessionSource, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Resolve returns the session whose school set contains schoolID, or
// domain.ErrSessionNotFound.
func (d *CachedDirectory) Resolve(ctx context.Context, schoolID string) (domain.Session, error) {
	sessions, err := d.snapshot(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	for _, session := range sessions {
		if session.Includes(schoolID) {
			return session, nil
		}
	}
	return domain.Session{}, domain.ErrSessionNotFound
}

func (d *CachedDirectory) snapshot(ctx context.Context) ([]domain.Session, error) {
	now := d.clock()

	d.mu.RLock()
	if d.sessions != nil && d.expiresAt.After(now) {
		sessions := d.sessions
		d.mu.RUnlock()
		return sessions, nil
	}
	d.mu.RUnlock()

	result, err, _ := d.sf.Do("sessions", func() (interface{}, error) {
		now := d.clock()
		d.mu.RLock()
		if d.sessions != nil && d.expiresAt.After(now) {
			sessions := d.sessions
			d.mu.RUnlock()
			return sessions, nil
		}
		d.mu.RUnlock()

		sessions, err := d.source.Sessions(ctx)
		if err != nil {
			return nil, err
		}

		d.mu.Lock()
		d.sessions = sessions
		d.expiresAt = now.Add(d.ttlWithJitter())
		d.mu.Unlock()
		return sessions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Session), nil
}

func (d *CachedDirectory) ttlWithJitter() time.Duration {
	if d.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(d.ttl) / 10
	return d.ttl + time.Duration(d.rnd.Int63n(jitterMax+1))
}

// Invalidate drops the cached snapshot, forcing the next resolve to re-read
// the source. Used after administrative session rewrites.
func (d *CachedDirectory) Invalidate() {
	d.mu.Lock()
	d.sessions = nil
	d.expiresAt = time.Time{}
	d.mu.Unlock()
}
