package memory

import (
	"context"
	"sync"
	"time"

	"github.com/zatekoja/medlogistics/backend/internal/domain/providers"
)

// Locker is a process-local providers.Locker. Held keys expire after their ttl
// so a crashed holder cannot wedge a resource forever.
type Locker struct {
	mu   sync.Mutex
	held map[string]lease
	now  func() time.Time
}

type lease struct {
	token   uint64
	expires time.Time
}

// NewLocker creates a Locker
func NewLocker() *Locker {
	return &Locker{held: make(map[string]lease), now: time.Now}
}

var _ providers.Locker = (*Locker)(nil)

var lockTokens struct {
	sync.Mutex
	next uint64
}

func nextToken() uint64 {
	lockTokens.Lock()
	defer lockTokens.Unlock()
	lockTokens.next++
	return lockTokens.next
}

// TryLock acquires key if it is free or its previous lease has expired
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return nil, false, nil
	}
	token := nextToken()
	l.held[key] = lease{token: token, expires: now.Add(ttl)}

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.held[key]; ok && cur.token == token {
			delete(l.held, key)
		}
	}, true, nil
}
