package providers

import (
	"context"
	"time"
)

// Locker serializes overlap-check-then-insert across processes. TryLock never
// waits: it either acquires the key at once or reports ok == false.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}
