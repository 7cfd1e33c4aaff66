package port

import "context"

// QuotaLocker serializes settlement commits per quota key across goroutines
// and, for distributed implementations, across processes.
type QuotaLocker interface {
	// Lock acquires every key and returns a function releasing them all.
	// Keys are acquired in sorted order so callers cannot deadlock each other.
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}
