package cache

import "context"

// Store is a shared string key/value store. Values do not expire.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}
