package keystore

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable indicates the keystore could not be reached or refused the
// operation. Callers check it with errors.Is and surface 503 to clients.
var ErrUnavailable = errors.New("keystore unavailable")

// Subscription is a live pub/sub subscription on a single channel.
//
// Messages delivers payloads until Close is called or the subscribing context
// is cancelled, at which point the channel is closed. Messages published while
// nobody is subscribed are lost; that loss is part of the gateway's
// at-most-once contract.
type Subscription interface {
	// Messages returns the channel payloads are delivered on.
	Messages() <-chan string

	// Close terminates the subscription and releases its connection.
	Close() error
}

// Store is the keystore surface the gateway components program against.
//
// All operations are context-bound and may fail with an error wrapping
// ErrUnavailable. A missing key is not an error: Get reports presence via its
// second return value.
type Store interface {
	// Get returns the value at key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes key without expiry (executor tokens only).
	Set(ctx context.Context, key, value string) error

	// SetEx writes key with the given TTL.
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX atomically writes key only if absent. ttl may be zero for no
	// expiry. Returns whether the write happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Del removes the given keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Expire resets key's TTL. Returns false when the key does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// TTL returns the remaining TTL of key. Negative values follow Redis
	// semantics (-1 no expiry, -2 missing key).
	TTL(ctx context.Context, key string) (time.Duration, error)

	// SAdd adds members to the set at key.
	SAdd(ctx context.Context, key string, members ...string) error

	// SRem removes members from the set at key.
	SRem(ctx context.Context, key string, members ...string) error

	// SMembers returns all members of the set at key.
	SMembers(ctx context.Context, key string) ([]string, error)

	// LPush prepends values to the list at key.
	LPush(ctx context.Context, key string, values ...string) error

	// LTrim trims the list at key to the index range [start, stop].
	LTrim(ctx context.Context, key string, start, stop int64) error

	// LLen returns the length of the list at key.
	LLen(ctx context.Context, key string) (int64, error)

	// LRange returns the elements of the list at key in [start, stop].
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Publish sends payload to all current subscribers of channel.
	Publish(ctx context.Context, channel, payload string) error

	// Subscribe opens a subscription on channel. The subscription ends when
	// ctx is cancelled or Close is called.
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	// Keys returns all keys matching pattern. Admin paths only; never on the
	// request hot path.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection pool.
	Close() error
}
