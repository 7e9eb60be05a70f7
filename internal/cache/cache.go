// Package cache stores computed ledger results keyed by group and input fingerprint.
//
// A key embeds a fingerprint of everything the result was derived from, so a
// changed input never reads a stale entry. Old entries simply age out.
package cache

import "context"

// Key identifies one cached computation.
type Key struct {
	GroupID     string
	Fingerprint string
}

// String renders the key as "groupID:fingerprint".
func (k Key) String() string {
	return k.GroupID + ":" + k.Fingerprint
}

// Cache is a typed result cache. Get reports a miss with ok == false.
type Cache[T any] interface {
	Get(ctx context.Context, key Key) (value T, ok bool, err error)
	Set(ctx context.Context, key Key, value T) error
}

// Nop never stores anything.
type Nop[T any] struct{}

func (Nop[T]) Get(context.Context, Key) (T, bool, error) {
	var zero T
	return zero, false, nil
}

func (Nop[T]) Set(context.Context, Key, T) error { return nil }
