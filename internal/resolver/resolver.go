// Package resolver maps human-readable room names to numeric room ids.
package resolver

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by a Resolver that has no entry for a name. Chain
// moves on to the next resolver only on this error.
var ErrNotFound = errors.New("room not found")

// Resolver maps a room name to its numeric id.
type Resolver interface {
	Resolve(ctx context.Context, name string) (int, error)
}

// ResolveError is a lookup rejected by the room API.
type ResolveError struct {
	Name   string
	Code   int    // API error code, non-zero
	Detail string // the response's data field
}

// codeRoomNotFound is the API's answer for an unknown room name.
const codeRoomNotFound = 101

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve room %q: api error %d: %s", e.Name, e.Code, e.Detail)
}

// Is reports an unknown-room rejection as ErrNotFound.
func (e *ResolveError) Is(target error) bool {
	return target == ErrNotFound && e.Code == codeRoomNotFound
}

// Chain tries each resolver in order. When every resolver misses, an API
// rejection is returned in preference to a bare ErrNotFound.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context, name string) (int, error) {
	var miss error
	for _, r := range c {
		id, err := r.Resolve(ctx, name)
		if errors.Is(err, ErrNotFound) {
			miss = err
			continue
		}
		return id, err
	}
	var re *ResolveError
	if errors.As(miss, &re) {
		return 0, re
	}
	return 0, fmt.Errorf("resolve room %q: %w", name, ErrNotFound)
}
