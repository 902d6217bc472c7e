// Package resolve defines the conflict resolver contract and ships the two
// resolvers this module ships: last-write-wins and field-level merge.
package resolve

import (
	"context"

	"github.com/kong/go-offline-sync/pkg/op"
)

// Resolver decides, given local state, remote state, and the pending
// operations for an entity, how to reconcile a conflict. May suspend for
// I/O in custom implementations.
type Resolver interface {
	Resolve(ctx context.Context, local op.LocalState, remote op.RemoteState, pending []op.Operation) (op.Resolution, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, local op.LocalState, remote op.RemoteState, pending []op.Operation) (op.Resolution, error)

func (f ResolverFunc) Resolve(ctx context.Context, local op.LocalState, remote op.RemoteState, pending []op.Operation) (op.Resolution, error) {
	return f(ctx, local, remote, pending)
}
