package resolve

import (
	"context"

	"github.com/kong/go-offline-sync/pkg/op"
)

// LastWriteWins prefers the side with the higher logical timestamp. Ties
// favor local.
type LastWriteWins struct{}

var _ Resolver = LastWriteWins{}

func (LastWriteWins) Resolve(_ context.Context, local op.LocalState, remote op.RemoteState, _ []op.Operation) (op.Resolution, error) {
	if remote.Timestamp > local.Timestamp {
		return op.UseRemote(remote.Data), nil
	}
	return op.UseLocal(), nil
}
