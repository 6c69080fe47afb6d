// Package feed defines the ports through which the store talks to the
// remote source of truth, plus the push hub that collaborators use to
// deliver full snapshots to their subscribers.
package feed

import (
	"context"
	"errors"

	"tally/internal/core"
)

// ErrNotFound is returned by mutations addressing a record that does not exist.
var ErrNotFound = errors.New("record not found")

type (
	// SnapshotFunc receives the complete current record set of one owner.
	SnapshotFunc func(records []core.Record)

	// ErrorFunc receives the error that ended a subscription.
	ErrorFunc func(err error)

	// Unsubscribe detaches a subscription. It is safe to call more than once.
	Unsubscribe func()
)

// Ports for outbound adapters.
type (
	// Subscriber pushes the owner's full record set on every change until
	// unsubscribed or until it reports an error.
	Subscriber interface {
		Subscribe(ownerID string, onSnapshot SnapshotFunc, onError ErrorFunc) Unsubscribe
	}

	// Mutator issues writes. Ids and timestamps are assigned by the implementation.
	// Update rejects a patch whose merged kind and category disagree with a
	// *core.ValidationError.
	Mutator interface {
		Create(ctx context.Context, ownerID string, f core.Fields) (id string, err error)
		Update(ctx context.Context, id string, p core.Patch) error
		Delete(ctx context.Context, id string) error
		BulkDelete(ctx context.Context, ids []string) error
	}

	// Lister enumerates an owner's record ids.
	Lister interface {
		ListIDs(ctx context.Context, ownerID string) ([]string, error)
	}

	// Remote is the full collaborator surface the store consumes.
	Remote interface {
		Subscriber
		Mutator
		Lister
	}
)
