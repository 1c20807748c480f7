// Package host defines the contract between the core server and the
// embedding workload manager: the upcalls the host registers and the
// callback shapes the core invokes once the host completes an
// asynchronous operation. The core never implements any of this
// itself — every method here is optional, and its absence turns into a
// NOT_SUPPORTED reply to the client that asked for it.
package host

import "github.com/jabolina/pmix-server/pkg/pmix/types"

// ModexCB is invoked by the host when a modex-returning collective
// (FENCE or GET) completes.
type ModexCB func(status types.Status, data []types.ModexData, ud interface{})

// StatusCB is invoked by the host when a status-only collective
// (CONNECT or DISCONNECT) completes.
type StatusCB func(status types.Status, ud interface{})

// SpawnCB is invoked by the host when a SPAWN completes.
type SpawnCB func(status types.Status, newNamespace types.Namespace, ud interface{})

// Module is the set of upcalls an embedding host may register. Every
// field is independently optional: a nil method is indistinguishable,
// from the switchyard's point of view, from a host that never
// implemented it, and both produce a NOT_SUPPORTED reply.
type Module struct {
	Abort func(status types.Status, msg string) error

	FenceNB func(ranges []types.Range, barrier bool, collectData bool, cb ModexCB, ud interface{}) error

	StoreModex func(scope types.Scope, data types.ModexData) error

	GetModexNB func(ns types.Namespace, rank types.Rank, cb ModexCB, ud interface{}) error

	Publish func(scope types.Scope, info []types.Info) error

	Lookup func(scope types.Scope, keys []string) (ns types.Namespace, info []types.Info, err error)

	Unpublish func(scope types.Scope, keys []string) error

	Spawn func(apps []types.App, cb SpawnCB, ud interface{}) error

	Connect func(ranges []types.Range, cb StatusCB, ud interface{}) error

	Disconnect func(ranges []types.Range, cb StatusCB, ud interface{}) error

	// Authenticate inspects an opaque credential token and returns nil
	// on success. The core never interprets the token itself (spec
	// non-goal: "authentication cryptography").
	Authenticate func(token []byte) error

	GetJobInfo func(ns types.Namespace, rank types.Rank) ([]types.Info, error)

	Terminated func(ns types.Namespace, rank types.Rank) error
}
