// Package switchyard implements the command dispatch table that sits
// between a decoded frame and the host module: it unpacks a command's
// arguments, invokes the matching host upcall, and either builds an
// immediate reply or parks the request in a collective tracker (spec
// component C5).
package switchyard

import (
	"fmt"

	"github.com/jabolina/pmix-server/pkg/pmix/core"
	"github.com/jabolina/pmix-server/pkg/pmix/definition"
	"github.com/jabolina/pmix-server/pkg/pmix/host"
	"github.com/jabolina/pmix-server/pkg/pmix/tracker"
	"github.com/jabolina/pmix-server/pkg/pmix/types"
	"github.com/jabolina/pmix-server/pkg/pmix/wire"
)

// Cmd enumerates the opcodes a client may send, unpacked as the first
// int32 of a USER frame's payload.
type Cmd int32

const (
	CmdAbort Cmd = iota
	CmdFence
	CmdFenceNB
	CmdGet
	CmdGetNB
	CmdJobInfo
	CmdFinalize
	CmdPublish
	CmdLookup
	CmdUnpublish
	CmdSpawn
	CmdConnect
	CmdDisconnect
)

// Sender is what the switchyard needs from the reactor to deliver a
// reply frame: enqueue onto one peer's send queue.
type Sender interface {
	Enqueue(frame wire.OutFrame)
}

// Switchyard decodes frames, calls into the host module, and replies.
// It is the Dispatcher the reactor (core.Reactor) hands every complete
// frame to.
type Switchyard struct {
	Log      definition.Logger
	Module   *host.Module
	Tracker  *tracker.Manager
	Table    *core.Table
	ServerID types.ID
}

// Dispatch implements core.Dispatcher.
func (s *Switchyard) Dispatch(peer *core.Peer, hdr wire.Header, payload []byte) {
	log := definition.WithPeer(s.Log, string(peer.ID.Namespace), int32(peer.ID.Rank), hdr.Tag)

	if hdr.Type != wire.User {
		log.Warnf("dropping non-USER frame")
		return
	}

	u := wire.NewUnpacker(payload)
	var cmd int32
	if err := u.Unpack(&cmd); err != nil {
		log.Errorf("decode command: %v", err)
		s.reply(peer, hdr.Tag, types.StatusBadParam)
		return
	}

	switch Cmd(cmd) {
	case CmdAbort:
		s.handleAbort(peer, hdr, u)
	case CmdFence, CmdFenceNB:
		s.handleFence(peer, hdr, log, u, Cmd(cmd) == CmdFence)
	case CmdGet, CmdGetNB:
		s.handleGet(peer, hdr, log, u)
	case CmdJobInfo:
		s.handleJobInfo(peer, hdr)
	case CmdFinalize:
		s.handleFinalize(peer, hdr, log)
	case CmdPublish:
		s.handlePublish(peer, hdr, u)
	case CmdLookup:
		s.handleLookup(peer, hdr, u)
	case CmdUnpublish:
		s.handleUnpublish(peer, hdr, u)
	case CmdSpawn:
		s.handleSpawn(peer, hdr, log, u)
	case CmdConnect:
		s.handleConnect(peer, hdr, log, u)
	case CmdDisconnect:
		s.handleDisconnect(peer, hdr, log, u)
	default:
		log.Warnf("unknown command %d", cmd)
		s.reply(peer, hdr.Tag, types.StatusBadParam)
	}
}

// reply builds and enqueues a status-only immediate reply for peer on
// tag, used by every command that is not tracked.
func (s *Switchyard) reply(peer *core.Peer, tag uint32, status types.Status) {
	s.replyPayload(peer, tag, mustPack(int32(status)))
}

func (s *Switchyard) replyPayload(peer *core.Peer, tag uint32, payload []byte) {
	frame := wire.OutFrame{
		Header: wire.Header{
			Namespace: string(s.ServerID.Namespace),
			Rank:      int32(s.ServerID.Rank),
			Type:      wire.User,
			Tag:       tag,
			Nbytes:    uint32(len(payload)),
		},
		Payload: payload,
	}
	peer.Enqueue(frame)
}

// mustPack packs a single value that is always representable (an
// int32 status or a string), logging nothing and panicking only on a
// codec bug — acceptable here because these are fixed small types, not
// user-controlled data.
func mustPack(v interface{}) []byte {
	b, err := wire.Pack(v)
	if err != nil {
		panic(fmt.Sprintf("pmix: pack of %T failed: %v", v, err))
	}
	return b
}

// expectedLocal sizes a tracker's Expected field: for each range, an
// explicit rank list only counts the ranks actually registered on this
// daemon (a range may name ranks that live on another node entirely,
// which must never make a local collective wait forever); a wildcard
// range (no ranks listed) counts every locally registered identity in
// that namespace. Grounded on original_source's get_tracker, which
// keeps a fence/connect/disconnect tracker alive across every local
// contributor rather than firing on the first one to arrive.
func (s *Switchyard) expectedLocal(ranges []types.Range) int {
	total := 0
	for _, r := range ranges {
		if len(r.Ranks) == 0 {
			total += s.Table.CountNamespace(r.Namespace)
			continue
		}
		for _, rank := range r.Ranks {
			if s.Table.Contains(types.ID{Namespace: r.Namespace, Rank: rank}) {
				total++
			}
		}
	}
	if total < 1 {
		total = 1
	}
	return total
}

// statusFor maps an internal error to the wire status reported back to
// the client (spec section 7, "Propagation policy").
func statusFor(err error) types.Status {
	if err == nil {
		return types.StatusSuccess
	}
	switch err.(type) {
	case core.ErrUnknownPeer:
		return types.StatusUnknown
	}
	return types.StatusOutOfResource
}
