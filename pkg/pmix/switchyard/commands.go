package switchyard

import (
	"github.com/jabolina/pmix-server/pkg/pmix/core"
	"github.com/jabolina/pmix-server/pkg/pmix/definition"
	"github.com/jabolina/pmix-server/pkg/pmix/host"
	"github.com/jabolina/pmix-server/pkg/pmix/tracker"
	"github.com/jabolina/pmix-server/pkg/pmix/types"
	"github.com/jabolina/pmix-server/pkg/pmix/wire"
)

// runModex drives the modex-returning callback shape shared by FENCE
// and GET: the host may invoke cb from inside call, or later from any
// goroutine, and either way the tracker fans out exactly once (spec
// section 4.6, "server_release").
func (s *Switchyard) runModex(t *tracker.Tracker, call func(host.ModexCB) error) error {
	gate := &modexGate{}
	cb := func(status types.Status, data []types.ModexData, ud interface{}) {
		t.SetReply(encodeModexReply(status, data))
		gate.onReply(func() { s.Tracker.FanModex(t) })
	}
	err := call(cb)
	gate.onReturn(t.HasReply(), func() { s.Tracker.FanModex(t) })
	return err
}

func encodeModexReply(status types.Status, data []types.ModexData) []byte {
	p := wire.NewPacker()
	_ = p.Pack(int32(status))
	_ = p.Pack(int32(len(data)))
	for _, d := range data {
		_ = p.Pack(d)
	}
	return p.Bytes()
}

func (s *Switchyard) handleAbort(peer *core.Peer, hdr wire.Header, u *wire.Unpacker) {
	var status int32
	var msg string
	if err := u.Unpack(&status); err != nil {
		s.reply(peer, hdr.Tag, types.StatusBadParam)
		return
	}
	if err := u.Unpack(&msg); err != nil {
		s.reply(peer, hdr.Tag, types.StatusBadParam)
		return
	}
	if s.Module.Abort == nil {
		s.reply(peer, hdr.Tag, types.StatusNotSupported)
		return
	}
	err := s.Module.Abort(types.Status(status), msg)
	s.reply(peer, hdr.Tag, statusFor(err))
}

func (s *Switchyard) handleFence(peer *core.Peer, hdr wire.Header, log definition.Logger, u *wire.Unpacker, isFence bool) {
	var ranges []types.Range
	var collectData, barrier int32
	if err := u.Unpack(&ranges); err != nil {
		s.reply(peer, hdr.Tag, types.StatusBadParam)
		return
	}
	if err := u.Unpack(&collectData); err != nil {
		s.reply(peer, hdr.Tag, types.StatusBadParam)
		return
	}
	if err := u.Unpack(&barrier); err != nil {
		s.reply(peer, hdr.Tag, types.StatusBadParam)
		return
	}

	for {
		var scope int32
		if err := u.Unpack(&scope); err != nil {
			if !wire.UnpackErrIsEOF(err) {
				log.Errorf("malformed modex scope: %v", err)
			}
			break
		}
		var blob []byte
		if err := u.Unpack(&blob); err != nil {
			log.Errorf("truncated modex blob: %v", err)
			break
		}
		if s.Module.StoreModex != nil {
			data := types.ModexData{Peer: peer.ID, Scope: types.Scope(scope), Blob: blob}
			if err := s.Module.StoreModex(types.Scope(scope), data); err != nil {
				log.Warnf("store_modex failed: %v", err)
			}
		}
	}

	tracked := isFence || barrier != 0
	if !tracked {
		s.reply(peer, hdr.Tag, types.StatusSuccess)
		return
	}
	if s.Module.FenceNB == nil {
		s.reply(peer, hdr.Tag, types.StatusNotSupported)
		return
	}

	t, _ := s.Tracker.GetOrCreate(tracker.KindFence, ranges, s.expectedLocal(ranges))
	if !t.AddContributor(peer, hdr.Tag) {
		return
	}
	if err := s.runModex(t, func(cb host.ModexCB) error {
		return s.Module.FenceNB(ranges, barrier != 0, collectData != 0, cb, t)
	}); err != nil {
		log.Errorf("fence_nb failed: %v", err)
	}
}

func (s *Switchyard) handleGet(peer *core.Peer, hdr wire.Header, log definition.Logger, u *wire.Unpacker) {
	var ns string
	var rank int32
	if err := u.Unpack(&ns); err != nil {
		s.reply(peer, hdr.Tag, types.StatusBadParam)
		return
	}
	if err := u.Unpack(&rank); err != nil {
		s.reply(peer, hdr.Tag, types.StatusBadParam)
		return
	}
	if s.Module.GetModexNB == nil {
		s.reply(peer, hdr.Tag, types.StatusNotSupported)
		return
	}

	key := []types.Range{{Namespace: types.Namespace(ns), Ranks: []types.Rank{types.Rank(rank)}}}
	t, _ := s.Tracker.GetOrCreate(tracker.KindGet, key, s.expectedLocal(key))
	if !t.AddContributor(peer, hdr.Tag) {
		return
	}
	if err := s.runModex(t, func(cb host.ModexCB) error {
		return s.Module.GetModexNB(types.Namespace(ns), types.Rank(rank), cb, t)
	}); err != nil {
		log.Errorf("get_modex_nb failed: %v", err)
	}
}

func (s *Switchyard) handleJobInfo(peer *core.Peer, hdr wire.Header) {
	if s.Module.GetJobInfo == nil {
		s.reply(peer, hdr.Tag, types.StatusNotSupported)
		return
	}
	info, err := s.Module.GetJobInfo(peer.ID.Namespace, peer.ID.Rank)
	if err != nil {
		s.reply(peer, hdr.Tag, statusFor(err))
		return
	}
	p := wire.NewPacker()
	_ = p.Pack(int32(types.StatusSuccess))
	_ = p.Pack(info)
	s.replyPayload(peer, hdr.Tag, p.Bytes())
}

func (s *Switchyard) handleFinalize(peer *core.Peer, hdr wire.Header, log definition.Logger) {
	if s.Module.Terminated != nil {
		if err := s.Module.Terminated(peer.ID.Namespace, peer.ID.Rank); err != nil {
			log.Warnf("terminated upcall failed: %v", err)
		}
	}
	peer.Close()
}

func (s *Switchyard) handlePublish(peer *core.Peer, hdr wire.Header, u *wire.Unpacker) {
	var scope int32
	var info []types.Info
	if err := u.Unpack(&scope); err != nil {
		s.reply(peer, hdr.Tag, types.StatusBadParam)
		return
	}
	if err := u.Unpack(&info); err != nil {
		s.reply(peer, hdr.Tag, types.StatusBadParam)
		return
	}
	if s.Module.Publish == nil {
		s.reply(peer, hdr.Tag, types.StatusNotSupported)
		return
	}
	err := s.Module.Publish(types.Scope(scope), info)
	s.reply(peer, hdr.Tag, statusFor(err))
}

func (s *Switchyard) handleLookup(peer *core.Peer, hdr wire.Header, u *wire.Unpacker) {
	var scope int32
	var keys []string
	if err := u.Unpack(&scope); err != nil {
		s.reply(peer, hdr.Tag, types.StatusBadParam)
		return
	}
	if err := u.Unpack(&keys); err != nil {
		s.reply(peer, hdr.Tag, types.StatusBadParam)
		return
	}
	if s.Module.Lookup == nil {
		s.reply(peer, hdr.Tag, types.StatusNotSupported)
		return
	}
	ns, info, err := s.Module.Lookup(types.Scope(scope), keys)
	if err != nil {
		s.reply(peer, hdr.Tag, statusFor(err))
		return
	}
	p := wire.NewPacker()
	_ = p.Pack(int32(types.StatusSuccess))
	_ = p.Pack(string(ns))
	for _, rec := range info {
		_ = p.Pack(rec.Key)
		_ = p.Pack(rec.Value)
	}
	s.replyPayload(peer, hdr.Tag, p.Bytes())
}

func (s *Switchyard) handleUnpublish(peer *core.Peer, hdr wire.Header, u *wire.Unpacker) {
	var scope int32
	var keys []string
	if err := u.Unpack(&scope); err != nil {
		s.reply(peer, hdr.Tag, types.StatusBadParam)
		return
	}
	if err := u.Unpack(&keys); err != nil {
		s.reply(peer, hdr.Tag, types.StatusBadParam)
		return
	}
	if s.Module.Unpublish == nil {
		s.reply(peer, hdr.Tag, types.StatusNotSupported)
		return
	}
	err := s.Module.Unpublish(types.Scope(scope), keys)
	s.reply(peer, hdr.Tag, statusFor(err))
}

func (s *Switchyard) handleSpawn(peer *core.Peer, hdr wire.Header, log definition.Logger, u *wire.Unpacker) {
	var apps []types.App
	if err := u.Unpack(&apps); err != nil {
		s.reply(peer, hdr.Tag, types.StatusBadParam)
		return
	}
	if s.Module.Spawn == nil {
		s.reply(peer, hdr.Tag, types.StatusNotSupported)
		return
	}

	// Each request gets its own fresh tracker, never one looked up by
	// the spawning peer's identity (spec section 9's flagged
	// pre-existing bug: keying by peer identity alone would wrongly
	// coalesce two spawns issued back to back by the same rank).
	t := s.Tracker.NewSpawnTracker()
	t.AddContributor(peer, hdr.Tag)
	cb := func(status types.Status, newNS types.Namespace, ud interface{}) {
		s.Tracker.FanSpawn(t, status, newNS)
	}
	if err := s.Module.Spawn(apps, cb, t); err != nil {
		log.Errorf("spawn failed: %v", err)
	}
}

func (s *Switchyard) handleConnect(peer *core.Peer, hdr wire.Header, log definition.Logger, u *wire.Unpacker) {
	var ranges []types.Range
	if err := u.Unpack(&ranges); err != nil {
		s.reply(peer, hdr.Tag, types.StatusBadParam)
		return
	}
	if s.Module.Connect == nil {
		s.reply(peer, hdr.Tag, types.StatusNotSupported)
		return
	}
	t, _ := s.Tracker.GetOrCreate(tracker.KindConnect, ranges, s.expectedLocal(ranges))
	if !t.AddContributor(peer, hdr.Tag) {
		return
	}
	cb := func(status types.Status, ud interface{}) {
		s.Tracker.FanStatus(t, status)
	}
	if err := s.Module.Connect(ranges, cb, t); err != nil {
		log.Errorf("connect failed: %v", err)
	}
}

func (s *Switchyard) handleDisconnect(peer *core.Peer, hdr wire.Header, log definition.Logger, u *wire.Unpacker) {
	var ranges []types.Range
	if err := u.Unpack(&ranges); err != nil {
		s.reply(peer, hdr.Tag, types.StatusBadParam)
		return
	}
	if s.Module.Disconnect == nil {
		s.reply(peer, hdr.Tag, types.StatusNotSupported)
		return
	}
	t, _ := s.Tracker.GetOrCreate(tracker.KindDisconnect, ranges, s.expectedLocal(ranges))
	if !t.AddContributor(peer, hdr.Tag) {
		return
	}
	cb := func(status types.Status, ud interface{}) {
		s.Tracker.FanStatus(t, status)
	}
	if err := s.Module.Disconnect(ranges, cb, t); err != nil {
		log.Errorf("disconnect failed: %v", err)
	}
}
