package tracker

import (
	"testing"

	"github.com/jabolina/pmix-server/pkg/pmix/core"
	"github.com/jabolina/pmix-server/pkg/pmix/definition"
	"github.com/jabolina/pmix-server/pkg/pmix/types"
)

func newManager() *Manager {
	log := definition.NewDefaultLogger()
	log.ToggleDebug(false)
	return NewManager(log, types.ID{Namespace: "server", Rank: 0})
}

// TestManager_CoalescesIdenticalRanges exercises P2: two requests with
// the same range list get the same tracker.
func TestManager_CoalescesIdenticalRanges(t *testing.T) {
	m := newManager()
	r1 := []types.Range{{Namespace: "ns", Ranks: nil}}
	r2 := []types.Range{{Namespace: "ns", Ranks: nil}}

	t1, fresh1 := m.GetOrCreate(KindFence, r1, 1)
	t2, fresh2 := m.GetOrCreate(KindFence, r2, 1)
	if t1 != t2 {
		t.Fatalf("expected identical range lists to coalesce into one tracker")
	}
	if !fresh1 || fresh2 {
		t.Fatalf("expected only the first call to report fresh creation, got (%v, %v)", fresh1, fresh2)
	}
}

// TestManager_DistinctRangesDoNotCoalesce exercises P3.
func TestManager_DistinctRangesDoNotCoalesce(t *testing.T) {
	m := newManager()
	r1 := []types.Range{{Namespace: "ns", Ranks: []types.Rank{0}}}
	r2 := []types.Range{{Namespace: "ns", Ranks: []types.Rank{0, 1}}}

	t1, _ := m.GetOrCreate(KindFence, r1, 1)
	t2, _ := m.GetOrCreate(KindFence, r2, 1)
	if t1 == t2 {
		t.Fatalf("expected differing range lists to get distinct trackers")
	}
}

func TestManager_DifferentKindsNeverCoalesce(t *testing.T) {
	m := newManager()
	ranges := []types.Range{{Namespace: "ns"}}
	fence, _ := m.GetOrCreate(KindFence, ranges, 1)
	connect, _ := m.GetOrCreate(KindConnect, ranges, 1)
	if fence == connect {
		t.Fatalf("trackers of different kinds must never coalesce even with equal ranges")
	}
}

func TestTracker_AddContributorDedupes(t *testing.T) {
	tr := &Tracker{Kind: KindFence}
	p := &core.Peer{ID: types.ID{Namespace: "ns", Rank: 0}}
	tr.AddContributor(p, 5)
	tr.AddContributor(p, 5)
	if len(tr.Contributors()) != 1 {
		t.Fatalf("duplicate (peer, tag) contribution should be a no-op, got %d contributors", len(tr.Contributors()))
	}
}

func TestManager_NewSpawnTrackerNeverCoalesces(t *testing.T) {
	m := newManager()
	t1 := m.NewSpawnTracker()
	t2 := m.NewSpawnTracker()
	if t1 == t2 {
		t.Fatalf("two spawn requests from the same peer must get distinct trackers")
	}
}

func TestSharedReply_ReleasesAfterLastHolder(t *testing.T) {
	r := newSharedReply([]byte("hi"), 2)
	if r.Bytes() == nil {
		t.Fatalf("expected payload before release")
	}
	r.Release()
	if r.Bytes() == nil {
		t.Fatalf("payload should survive one of two releases")
	}
	r.Release()
	if r.Bytes() != nil {
		t.Fatalf("payload should be cleared after the last holder releases")
	}
}

func TestManager_FanStatusRemovesTrackerBeforeReply(t *testing.T) {
	m := newManager()
	ranges := []types.Range{{Namespace: "ns"}}
	tr, _ := m.GetOrCreate(KindConnect, ranges, 1)
	p := &core.Peer{ID: types.ID{Namespace: "ns", Rank: 0}}
	tr.AddContributor(p, 1)

	m.FanStatus(tr, types.StatusSuccess)

	fresh, wasFresh := m.GetOrCreate(KindConnect, ranges, 1)
	if fresh == tr {
		t.Fatalf("fanning a tracker's reply should have removed it from its kind-list")
	}
	if !wasFresh {
		t.Fatalf("expected a new tracker to be created after the previous one was removed")
	}
}
