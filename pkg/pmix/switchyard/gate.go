package switchyard

import "sync"

// modexGate detects the source's "synchronous-in-async callback
// pattern" (spec section 9): a modex-returning host callback may fire
// either from inside the upcall (before it returns) or later, from an
// arbitrary goroutine, after the upcall has already returned. Either
// way the fan-out must happen exactly once, as soon as both the
// callback has set a reply and the triggering call has returned.
type modexGate struct {
	mu       sync.Mutex
	once     sync.Once
	returned bool
	replied  bool
}

// onReply is invoked from the host callback once it has stored a
// reply on the tracker. If the triggering upcall has already returned,
// this fans out immediately; otherwise onReturn will do it.
func (g *modexGate) onReply(fan func()) {
	g.mu.Lock()
	g.replied = true
	ready := g.returned
	g.mu.Unlock()
	if ready {
		g.once.Do(fan)
	}
}

// onReturn is invoked once the triggering upcall has returned. If the
// reply was already set synchronously, this fans out immediately;
// otherwise a later onReply call will do it.
func (g *modexGate) onReturn(hasReply bool, fan func()) {
	g.mu.Lock()
	g.returned = true
	ready := hasReply || g.replied
	g.mu.Unlock()
	if ready {
		g.once.Do(fan)
	}
}
