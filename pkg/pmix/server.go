// Package pmix is the top-level facade: it composes the peer table,
// reactor, tracker manager and switchyard behind the init/finalize
// lifecycle and the environment-variable contract spec.md section 4.8
// and section 6 describe (spec component C8).
package pmix

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/jabolina/pmix-server/pkg/pmix/core"
	"github.com/jabolina/pmix-server/pkg/pmix/host"
	"github.com/jabolina/pmix-server/pkg/pmix/switchyard"
	"github.com/jabolina/pmix-server/pkg/pmix/tracker"
)

// Server owns one rendezvous socket and everything behind it. Init is
// idempotent through a reference count, matching the source's
// init_cntr discipline (spec section 4.8).
type Server struct {
	opts Options

	mu       sync.Mutex
	refcount int
	table    *core.Table
	reactor  *core.Reactor
	tracker  *tracker.Manager
	path     string
	uri      string
}

// New builds a Server from options; it does nothing observable until
// Init is called.
func New(opts ...Option) *Server {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return &Server{opts: o}
}

// Init performs real initialization on the first call and just bumps
// the reference count on subsequent calls (spec section 4.8).
func (s *Server) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refcount++
	if s.refcount > 1 {
		return nil
	}

	applyDebugEnv(s.opts.Log)

	tmpdir := resolveTmpDir(s.opts.TmpDir)
	path := filepath.Join(tmpdir, fmt.Sprintf("pmix-%d", os.Getpid()))

	s.table = core.NewTable()
	s.tracker = tracker.NewManager(s.opts.Log, s.opts.ServerID)
	yard := &switchyard.Switchyard{
		Log:      s.opts.Log,
		Module:   moduleOrEmpty(s.opts.Module),
		Tracker:  s.tracker,
		Table:    s.table,
		ServerID: s.opts.ServerID,
	}
	s.reactor = &core.Reactor{
		Table:      s.table,
		Log:        s.opts.Log,
		Version:    s.opts.Version,
		Module:     moduleOrEmpty(s.opts.Module),
		Dispatcher: yard,
	}

	if err := s.reactor.Listen(path); err != nil {
		s.refcount--
		return err
	}
	s.path = path
	s.uri = fmt.Sprintf("%d:%s", os.Getpid(), path)
	return nil
}

// Finalize matches Init; only the last unref tears anything down
// (spec section 4.8).
func (s *Server) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refcount == 0 {
		return nil
	}
	s.refcount--
	if s.refcount > 0 {
		return nil
	}
	if s.reactor != nil {
		s.reactor.Finalize()
	}
	return nil
}

// URI returns the rendezvous URI advertised to children, or "" before
// Init.
func (s *Server) URI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uri
}

// Path returns the rendezvous socket path, or "" before Init.
func (s *Server) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Table exposes the peer table so a caller can pre-register an
// expected child identity before spawning it (SetupFork does this
// already; exposed for callers that register without spawning).
func (s *Server) Table() *core.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table
}

// resolveTmpDir implements spec section 4.8's lookup order: explicit
// argument, then TMPDIR, TEMP, TMP, then /tmp.
func resolveTmpDir(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, key := range []string{"TMPDIR", "TEMP", "TMP"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return "/tmp"
}

// applyDebugEnv maps PMIX_DEBUG (spec section 6) onto the logger's
// dynamic level toggle; any positive integer enables debug output.
func applyDebugEnv(log interface{ ToggleDebug(bool) bool }) {
	v := os.Getenv("PMIX_DEBUG")
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return
	}
	log.ToggleDebug(true)
}

// moduleOrEmpty substitutes an all-nil Module so the reactor and
// switchyard never need to nil-check s.opts.Module itself, only its
// individual upcall fields.
func moduleOrEmpty(m *host.Module) *host.Module {
	if m == nil {
		return &host.Module{}
	}
	return m
}
