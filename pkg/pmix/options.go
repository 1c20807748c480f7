package pmix

import (
	"github.com/jabolina/pmix-server/pkg/pmix/definition"
	"github.com/jabolina/pmix-server/pkg/pmix/host"
	"github.com/jabolina/pmix-server/pkg/pmix/types"
)

// Options configures a Server. There is no configuration library here
// — the teacher has none either — just a plain struct built through
// functional options.
type Options struct {
	Module     *host.Module
	TmpDir     string
	Credential []byte
	Log        definition.Logger
	ServerID   types.ID
	Version    string
}

// Option mutates an Options during construction.
type Option func(*Options)

// WithModule registers the host upcall table. A nil or zero-value
// Module is valid: every upcall is independently optional, and the
// switchyard synthesizes NOT_SUPPORTED for whatever is missing.
func WithModule(m *host.Module) Option {
	return func(o *Options) { o.Module = m }
}

// WithTmpDir pins the rendezvous directory, taking priority over the
// TMPDIR/TEMP/TMP/`/tmp` environment fallback chain (spec section 4.8).
func WithTmpDir(dir string) Option {
	return func(o *Options) { o.TmpDir = dir }
}

// WithCredential sets the optional credential advertised to children
// via PMIX_SERVER_CREDENTIAL.
func WithCredential(cred []byte) Option {
	return func(o *Options) { o.Credential = cred }
}

// WithLogger overrides the default logrus-backed logger.
func WithLogger(log definition.Logger) Option {
	return func(o *Options) { o.Log = log }
}

// WithServerID sets the identity stamped on every steady-state
// server-originated frame header (command replies and tracker
// fan-outs). The handshake ack is not stamped with it: it echoes the
// connecting peer's namespace and rank.
func WithServerID(id types.ID) Option {
	return func(o *Options) { o.ServerID = id }
}

// WithVersion overrides the handshake version string advertised by
// this server; defaults to Version.
func WithVersion(v string) Option {
	return func(o *Options) { o.Version = v }
}

func defaultOptions() Options {
	return Options{
		Log:     definition.NewDefaultLogger(),
		Version: Version,
	}
}
