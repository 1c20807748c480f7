package pmix

import (
	"fmt"

	"github.com/jabolina/pmix-server/pkg/pmix/types"
)

// SetupFork pre-registers id in the peer table and returns the
// environment a spawned child process needs to connect back to this
// server (spec section 4.8, section 6 "Environment for spawned
// clients"): PMIX_NAMESPACE, PMIX_RANK, PMIX_SERVER_URI, and
// PMIX_SERVER_CREDENTIAL when a credential was configured.
func (s *Server) SetupFork(id types.ID) []string {
	s.mu.Lock()
	table := s.table
	uri := s.uri
	cred := s.opts.Credential
	s.mu.Unlock()

	if table != nil {
		table.RegisterExpected(id)
	}

	env := []string{
		fmt.Sprintf("PMIX_NAMESPACE=%s", id.Namespace),
		fmt.Sprintf("PMIX_RANK=%d", id.Rank),
		fmt.Sprintf("PMIX_SERVER_URI=%s", uri),
	}
	if len(cred) > 0 {
		env = append(env, fmt.Sprintf("PMIX_SERVER_CREDENTIAL=%s", cred))
	}
	return env
}
