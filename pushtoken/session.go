package pushtoken

import "sync/atomic"

// Session carries the "sign-out in progress" signal to every component.
// BeginSignOut must be called before any asynchronous cleanup starts.
type Session struct {
	signingOut atomic.Bool
}

// BeginSignOut raises the flag; attempts that see it give up.
func (s *Session) BeginSignOut() { s.signingOut.Store(true) }

// EndSignOut lowers the flag once sign-out has settled.
func (s *Session) EndSignOut() { s.signingOut.Store(false) }

// SigningOut reports whether a sign-out is in progress.
func (s *Session) SigningOut() bool { return s.signingOut.Load() }
