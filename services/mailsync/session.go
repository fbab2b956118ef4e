package mailsync

import (
	"sync"

	mirrorerrors "github.com/customeros/mailmirror/internal/errors"
)

type session struct {
	cancelled bool
}

// SessionRegistry holds the in-memory state of running syncs, one entry per
// (account, folder). An entry exists only while a run is in progress.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[sessionKey]*session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[sessionKey]*session)}
}

type sessionKey struct {
	account string
	folder  string
}

// Begin registers a run. A second run for the same key is rejected.
func (r *SessionRegistry) Begin(account, folder string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sessionKey{account: account, folder: folder}
	if _, ok := r.sessions[key]; ok {
		return mirrorerrors.ErrSyncInProgress
	}
	r.sessions[key] = &session{}
	return nil
}

// Cancel flags a running sync. It reports false when nothing is running.
func (r *SessionRegistry) Cancel(account, folder string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionKey{account: account, folder: folder}]
	if !ok {
		return false
	}
	s.cancelled = true
	return true
}

func (r *SessionRegistry) Cancelled(account, folder string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionKey{account: account, folder: folder}]
	return ok && s.cancelled
}

func (r *SessionRegistry) Running(account, folder string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sessions[sessionKey{account: account, folder: folder}]
	return ok
}

// End returns the key to idle.
func (r *SessionRegistry) End(account, folder string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sessionKey{account: account, folder: folder})
}
