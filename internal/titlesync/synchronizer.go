// Package titlesync drives the edit lifecycle for a room title: a viewing
// state that follows remote renames, an explicit editing state with a local
// buffer, and a commit step that writes through a caller-supplied function.
package titlesync

import (
	"context"
	"errors"
	"sync"
)

// MaxTitleLength caps titles at 60 characters. Longer input is truncated,
// never rejected.
const MaxTitleLength = 60

type State string

const (
	StateViewing    State = "viewing"
	StateEditing    State = "editing"
	StateCommitting State = "committing"
)

var (
	ErrReadOnly   = errors.New("titlesync: actor cannot edit the title")
	ErrNotEditing = errors.New("titlesync: no edit in progress")
)

// CommitFunc persists a committed title. A non-nil error leaves the
// committed title unchanged.
type CommitFunc func(ctx context.Context, title string) error

// Synchronizer tracks one actor's view of a room title. Safe for concurrent
// use; Flush commits in the background.
type Synchronizer struct {
	mu        sync.Mutex
	state     State
	committed string
	buffer    string
	canWrite  bool
	commit    CommitFunc
}

func New(initial string, canWrite bool, commit CommitFunc) *Synchronizer {
	return &Synchronizer{
		state:     StateViewing,
		committed: Truncate(initial),
		canWrite:  canWrite,
		commit:    commit,
	}
}

// Truncate enforces the title cap, counting runes so multibyte titles are
// not cut mid-character.
func Truncate(title string) string {
	runes := []rune(title)
	if len(runes) <= MaxTitleLength {
		return title
	}
	return string(runes[:MaxTitleLength])
}

func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Title returns the last committed title.
func (s *Synchronizer) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// Buffer returns the in-progress edit buffer.
func (s *Synchronizer) Buffer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer
}

// StartEditing moves from viewing to editing, seeding the buffer with the
// committed title. Starting while already editing is a no-op.
func (s *Synchronizer) StartEditing() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canWrite {
		return ErrReadOnly
	}
	if s.state != StateViewing {
		return nil
	}
	s.state = StateEditing
	s.buffer = s.committed
	return nil
}

// SetBuffer replaces the edit buffer, truncating to the cap.
func (s *Synchronizer) SetBuffer(title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateEditing {
		return ErrNotEditing
	}
	s.buffer = Truncate(title)
	return nil
}

// Commit writes the buffer through the commit function and returns to
// viewing. A second commit while one is in flight returns ErrNotEditing,
// so blur-plus-enter cannot double-fire the store write. An unchanged
// buffer skips the write entirely.
func (s *Synchronizer) Commit(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateEditing {
		s.mu.Unlock()
		return ErrNotEditing
	}
	title := s.buffer
	if title == s.committed {
		s.state = StateViewing
		s.buffer = ""
		s.mu.Unlock()
		return nil
	}
	s.state = StateCommitting
	s.mu.Unlock()

	err := s.commit(ctx, title)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateViewing
	s.buffer = ""
	if err != nil {
		return err
	}
	s.committed = title
	return nil
}

// Cancel discards the buffer and returns to viewing.
func (s *Synchronizer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateEditing {
		return
	}
	s.state = StateViewing
	s.buffer = ""
}

// Flush commits asynchronously so the caller never blocks on the store.
// Errors go to onErr, which may be nil.
func (s *Synchronizer) Flush(ctx context.Context, onErr func(error)) {
	go func() {
		if err := s.Commit(ctx); err != nil && !errors.Is(err, ErrNotEditing) && onErr != nil {
			onErr(err)
		}
	}()
}

// SyncRemote applies a title pushed by another collaborator. While editing
// or committing, the local state wins and the remote value is dropped;
// conflicts resolve to whichever commit lands last in the store.
func (s *Synchronizer) SyncRemote(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateViewing {
		return
	}
	s.committed = Truncate(title)
}
