package backend

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

// Mode selects where the ledger lives.
type Mode string

const (
	LocalMode  Mode = "local"
	RemoteMode Mode = "remote"
	HybridMode Mode = "hybrid"

	// cloudAlias is the older name for RemoteMode, still accepted on input.
	cloudAlias = "cloud"
)

// String implements fmt.Stringer
func (m Mode) String() string {
	return string(m)
}

// IsValid returns true if the mode is known
func (m Mode) IsValid() bool {
	switch m {
	case LocalMode, RemoteMode, HybridMode:
		return true
	default:
		return false
	}
}

// NeedsRemote reports whether the mode requires a remote credential.
func (m Mode) NeedsRemote() bool {
	return m == RemoteMode || m == HybridMode
}

// NeedsLocal reports whether the mode uses the local file.
func (m Mode) NeedsLocal() bool {
	return m == LocalMode || m == HybridMode
}

// ParseMode normalizes a configured mode name. Unknown names are returned
// unchanged so that Validate can report them.
func ParseMode(s string) Mode {
	if s == cloudAlias {
		return RemoteMode
	}
	return Mode(s)
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// RemoteOpener opens the remote ledger database.
type RemoteOpener func(ctx context.Context, database, token string) (*sql.DB, error)

// Handle is the single connection object handed to the ledger and the
// replication engine. It owns the primary namespace, the remote namespace
// in hybrid mode, and the lock both of them share.
type Handle struct {
	mode    Mode
	main    *sql.DB
	remote  *sql.DB
	guard   sync.RWMutex
	cleanup []CleanupFunc
}

func (h *Handle) Mode() Mode {
	return h.mode
}

// Main is the database every ledger operation runs against: the local file
// in local and hybrid mode, the remote database in remote mode.
func (h *Handle) Main() *sql.DB {
	return h.main
}

// Remote returns the attached remote database. It is only present in hybrid
// mode; in remote mode the remote database is Main.
func (h *Handle) Remote() (*sql.DB, bool) {
	return h.remote, h.remote != nil
}

// Guard is the lock serializing writers, syncs and resets on this handle.
func (h *Handle) Guard() *sync.RWMutex {
	return &h.guard
}

// Close releases every database of the handle, newest first.
func (h *Handle) Close() error {
	h.guard.Lock()
	defer h.guard.Unlock()

	var errs []error
	for i := len(h.cleanup) - 1; i >= 0; i-- {
		if err := h.cleanup[i](); err != nil {
			errs = append(errs, err)
		}
	}
	h.cleanup = nil
	return errors.Join(errs...)
}
