package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Peer is cached metadata about a conversation target, merged in from sync
// responses.
type Peer struct {
	Kind      string
	ID        int64
	Username  string
	Deleted   bool
	UpdatedAt time.Time
}
