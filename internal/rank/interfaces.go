package rank

import (
	"context"
	"time"
)

// KV is the durable key-value store the manager persists category state to.
// GetValue reports ok=false when the key is absent.
type KV interface {
	GetValue(key string) (value []byte, ok bool, err error)
	SetValue(key string, value []byte) error
	EraseByPrefix(prefix string) error
}

// Transport reaches the authoritative remote sync service.
type Transport interface {
	// GetTopPeers performs the combined periodic fetch. At most one fetch is
	// outstanding at a time.
	GetTopPeers(ctx context.Context, req TopPeersRequest) (TopPeersResponse, error)
	// ResetRating asks the server to forget one peer's rating. Fire and
	// forget from the manager's point of view.
	ResetRating(ctx context.Context, category string, peer Peer) error
}

// Directory answers peer metadata questions and absorbs metadata received
// from the sync service.
type Directory interface {
	Merge(peers []PeerInfo) error
	IsPermanentlyRemoved(peer Peer) bool
	SelfID() Peer
}

// Resolver ensures peer metadata is loaded before a query result is released.
type Resolver interface {
	EnsureLoaded(ctx context.Context, peers []Peer) error
}

// Clock abstracts time for testability. All manager time arithmetic and
// decay math goes through one clock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
