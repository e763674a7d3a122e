// Package directory caches conversation peer metadata received from the
// sync service and answers identity questions for query filtering.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kalambet/rankd/internal/rank"
	"github.com/kalambet/rankd/internal/storage"
)

// PeerStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type PeerStore interface {
	UpsertPeers(peers []storage.Peer) error
	GetPeer(kind string, id int64) (storage.Peer, error)
}

// Manager provides cached access to peer metadata backed by SQLite. It
// serves both the directory role (removed / self checks) and the resolver
// role (ensure-loaded before a query is answered).
type Manager struct {
	store  PeerStore
	self   rank.Peer
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[rank.Peer]storage.Peer
}

// NewManager creates a Manager. self is the local account's own identity,
// which is always filtered out of query results.
func NewManager(store PeerStore, self rank.Peer) *Manager {
	return &Manager{
		store:  store,
		self:   self,
		logger: slog.Default(),
		cache:  make(map[rank.Peer]storage.Peer),
	}
}

// SelfID returns the local account's identity.
func (m *Manager) SelfID() rank.Peer {
	return m.self
}

// Merge upserts peer metadata from a sync response into the store and the
// in-memory cache.
func (m *Manager) Merge(infos []rank.PeerInfo) error {
	if len(infos) == 0 {
		return nil
	}
	rows := make([]storage.Peer, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, storage.Peer{
			Kind:     string(info.Peer.Kind),
			ID:       info.Peer.ID,
			Username: info.Username,
			Deleted:  info.Deleted,
		})
	}
	if err := m.store.UpsertPeers(rows); err != nil {
		return fmt.Errorf("merging peer metadata: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, info := range infos {
		m.cache[info.Peer] = rows[i]
	}
	return nil
}

// IsPermanentlyRemoved reports whether peer is a deleted account. Only user
// peers can be permanently removed; unknown peers are assumed alive.
func (m *Manager) IsPermanentlyRemoved(peer rank.Peer) bool {
	if peer.Kind != rank.PeerUser {
		return false
	}

	m.mu.RLock()
	cached, ok := m.cache[peer]
	m.mu.RUnlock()
	if ok {
		return cached.Deleted
	}

	row, err := m.store.GetPeer(string(peer.Kind), peer.ID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn("peer lookup failed", "peer", peer.String(), "error", err)
		}
		return false
	}

	m.mu.Lock()
	m.cache[peer] = row
	m.mu.Unlock()
	return row.Deleted
}

// EnsureLoaded pulls metadata for peers into the cache so the subsequent
// filtering pass answers from memory. Unknown peers are simply left
// unloaded; they pass filtering.
func (m *Manager) EnsureLoaded(ctx context.Context, peers []rank.Peer) error {
	for _, peer := range peers {
		if err := ctx.Err(); err != nil {
			return err
		}

		m.mu.RLock()
		_, ok := m.cache[peer]
		m.mu.RUnlock()
		if ok {
			continue
		}

		row, err := m.store.GetPeer(string(peer.Kind), peer.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("loading peer %s: %w", peer.String(), err)
		}

		m.mu.Lock()
		m.cache[peer] = row
		m.mu.Unlock()
	}
	return nil
}
