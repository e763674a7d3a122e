package storage

import (
	"bytes"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestIndexesExist verifies the migration creates the expected indexes.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_peers_deleted"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestGetValueMissing(t *testing.T) {
	s := openTestStore(t)

	value, ok, err := s.GetValue("top_peers#group")
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if ok {
		t.Errorf("expected missing key, got value %q", value)
	}
}

func TestSetGetValueRoundTrip(t *testing.T) {
	s := openTestStore(t)

	want := []byte(`{"rating_timestamp":1000,"entries":[]}`)
	if err := s.SetValue("top_peers#group", want); err != nil {
		t.Fatalf("SetValue: %v", err)
	}

	got, ok, err := s.GetValue("top_peers#group")
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if !ok {
		t.Fatal("key not found after SetValue")
	}
	if !bytes.Equal(got, want) {
		t.Errorf("round-trip mismatch: got %q want %q", got, want)
	}

	// Overwrite replaces the value.
	want2 := []byte(`{"rating_timestamp":2000,"entries":[]}`)
	if err := s.SetValue("top_peers#group", want2); err != nil {
		t.Fatalf("SetValue overwrite: %v", err)
	}
	got, _, err = s.GetValue("top_peers#group")
	if err != nil {
		t.Fatalf("GetValue after overwrite: %v", err)
	}
	if !bytes.Equal(got, want2) {
		t.Errorf("overwrite mismatch: got %q want %q", got, want2)
	}
}

func TestEraseByPrefix(t *testing.T) {
	s := openTestStore(t)

	keys := []string{"top_peers#group", "top_peers#channel", "top_peers_ts", "unrelated"}
	for _, k := range keys {
		if err := s.SetValue(k, []byte("x")); err != nil {
			t.Fatalf("SetValue(%q): %v", k, err)
		}
	}

	if err := s.EraseByPrefix("top_peers"); err != nil {
		t.Fatalf("EraseByPrefix: %v", err)
	}

	for _, k := range keys[:3] {
		if _, ok, err := s.GetValue(k); err != nil || ok {
			t.Errorf("key %q should be erased (ok=%v err=%v)", k, ok, err)
		}
	}
	if _, ok, err := s.GetValue("unrelated"); err != nil || !ok {
		t.Errorf("key %q should survive (ok=%v err=%v)", "unrelated", ok, err)
	}
}

func TestUpsertAndGetPeer(t *testing.T) {
	s := openTestStore(t)

	peers := []Peer{
		{Kind: "user", ID: 11, Username: "alice"},
		{Kind: "channel", ID: 42, Username: "news"},
	}
	if err := s.UpsertPeers(peers); err != nil {
		t.Fatalf("UpsertPeers: %v", err)
	}

	got, err := s.GetPeer("user", 11)
	if err != nil {
		t.Fatalf("GetPeer: %v", err)
	}
	if got.Username != "alice" || got.Deleted {
		t.Errorf("unexpected peer: %+v", got)
	}

	// Re-upsert flips the deleted flag.
	if err := s.UpsertPeers([]Peer{{Kind: "user", ID: 11, Username: "alice", Deleted: true}}); err != nil {
		t.Fatalf("UpsertPeers update: %v", err)
	}
	got, err = s.GetPeer("user", 11)
	if err != nil {
		t.Fatalf("GetPeer after update: %v", err)
	}
	if !got.Deleted {
		t.Error("deleted flag not updated")
	}
}

func TestGetPeerNotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetPeer("user", 999); err != ErrNotFound {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}
