package rank

import (
	"math"
	"testing"
)

const testDecay = 100.0

func peerU(id int64) Peer { return Peer{Kind: PeerUser, ID: id} }

func checkOrdered(t *testing.T, l *topList) {
	t.Helper()
	for i := 1; i < len(l.entries); i++ {
		if l.entries[i-1].Rating < l.entries[i].Rating {
			t.Fatalf("ordering invariant broken at %d: %v", i, l.entries)
		}
	}
}

func TestRecordUseFirstEventWeight(t *testing.T) {
	var l topList

	delta := l.recordUse(peerU(1), 0, testDecay)
	if delta != 1.0 {
		t.Errorf("weight at zero elapsed time = %v, want 1.0", delta)
	}
	if got := l.entries[0].Rating; got != 1.0 {
		t.Errorf("rating = %v, want 1.0", got)
	}
	if !l.dirty {
		t.Error("record use must mark the list dirty")
	}
}

func TestRecordUseAccumulates(t *testing.T) {
	var l topList

	l.recordUse(peerU(1), 0, testDecay)
	l.recordUse(peerU(1), 50, testDecay)

	want := 1.0 + math.Exp(50/testDecay)
	if got := l.entries[0].Rating; math.Abs(got-want) > 1e-12 {
		t.Errorf("rating = %v, want %v", got, want)
	}
	if len(l.entries) != 1 {
		t.Errorf("expected a single entry, got %d", len(l.entries))
	}
}

func TestRecordUseTieKeepsInsertionOrder(t *testing.T) {
	var l topList

	l.recordUse(peerU(1), 0, testDecay)
	l.recordUse(peerU(2), 0, testDecay)

	if l.entries[0].Rating != l.entries[1].Rating {
		t.Fatalf("ratings differ: %v", l.entries)
	}
	if l.entries[0].Peer != peerU(1) || l.entries[1].Peer != peerU(2) {
		t.Errorf("tie reordered entries: %v", l.entries)
	}
}

func TestRecordUseBubblesPastSmaller(t *testing.T) {
	var l topList

	l.recordUse(peerU(1), 0, testDecay)
	l.recordUse(peerU(2), 0, testDecay)
	l.recordUse(peerU(3), 0, testDecay)
	// Second use of the last peer lifts it above both earlier ties.
	l.recordUse(peerU(3), 0, testDecay)

	checkOrdered(t, &l)
	if l.entries[0].Peer != peerU(3) {
		t.Errorf("expected peer 3 on top, got %v", l.entries)
	}
	// The displaced ties keep their relative order.
	if l.entries[1].Peer != peerU(1) || l.entries[2].Peer != peerU(2) {
		t.Errorf("displaced ties reordered: %v", l.entries)
	}
}

func TestOrderingInvariantUnderMixedUpdates(t *testing.T) {
	var l topList

	uses := []struct {
		id int64
		at float64
	}{
		{1, 0}, {2, 10}, {3, 20}, {1, 30}, {4, 5}, {2, 40}, {5, 1}, {3, 45},
	}
	for _, u := range uses {
		l.recordUse(peerU(u.id), u.at, testDecay)
		checkOrdered(t, &l)
	}
}

func TestRemove(t *testing.T) {
	var l topList

	l.recordUse(peerU(1), 0, testDecay)
	l.recordUse(peerU(2), 10, testDecay)
	l.dirty = false

	if !l.remove(peerU(1)) {
		t.Fatal("remove of present peer reported miss")
	}
	if !l.dirty {
		t.Error("remove must mark the list dirty")
	}
	if len(l.entries) != 1 || l.entries[0].Peer != peerU(2) {
		t.Errorf("unexpected entries after remove: %v", l.entries)
	}
}

func TestRemoveMissLeavesListUntouched(t *testing.T) {
	var l topList

	l.recordUse(peerU(1), 0, testDecay)
	l.dirty = false

	if l.remove(peerU(99)) {
		t.Fatal("remove of absent peer reported hit")
	}
	if l.dirty {
		t.Error("miss must not mark the list dirty")
	}
	if len(l.entries) != 1 {
		t.Errorf("entries changed on miss: %v", l.entries)
	}
}

func TestNormalizeRebasesAndPreservesOrder(t *testing.T) {
	var l topList

	l.recordUse(peerU(1), 0, testDecay)
	l.recordUse(peerU(1), 50, testDecay)
	l.recordUse(peerU(2), 25, testDecay)
	before := append([]Entry(nil), l.entries...)

	l.normalize(200, testDecay)

	if l.ratingTimestamp != 200 {
		t.Errorf("ratingTimestamp = %v, want 200", l.ratingTimestamp)
	}
	checkOrdered(t, &l)
	divBy := math.Exp(200 / testDecay)
	for i := range l.entries {
		want := before[i].Rating / divBy
		if math.Abs(l.entries[i].Rating-want) > 1e-12 {
			t.Errorf("entry %d rating = %v, want %v", i, l.entries[i].Rating, want)
		}
	}
}

// TestNormalizeIdempotent verifies calling normalize twice with the same now
// leaves ratings unchanged on the second call.
func TestNormalizeIdempotent(t *testing.T) {
	var l topList

	l.recordUse(peerU(1), 0, testDecay)
	l.recordUse(peerU(2), 30, testDecay)

	l.normalize(100, testDecay)
	after := append([]Entry(nil), l.entries...)
	l.normalize(100, testDecay)

	for i := range l.entries {
		if l.entries[i].Rating != after[i].Rating {
			t.Errorf("second normalize changed rating %d: %v -> %v", i, after[i].Rating, l.entries[i].Rating)
		}
	}
}

func TestPeersLimit(t *testing.T) {
	var l topList

	l.recordUse(peerU(1), 30, testDecay)
	l.recordUse(peerU(2), 20, testDecay)
	l.recordUse(peerU(3), 10, testDecay)

	got := l.peers(2)
	if len(got) != 2 || got[0] != peerU(1) || got[1] != peerU(2) {
		t.Errorf("peers(2) = %v", got)
	}
	if got := l.peers(10); len(got) != 3 {
		t.Errorf("peers(10) returned %d entries, want 3", len(got))
	}
}

func TestReplace(t *testing.T) {
	var l topList

	l.recordUse(peerU(1), 0, testDecay)
	l.dirty = false

	l.replace([]Entry{
		{Peer: peerU(5), Rating: 9},
		{Peer: peerU(6), Rating: 4},
	})

	if !l.dirty {
		t.Error("replace must mark the list dirty")
	}
	if len(l.entries) != 2 || l.entries[0].Peer != peerU(5) {
		t.Errorf("unexpected entries after replace: %v", l.entries)
	}
}
