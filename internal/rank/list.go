package rank

// Entry is one ranked peer with its accumulated decayed rating.
type Entry struct {
	Peer   Peer    `json:"peer"`
	Rating float64 `json:"rating"`
}

// topList is one category's ordered rating list. Entries are kept in
// non-increasing rating order; equal ratings retain insertion order.
type topList struct {
	ratingTimestamp float64 // epoch seconds reference for decay
	entries         []Entry
	dirty           bool
}

func (l *topList) find(peer Peer) int {
	for i, e := range l.entries {
		if e.Peer == peer {
			return i
		}
	}
	return -1
}

// recordUse adds the decayed weight of an event at eventTime (epoch seconds)
// to peer's rating, creating the entry if needed, and restores ordering by
// bubbling the entry up past strictly smaller ratings only. Returns the
// added weight.
func (l *topList) recordUse(peer Peer, eventTime, decayConstant float64) float64 {
	idx := l.find(peer)
	if idx < 0 {
		l.entries = append(l.entries, Entry{Peer: peer})
		idx = len(l.entries) - 1
	}

	delta := ratingWeight(eventTime, l.ratingTimestamp, decayConstant)
	l.entries[idx].Rating += delta
	for idx > 0 && l.entries[idx-1].Rating < l.entries[idx].Rating {
		l.entries[idx-1], l.entries[idx] = l.entries[idx], l.entries[idx-1]
		idx--
	}

	l.dirty = true
	return delta
}

// remove deletes peer's entry if present. Reports whether anything changed;
// a miss leaves the list untouched, including the dirty flag.
func (l *topList) remove(peer Peer) bool {
	idx := l.find(peer)
	if idx < 0 {
		return false
	}
	l.entries = append(l.entries[:idx], l.entries[idx+1:]...)
	l.dirty = true
	return true
}

// replace swaps in a server-provided ranked list wholesale.
func (l *topList) replace(entries []Entry) {
	l.entries = append(l.entries[:0:0], entries...)
	l.dirty = true
}

// normalize rebases all ratings to now (epoch seconds) so accumulated
// magnitude stays bounded. Dividing every rating by the same factor
// preserves order.
func (l *topList) normalize(now, decayConstant float64) {
	divBy := ratingWeight(now, l.ratingTimestamp, decayConstant)
	l.ratingTimestamp = now
	for i := range l.entries {
		l.entries[i].Rating /= divBy
	}
	l.dirty = true
}

// peers returns up to limit peer ids from the front of the ranked list.
func (l *topList) peers(limit int) []Peer {
	if limit > len(l.entries) {
		limit = len(l.entries)
	}
	result := make([]Peer, 0, limit)
	for _, e := range l.entries[:limit] {
		result = append(result, e.Peer)
	}
	return result
}
