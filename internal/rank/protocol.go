package rank

// TopPeersRequest is the combined periodic fetch covering all categories in
// one exchange. Hash is a cheap fingerprint of every peer id the client
// already holds, letting the server answer "not modified".
type TopPeersRequest struct {
	Categories []string `json:"categories"`
	Offset     int      `json:"offset"`
	Limit      int      `json:"limit"`
	Hash       uint32   `json:"hash"`
}

// CategoryPeers is one category's replacement list in a fetch response.
type CategoryPeers struct {
	Category string  `json:"category"`
	Peers    []Entry `json:"peers"`
}

// PeerInfo is peer metadata referenced by a fetch response, forwarded to the
// directory before the rating lists are replaced.
type PeerInfo struct {
	Peer     Peer   `json:"peer"`
	Username string `json:"username,omitempty"`
	Deleted  bool   `json:"deleted,omitempty"`
}

// TopPeersResponse is either the "not modified" sentinel or a wholesale
// per-category replacement plus referenced metadata.
type TopPeersResponse struct {
	NotModified bool            `json:"not_modified,omitempty"`
	Categories  []CategoryPeers `json:"categories,omitempty"`
	Peers       []PeerInfo      `json:"peers,omitempty"`
}

// peersHash is the rolling vector hash the sync service expects: 32-bit
// wraparound of h = h*20261 + id over the ids in order.
func peersHash(ids []int64) uint32 {
	var h uint32
	for _, id := range ids {
		h = h*20261 + uint32(id)
	}
	return h
}
