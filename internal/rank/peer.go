package rank

import (
	"fmt"
	"strconv"
	"strings"
)

// PeerKind classifies a conversation target.
type PeerKind string

const (
	PeerUser    PeerKind = "user"
	PeerChat    PeerKind = "chat"
	PeerChannel PeerKind = "channel"
)

// Peer identifies a conversation target. The kind travels with the numeric
// id so query filtering can classify a target without a directory lookup.
type Peer struct {
	Kind PeerKind `json:"kind"`
	ID   int64    `json:"id"`
}

func (p Peer) String() string {
	return string(p.Kind) + ":" + strconv.FormatInt(p.ID, 10)
}

// ParsePeer parses the "kind:id" form produced by String.
func ParsePeer(s string) (Peer, error) {
	kind, idStr, ok := strings.Cut(s, ":")
	if !ok {
		return Peer{}, fmt.Errorf("invalid peer %q: want kind:id", s)
	}
	switch PeerKind(kind) {
	case PeerUser, PeerChat, PeerChannel:
	default:
		return Peer{}, fmt.Errorf("invalid peer kind %q", kind)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return Peer{}, fmt.Errorf("invalid peer id %q: %w", idStr, err)
	}
	return Peer{Kind: PeerKind(kind), ID: id}, nil
}
