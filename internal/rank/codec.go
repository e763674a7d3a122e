package rank

import (
	"encoding/json"
	"fmt"
)

// categoryBlob is the durable wire format for one category's state.
type categoryBlob struct {
	RatingTimestamp float64 `json:"rating_timestamp"`
	Entries         []Entry `json:"entries"`
}

func marshalList(l *topList) ([]byte, error) {
	blob := categoryBlob{
		RatingTimestamp: l.ratingTimestamp,
		Entries:         l.entries,
	}
	data, err := json.Marshal(blob)
	if err != nil {
		return nil, fmt.Errorf("encoding category state: %w", err)
	}
	return data, nil
}

func unmarshalList(data []byte) (topList, error) {
	var blob categoryBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return topList{}, fmt.Errorf("decoding category state: %w", err)
	}
	return topList{
		ratingTimestamp: blob.RatingTimestamp,
		entries:         blob.Entries,
	}, nil
}
