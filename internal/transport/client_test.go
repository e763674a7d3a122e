package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kalambet/rankd/internal/rank"
)

func TestGetTopPeers(t *testing.T) {
	var gotReq rank.TopPeersRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/top-peers" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %q", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected auth header %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing request id header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(rank.TopPeersResponse{
			Categories: []rank.CategoryPeers{
				{Category: "group", Peers: []rank.Entry{
					{Peer: rank.Peer{Kind: rank.PeerChat, ID: 5}, Rating: 2.5},
				}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	resp, err := c.GetTopPeers(context.Background(), rank.TopPeersRequest{
		Categories: []string{"group"},
		Limit:      100,
		Hash:       42,
	})
	if err != nil {
		t.Fatalf("GetTopPeers: %v", err)
	}

	if gotReq.Hash != 42 || gotReq.Limit != 100 {
		t.Errorf("request not forwarded: %+v", gotReq)
	}
	if len(resp.Categories) != 1 || resp.Categories[0].Peers[0].Rating != 2.5 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestGetTopPeersNotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rank.TopPeersResponse{NotModified: true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	resp, err := c.GetTopPeers(context.Background(), rank.TopPeersRequest{})
	if err != nil {
		t.Fatalf("GetTopPeers: %v", err)
	}
	if !resp.NotModified {
		t.Error("not_modified sentinel lost")
	}
}

func TestGetTopPeersServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	if _, err := c.GetTopPeers(context.Background(), rank.TopPeersRequest{}); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestResetRating(t *testing.T) {
	var got resetRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/top-peers/reset" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	err := c.ResetRating(context.Background(), "correspondent", rank.Peer{Kind: rank.PeerUser, ID: 7})
	if err != nil {
		t.Fatalf("ResetRating: %v", err)
	}
	if got.Category != "correspondent" || got.Peer.ID != 7 {
		t.Errorf("request not forwarded: %+v", got)
	}
}

func TestWaitReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	if err := c.WaitReady(context.Background()); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
}

func TestWaitReadyCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "starting", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient(srv.URL, "")
	if err := c.WaitReady(ctx); err == nil {
		t.Fatal("expected context error")
	}
}
