package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/rankd/internal/rank"
)

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestMCPTopPeers(t *testing.T) {
	ranker := newFakeRanker()
	ranker.top[rank.CategoryCorrespondent] = []rank.Peer{
		{Kind: rank.PeerUser, ID: 1},
		{Kind: rank.PeerUser, ID: 2},
	}

	result, err := mcpTopPeers(ranker, 20)(context.Background(), makeCallToolRequest("top_peers", map[string]interface{}{
		"category": "correspondent",
	}))
	if err != nil {
		t.Fatalf("tool call failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %s", toolText(t, result))
	}

	var peers []rank.Peer
	if err := json.Unmarshal([]byte(toolText(t, result)), &peers); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(peers) != 2 || peers[0].ID != 1 {
		t.Errorf("unexpected peers %v", peers)
	}
}

func TestMCPTopPeersEmptyCategory(t *testing.T) {
	ranker := newFakeRanker()

	result, err := mcpTopPeers(ranker, 20)(context.Background(), makeCallToolRequest("top_peers", map[string]interface{}{
		"category": "call",
	}))
	if err != nil {
		t.Fatalf("tool call failed: %v", err)
	}
	if got := toolText(t, result); got != "[]" {
		t.Errorf("result = %q, want []", got)
	}
}

func TestMCPTopPeersUnknownCategory(t *testing.T) {
	ranker := newFakeRanker()

	result, err := mcpTopPeers(ranker, 20)(context.Background(), makeCallToolRequest("top_peers", map[string]interface{}{
		"category": "favorites",
	}))
	if err != nil {
		t.Fatalf("tool call failed: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for unknown category")
	}
}

func TestMCPRecordUse(t *testing.T) {
	ranker := newFakeRanker()

	result, err := mcpRecordUse(ranker)(context.Background(), makeCallToolRequest("record_use", map[string]interface{}{
		"category": "group",
		"peer":     "chat:7",
	}))
	if err != nil {
		t.Fatalf("tool call failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %s", toolText(t, result))
	}
	if len(ranker.used) != 1 || ranker.used[0].Peer != (rank.Peer{Kind: rank.PeerChat, ID: 7}) {
		t.Errorf("unexpected events %+v", ranker.used)
	}
}

func TestMCPRecordUseBadPeer(t *testing.T) {
	ranker := newFakeRanker()

	result, err := mcpRecordUse(ranker)(context.Background(), makeCallToolRequest("record_use", map[string]interface{}{
		"category": "group",
		"peer":     "7",
	}))
	if err != nil {
		t.Fatalf("tool call failed: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for malformed peer")
	}
	if len(ranker.used) != 0 {
		t.Errorf("malformed peer recorded events: %+v", ranker.used)
	}
}

func TestMCPRemovePeer(t *testing.T) {
	ranker := newFakeRanker()

	result, err := mcpRemovePeer(ranker)(context.Background(), makeCallToolRequest("remove_peer", map[string]interface{}{
		"category":     "bot_pm",
		"peer":         "user:8",
		"reset_remote": true,
	}))
	if err != nil {
		t.Fatalf("tool call failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %s", toolText(t, result))
	}
	if len(ranker.removed) != 1 || !ranker.removed[0].ResetRemote {
		t.Errorf("unexpected removals %+v", ranker.removed)
	}
}

func TestMCPSyncResource(t *testing.T) {
	ranker := newFakeRanker()
	ranker.status = rank.Status{Active: true, ServerSync: "ok", LocalSync: "none"}

	contents, err := mcpResourceSync(ranker)(context.Background(), makeReadResourceRequest("rankd://sync"))
	if err != nil {
		t.Fatalf("resource read failed: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var s rank.Status
	if err := json.Unmarshal([]byte(text.Text), &s); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if !s.Active || s.LocalSync != "none" {
		t.Errorf("unexpected status %+v", s)
	}
}

func TestMCPTopPeersConfiguredDefaultLimit(t *testing.T) {
	ranker := newFakeRanker()
	ranker.top[rank.CategoryGroup] = []rank.Peer{
		{Kind: rank.PeerChat, ID: 1},
		{Kind: rank.PeerChat, ID: 2},
		{Kind: rank.PeerChat, ID: 3},
	}

	result, err := mcpTopPeers(ranker, 2)(context.Background(), makeCallToolRequest("top_peers", map[string]interface{}{
		"category": "group",
	}))
	if err != nil {
		t.Fatalf("tool call failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %s", toolText(t, result))
	}

	var peers []rank.Peer
	if err := json.Unmarshal([]byte(toolText(t, result)), &peers); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(peers) != 2 {
		t.Errorf("got %d peers, want the configured default of 2", len(peers))
	}
}
