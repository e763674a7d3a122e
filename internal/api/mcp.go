package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/rankd/internal/rank"
)

// NewMCPServer creates an MCP server exposing the ranking feature as tools
// and the synchronization state as a resource.
func NewMCPServer(ranker Ranker, defaultLimit int) *server.MCPServer {
	if defaultLimit <= 0 {
		defaultLimit = defaultQueryLimit
	}
	s := server.NewMCPServer(
		"rankd",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("rankd: most-used conversation partners, ranked per category with usage decay."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("top_peers",
			mcp.WithDescription("Return the most-used peers of one category in rank order."),
			mcp.WithString("category", mcp.Description("Category name: correspondent, bot_pm, bot_inline, group, channel or call"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results")),
		),
		mcpTopPeers(ranker, defaultLimit),
	)

	s.AddTool(
		mcp.NewTool("record_use",
			mcp.WithDescription("Record a usage event for a peer, bumping its rating in one category."),
			mcp.WithString("category", mcp.Description("Category name"), mcp.Required()),
			mcp.WithString("peer", mcp.Description("Peer as kind:id, e.g. user:42"), mcp.Required()),
		),
		mcpRecordUse(ranker),
	)

	s.AddTool(
		mcp.NewTool("remove_peer",
			mcp.WithDescription("Drop a peer from one category's ranking, optionally resetting its server-side rating too."),
			mcp.WithString("category", mcp.Description("Category name"), mcp.Required()),
			mcp.WithString("peer", mcp.Description("Peer as kind:id, e.g. user:42"), mcp.Required()),
			mcp.WithBoolean("reset_remote", mcp.Description("Also reset the rating on the sync service")),
		),
		mcpRemovePeer(ranker),
	)

	s.AddResource(
		mcp.NewResource(
			"rankd://sync",
			"Synchronization State",
			mcp.WithResourceDescription("Current server and local sync state as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSync(ranker),
	)

	return s
}

func mcpTopPeers(ranker Ranker, defaultLimit int) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("category")
		if err != nil {
			return mcpError("category is required"), nil
		}
		category, err := rank.ParseCategory(name)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		limit := req.GetInt("limit", defaultLimit)
		if limit <= 0 {
			limit = defaultLimit
		}
		if limit > rank.MaxTopPeersLimit {
			limit = rank.MaxTopPeersLimit
		}

		peers, err := ranker.GetTop(ctx, category, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("query failed: %v", err)), nil
		}
		if len(peers) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(peers)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRecordUse(ranker Ranker) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		category, peer, result := mcpPeerArgs(req)
		if result != nil {
			return result, nil
		}

		ranker.RecordUse(category, peer, time.Now())
		return mcpText(fmt.Sprintf("Recorded use of %s in %s", peer, category.Name())), nil
	}
}

func mcpRemovePeer(ranker Ranker) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		category, peer, result := mcpPeerArgs(req)
		if result != nil {
			return result, nil
		}

		resetRemote := req.GetBool("reset_remote", false)
		ranker.Remove(category, peer, resetRemote)
		return mcpText(fmt.Sprintf("Removed %s from %s", peer, category.Name())), nil
	}
}

// mcpPeerArgs parses the category and peer arguments shared by the mutation
// tools. A non-nil result is the error to return to the caller.
func mcpPeerArgs(req mcp.CallToolRequest) (rank.Category, rank.Peer, *mcp.CallToolResult) {
	name, err := req.RequireString("category")
	if err != nil {
		return 0, rank.Peer{}, mcpError("category is required")
	}
	category, err := rank.ParseCategory(name)
	if err != nil {
		return 0, rank.Peer{}, mcpError(err.Error())
	}

	peerStr, err := req.RequireString("peer")
	if err != nil {
		return 0, rank.Peer{}, mcpError("peer is required")
	}
	peer, err := rank.ParsePeer(peerStr)
	if err != nil {
		return 0, rank.Peer{}, mcpError(err.Error())
	}
	return category, peer, nil
}

func mcpResourceSync(ranker Ranker) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		status, err := ranker.Status(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read sync status: %w", err)
		}

		b, err := json.Marshal(status)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sync status: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
