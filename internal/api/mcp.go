package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/skillhive/relevance/internal/feed"
	"github.com/skillhive/relevance/internal/profile"
	"github.com/skillhive/relevance/internal/scoring"
	"github.com/skillhive/relevance/internal/storage"
)

// MCPDeps holds dependencies for the MCP debug server.
type MCPDeps struct {
	Store    *storage.Store
	Profiles *profile.Service
	Ranker   *feed.Ranker
}

// NewMCPServer exposes the engine's internals for interactive debugging:
// score breakdowns, feed previews, and interaction recording, so ranking
// questions can be answered without crafting HTTP requests.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"relevance",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("relevance — content scoring and feed ranking engine. Tools explain why content ranks where it does for a given user."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("score_breakdown",
			mcp.WithDescription("Score a post or company for a user and return every match reason with its points."),
			mcp.WithString("user_id", mcp.Description("Profile ID of the user"), mcp.Required()),
			mcp.WithString("target_type", mcp.Description("\"post\" or \"company\""), mcp.Required()),
			mcp.WithString("target_id", mcp.Description("ID of the post or company"), mcp.Required()),
		),
		mcpScoreBreakdown(deps),
	)

	s.AddTool(
		mcp.NewTool("preview_feed",
			mcp.WithDescription("Render the ranked feed a user would see, with scores and match reasons per item."),
			mcp.WithString("user_id", mcp.Description("Profile ID of the user"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of items (default 10)")),
		),
		mcpPreviewFeed(deps),
	)

	s.AddTool(
		mcp.NewTool("record_interaction",
			mcp.WithDescription("Record an engagement event for a user, feeding the activity tier of future scores."),
			mcp.WithString("user_id", mcp.Description("Profile ID of the user"), mcp.Required()),
			mcp.WithString("type", mcp.Description("\"like\", \"comment\" or \"view\""), mcp.Required()),
			mcp.WithString("target_type", mcp.Description("\"post\", \"company\" or \"profile\""), mcp.Required()),
			mcp.WithString("target_id", mcp.Description("ID of the interacted target"), mcp.Required()),
		),
		mcpRecordInteraction(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"relevance://scoring/weights",
			"Scoring Weights",
			mcp.WithResourceDescription("Points awarded per scoring tier"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceWeights(),
	)

	return s
}

func mcpScoreBreakdown(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		targetType, err := req.RequireString("target_type")
		if err != nil {
			return mcpError("target_type is required"), nil
		}
		targetID, err := req.RequireString("target_id")
		if err != nil {
			return mcpError("target_id is required"), nil
		}

		res, err := deps.Ranker.Explain(userID, profile.TargetType(targetType), targetID)
		if err != nil {
			return mcpError(fmt.Sprintf("scoring failed: %v", err)), nil
		}

		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal breakdown: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpPreviewFeed(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}

		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 50 {
			limit = 50
		}

		ranked, personalized, err := deps.Ranker.PersonalizedFeed(userID, feed.Options{
			Limit:      limit,
			ExcludeOwn: true,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("feed preview failed: %v", err)), nil
		}

		type previewItem struct {
			ID           string                `json:"id"`
			Title        string                `json:"title"`
			Score        int                   `json:"score"`
			CreatedAt    string                `json:"created_at"`
			MatchReasons []scoring.MatchReason `json:"match_reasons"`
		}

		items := make([]previewItem, len(ranked))
		for i, rp := range ranked {
			items[i] = previewItem{
				ID:           rp.Post.ID,
				Title:        rp.Post.Title,
				Score:        rp.Result.Score,
				CreatedAt:    rp.Post.CreatedAt.Format(time.RFC3339),
				MatchReasons: reasonsOrEmpty(rp.Result.Reasons),
			}
		}

		b, err := json.Marshal(map[string]any{
			"personalized": personalized,
			"items":        items,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal preview: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRecordInteraction(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		typ, err := req.RequireString("type")
		if err != nil {
			return mcpError("type is required"), nil
		}
		targetType, err := req.RequireString("target_type")
		if err != nil {
			return mcpError("target_type is required"), nil
		}
		targetID, err := req.RequireString("target_id")
		if err != nil {
			return mcpError("target_id is required"), nil
		}

		err = deps.Profiles.RecordInteraction(userID,
			profile.InteractionType(typ), targetID, profile.TargetType(targetType))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to record interaction: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Recorded %s on %s %s for %s", typ, targetType, targetID, userID)), nil
	}
}

func mcpResourceWeights() server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(map[string]int{
			"preference": scoring.PreferenceWeight,
			"activity":   scoring.ActivityWeight,
			"topical":    scoring.TopicalWeight,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal weights: %w", err)
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
