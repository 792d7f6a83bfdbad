package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/atelier/internal/conversation"
	"github.com/kalambet/atelier/internal/ranking"
	"github.com/kalambet/atelier/internal/summary"
	"github.com/kalambet/atelier/internal/workflow"
)

// NewMCPServer exposes the workflow to MCP clients: tools for driving a
// stage conversation and resources for reading workspace state.
func NewMCPServer(svc *Service) *server.MCPServer {
	s := server.NewMCPServer(
		"atelier",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("atelier — staged collaborative design workflow with AI facilitation, summaries, and concept ranking."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("send_message",
			mcp.WithDescription("Send a participant message to the facilitator for one workflow stage and return the reply."),
			mcp.WithString("workspace", mcp.Description("Workspace code"), mcp.Required()),
			mcp.WithString("stage", mcp.Description("Stage id (e.g. problem-definition)"), mcp.Required()),
			mcp.WithString("message", mcp.Description("The participant message"), mcp.Required()),
		),
		mcpSendMessage(svc),
	)

	s.AddTool(
		mcp.NewTool("summarize_stage",
			mcp.WithDescription("Produce and persist the closing summary for one workflow stage, marking it completed."),
			mcp.WithString("workspace", mcp.Description("Workspace code"), mcp.Required()),
			mcp.WithString("stage", mcp.Description("Stage id"), mcp.Required()),
		),
		mcpSummarizeStage(svc),
	)

	s.AddTool(
		mcp.NewTool("set_rank",
			mcp.WithDescription("Assign an evaluation rank (1-7) to a concept artifact, or clear it with an empty value."),
			mcp.WithString("workspace", mcp.Description("Workspace code"), mcp.Required()),
			mcp.WithString("artifact", mcp.Description("Artifact id (e.g. prototype-shuttle)"), mcp.Required()),
			mcp.WithString("value", mcp.Description("Rank value, empty to clear")),
		),
		mcpSetRank(svc),
	)

	s.AddResource(
		mcp.NewResource(
			"atelier://stages",
			"Workflow Stages",
			mcp.WithResourceDescription("Stage catalog with titles in canonical order"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStages(),
	)

	s.AddResource(
		mcp.NewResource(
			"atelier://artifacts",
			"Evaluation Artifacts",
			mcp.WithResourceDescription("Evaluation gallery catalog as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceArtifacts(),
	)

	return s
}

func mcpSendMessage(svc *Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code, err := req.RequireString("workspace")
		if err != nil {
			return mcpError("workspace is required"), nil
		}
		stage, err := req.RequireString("stage")
		if err != nil {
			return mcpError("stage is required"), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		sess := svc.session(code)
		reply, err := sess.conv.Send(ctx, workflow.StageID(stage), message)
		if err != nil {
			if errors.Is(err, conversation.ErrEmptyMessage) {
				return mcpError("message must not be empty"), nil
			}
			return mcpError(fmt.Sprintf("send failed: %v", err)), nil
		}
		return mcpText(reply.Content), nil
	}
}

func mcpSummarizeStage(svc *Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code, err := req.RequireString("workspace")
		if err != nil {
			return mcpError("workspace is required"), nil
		}
		stage, err := req.RequireString("stage")
		if err != nil {
			return mcpError("stage is required"), nil
		}

		sess := svc.session(code)
		status, rec, err := sess.summaries.Summarize(ctx, workflow.StageID(stage))
		if err != nil {
			return mcpError(fmt.Sprintf("summarize failed: %v", err)), nil
		}
		if status == summary.StatusNothingToSummarize {
			return mcpError("start a dialogue before requesting a summary"), nil
		}
		return mcpText(rec.Summary), nil
	}
}

func mcpSetRank(svc *Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code, err := req.RequireString("workspace")
		if err != nil {
			return mcpError("workspace is required"), nil
		}
		artifact, err := req.RequireString("artifact")
		if err != nil {
			return mcpError("artifact is required"), nil
		}
		value := req.GetString("value", "")

		sess := svc.session(code)
		if err := sess.ranks.SetRank(artifact, value); err != nil {
			return mcpError(fmt.Sprintf("set rank failed: %v", err)), nil
		}
		if value == "" {
			return mcpText(fmt.Sprintf("Cleared rank for %s", artifact)), nil
		}
		return mcpText(fmt.Sprintf("Set %s = %s", artifact, value)), nil
	}
}

func mcpResourceStages() server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		type stageInfo struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		}
		infos := make([]stageInfo, 0, len(workflow.Stages()))
		for _, id := range workflow.Stages() {
			cfg, _ := workflow.Lookup(id)
			infos = append(infos, stageInfo{ID: string(id), Title: cfg.Title})
		}
		b, err := json.Marshal(infos)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal stages: %w", err)
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

func mcpResourceArtifacts() server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(ranking.Artifacts())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal artifacts: %w", err)
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
		IsError: true,
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
	}
}
