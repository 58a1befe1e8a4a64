// Package mcp wraps the MCP client used by the agent runtime to reach
// the task tool server over streamable HTTP.
package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// Session is a connected MCP client session. Sessions are cheap and
// scoped to a single chat turn; the tool endpoint carries the user
// identity, so sessions are never shared across users.
type Session struct {
	client *client.Client
	tools  []mcp.Tool
}

// Connect dials the tool endpoint, runs the initialize handshake, and
// fetches the tool list.
func Connect(ctx context.Context, endpoint string) (*Session, error) {
	c, err := client.NewStreamableHttpClient(endpoint)
	if err != nil {
		return nil, fmt.Errorf("mcp client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcp start: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "taskpilot-agent",
		Version: "1.0.0",
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("mcp initialize: %w", err)
	}

	toolsResp, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("mcp list tools: %w", err)
	}

	return &Session{client: c, tools: toolsResp.Tools}, nil
}

// Tools returns the tool definitions advertised by the server.
func (s *Session) Tools() []mcp.Tool {
	return s.tools
}

// Call invokes a tool and returns its text content. A tool-level error
// result is returned as a Go error so the agent loop can feed it back
// to the model.
func (s *Session) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := s.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("mcp call %s: %w", name, err)
	}

	text := flattenContent(result.Content)
	if result.IsError {
		return "", fmt.Errorf("tool %s failed: %s", name, text)
	}
	return text, nil
}

// Close tears down the transport.
func (s *Session) Close() error {
	return s.client.Close()
}

func flattenContent(blocks []mcp.Content) string {
	var b strings.Builder
	for _, block := range blocks {
		if tc, ok := block.(mcp.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}
