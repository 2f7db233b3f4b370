// Package mcpserver exposes the hub operations as MCP tools.
//
// Every tool takes the caller identity as user_id, runs exactly one
// [hub.Service] operation and returns its blocks as MCP text and image
// content, in order. Player mistakes come back as ordinary text content. A
// blank user_id is rejected with a JSON-RPC invalid-params error.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/companionhub/internal/hub"
	"github.com/MrWong99/companionhub/internal/observe"
)

const (
	serverName = "companionhub"

	// codeInvalidParams is the JSON-RPC 2.0 invalid params error code.
	codeInvalidParams = -32602
)

// Config wires a [Server].
type Config struct {
	Hub *hub.Service

	// Version is reported to MCP clients during initialisation.
	Version string

	Metrics *observe.Metrics
}

// Server hosts the hub tools on an [mcp.Server].
type Server struct {
	hub     *hub.Service
	metrics *observe.Metrics
	mcp     *mcp.Server
}

// New creates a Server with every hub tool registered.
func New(cfg Config) *Server {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	s := &Server{
		hub:     cfg.Hub,
		metrics: cfg.Metrics,
		mcp:     mcp.NewServer(&mcp.Implementation{Name: serverName, Version: cfg.Version}, nil),
	}
	s.registerCompanionTools()
	s.registerArenaTools()
	return s
}

// MCP returns the underlying server, e.g. to connect it to a custom
// transport.
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// Handler serves the tools over the streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
}

// Run serves the tools on t until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context, t mcp.Transport) error {
	return s.mcp.Run(ctx, t)
}

// operation is one hub call bound to its decoded tool input.
type operation[In any] func(ctx context.Context, in In) ([]hub.Block, error)

// addTool registers run as the tool name, wrapping it with a span, the
// tool metrics and the block-to-content conversion.
func addTool[In any](s *Server, name, description string, run operation[In]) {
	tool := &mcp.Tool{Name: name, Description: description}
	mcp.AddTool(s.mcp, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		ctx, span := observe.StartToolSpan(ctx, name)
		start := time.Now()
		blocks, err := run(ctx, in)
		observe.EndSpan(span, err)

		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.RecordToolCall(ctx, name, status, time.Since(start).Seconds())

		if err != nil {
			observe.Logger(ctx).Warn("tool call failed", "err", err)
			return nil, nil, toolError(err)
		}
		return &mcp.CallToolResult{Content: toContent(blocks)}, nil, nil
	})
}

// toolError maps hub errors onto the protocol. A missing caller identity is
// a malformed request; anything else is reported as a failed tool call.
func toolError(err error) error {
	if errors.Is(err, hub.ErrMissingUserID) {
		return &jsonrpc.Error{
			Code:    codeInvalidParams,
			Message: "invalid params: user_id is required",
		}
	}
	return fmt.Errorf("mcpserver: %w", err)
}

func toContent(blocks []hub.Block) []mcp.Content {
	out := make([]mcp.Content, 0, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case hub.BlockImage:
			out = append(out, &mcp.ImageContent{Data: b.Image.Data, MIMEType: b.Image.MIMEType})
		default:
			out = append(out, &mcp.TextContent{Text: b.Text})
		}
	}
	return out
}
