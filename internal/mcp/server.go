package mcp

import (
	"context"
	"encoding/json"

	"op-insight/internal/analytics"
	"op-insight/internal/etl"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

const (
	serverName    = "op-insight"
	serverVersion = "0.1.0"
)

// Server exposes the statistics query surface and the import trigger as
// MCP tools.
type Server struct {
	svc      *analytics.Service
	pipeline *etl.Pipeline
	syncFile string
}

// NewServer creates a new MCP server. syncFile is imported by run_import
// when the call names no file.
func NewServer(svc *analytics.Service, pipeline *etl.Pipeline, syncFile string) *Server {
	return &Server{svc: svc, pipeline: pipeline, syncFile: syncFile}
}

// Serve runs the MCP session over stdio until the client disconnects or
// ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	log.Info().Str("name", serverName).Str("version", serverVersion).Msg("MCP server listening on stdio")
	return s.build().Run(ctx, &sdk.StdioTransport{})
}

func (s *Server) build() *sdk.Server {
	server := sdk.NewServer(&sdk.Implementation{Name: serverName, Version: serverVersion}, nil)
	s.registerTools(server)
	return server
}

// textTool adapts a handler to the SDK. Results are returned as indented
// JSON text; handler errors become tool errors rather than protocol errors.
func textTool[In any](name string, fn func(ctx context.Context, in In) (any, error)) sdk.ToolHandlerFor[In, any] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, in In) (*sdk.CallToolResult, any, error) {
		data, err := fn(ctx, in)
		if err != nil {
			log.Warn().Err(err).Str("tool", name).Msg("Tool call failed")
			return &sdk.CallToolResult{
				IsError: true,
				Content: []sdk.Content{&sdk.TextContent{Text: err.Error()}},
			}, nil, nil
		}
		return &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: formatResult(data)}},
		}, nil, nil
	}
}

func formatResult(data any) string {
	out, _ := json.MarshalIndent(data, "", "  ")
	return string(out)
}
