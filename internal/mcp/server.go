package mcp

import (
	"context"
	"errors"
	"io"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/dshills/docsearch-mcp/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "docsearch-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Engine is the part of the documentation engine the tools call
type Engine interface {
	Search(ctx context.Context, library, version, query string, limit int) ([]types.AssembledResult, error)
	ListLibraries(ctx context.Context) ([]types.LibrarySummary, error)
	FindBestVersion(ctx context.Context, library, target string) (types.VersionMatch, error)
	RemoveVersion(ctx context.Context, library, version string, removeLibraryIfEmpty bool) (types.RemoveResult, error)
	VectorEnabled() bool
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp    *server.MCPServer
	engine Engine
	logger zerolog.Logger
}

// NewServer creates a new MCP server instance over engine. The caller owns
// the engine and closes it after Serve returns.
func NewServer(engine Engine, logger zerolog.Logger) *Server {
	s := &Server{
		mcp:    server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		engine: engine,
		logger: logger,
	}
	s.registerTools()
	return s
}

// Serve reads JSON-RPC messages from in and writes responses to out until
// in closes or ctx is cancelled. Cancellation is a clean shutdown.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info().
		Bool("vector_enabled", s.engine.VectorEnabled()).
		Msg("MCP server listening on stdio")

	err := server.NewStdioServer(s.mcp).Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(searchDocsTool(), s.handleSearchDocs)
	s.mcp.AddTool(listLibrariesTool(), s.handleListLibraries)
	s.mcp.AddTool(findVersionTool(), s.handleFindVersion)
	s.mcp.AddTool(removeDocsTool(), s.handleRemoveDocs)
}
