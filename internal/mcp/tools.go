package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/docsearch-mcp/internal/storage"
	"github.com/dshills/docsearch-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams   = -32602 // Invalid method parameters
	ErrorCodeInternalError   = -32603 // Internal JSON-RPC error
	ErrorCodeEmptyQuery      = -32004 // Query parameter is empty
	ErrorCodeLibraryRequired = -32005 // Library parameter is empty
)

// Search limits
const (
	DefaultSearchLimit = 5
	MaxSearchLimit     = 100
)

// handleSearchDocs handles the search_docs tool invocation
func (s *Server) handleSearchDocs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := toolArguments(request)
	if err != nil {
		return nil, err
	}

	library, err := requireLibrary(args)
	if err != nil {
		return nil, err
	}

	query := strings.TrimSpace(getStringDefault(args, "query", ""))
	if query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", DefaultSearchLimit)
	if limit < 1 || limit > MaxSearchLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	requested := getStringDefault(args, "version", "")
	match, err := s.engine.FindBestVersion(ctx, library, requested)
	if err != nil {
		return versionNotFoundResult(err)
	}

	results, err := s.engine.Search(ctx, library, match.BestMatch, query, limit)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	items := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		items = append(items, map[string]interface{}{
			"url":          r.URL,
			"title":        r.Title,
			"content_type": r.ContentType,
			"score":        r.Score,
			"content":      r.Content,
		})
	}

	s.logger.Debug().
		Str("library", library).
		Str("version", match.BestMatch).
		Int("results", len(items)).
		Msg("search_docs")

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"library":        library,
		"version":        match.BestMatch,
		"vector_enabled": s.engine.VectorEnabled(),
		"count":          len(items),
		"results":        items,
	})), nil
}

// handleListLibraries handles the list_libraries tool invocation
func (s *Server) handleListLibraries(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	libraries, err := s.engine.ListLibraries(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list libraries", map[string]interface{}{
			"error": err.Error(),
		})
	}

	items := make([]map[string]interface{}, 0, len(libraries))
	for _, lib := range libraries {
		versions := make([]map[string]interface{}, 0, len(lib.Versions))
		for _, v := range lib.Versions {
			versions = append(versions, versionInfo(v))
		}
		items = append(items, map[string]interface{}{
			"name":     lib.Name,
			"versions": versions,
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"libraries": items,
	})), nil
}

// handleFindVersion handles the find_version tool invocation
func (s *Server) handleFindVersion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := toolArguments(request)
	if err != nil {
		return nil, err
	}

	library, err := requireLibrary(args)
	if err != nil {
		return nil, err
	}

	match, err := s.engine.FindBestVersion(ctx, library, getStringDefault(args, "target", ""))
	if err != nil {
		return versionNotFoundResult(err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"found":           true,
		"library":         library,
		"best_match":      match.BestMatch,
		"has_unversioned": match.HasUnversioned,
		"available":       nonNil(match.Available),
	})), nil
}

// handleRemoveDocs handles the remove_docs tool invocation
func (s *Server) handleRemoveDocs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := toolArguments(request)
	if err != nil {
		return nil, err
	}

	library, err := requireLibrary(args)
	if err != nil {
		return nil, err
	}
	version := getStringDefault(args, "version", "")

	result, err := s.engine.RemoveVersion(ctx, library, version, true)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to remove documentation", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"library":           library,
		"version":           version,
		"documents_deleted": result.DocumentsDeleted,
		"version_deleted":   result.VersionDeleted,
		"library_deleted":   result.LibraryDeleted,
	})), nil
}

// Helper functions

// versionNotFoundResult reports a failed version lookup as a tool result so
// the client sees which versions exist. Any other error is internal.
func versionNotFoundResult(err error) (*mcp.CallToolResult, error) {
	var notFound *storage.VersionNotFoundError
	if !errors.As(err, &notFound) {
		return nil, newMCPError(ErrorCodeInternalError, "failed to resolve version", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"found":     false,
		"library":   notFound.Library,
		"requested": notFound.Version,
		"available": nonNil(notFound.Available),
		"message":   notFound.Error(),
	})), nil
}

func versionInfo(v types.VersionSummary) map[string]interface{} {
	info := map[string]interface{}{
		"version":          v.Name,
		"status":           string(v.Status),
		"document_count":   v.DocumentCount,
		"unique_url_count": v.UniqueURLCount,
	}
	// progress describes an active run only
	if v.ProgressMaxPages > 0 && !v.Status.IsTerminal() {
		info["progress"] = map[string]interface{}{
			"pages":     v.ProgressPages,
			"max_pages": v.ProgressMaxPages,
		}
	}
	if v.IndexedAt != nil {
		info["indexed_at"] = v.IndexedAt.Format(time.RFC3339)
	}
	if v.SourceURL != "" {
		info["source_url"] = v.SourceURL
	}
	if v.ErrorMessage != "" {
		info["error"] = v.ErrorMessage
	}
	return info
}

// toolArguments returns the argument object of a call; a missing or
// non-object value is rejected as invalid params
func toolArguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok || args == nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

func requireLibrary(args map[string]interface{}) (string, error) {
	library := strings.TrimSpace(getStringDefault(args, "library", ""))
	if library == "" {
		return "", newMCPError(ErrorCodeLibraryRequired, "library parameter is required", map[string]interface{}{
			"param":  "library",
			"reason": "missing or empty",
		})
	}
	return library, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
