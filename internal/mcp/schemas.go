package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names
const (
	ToolSearchDocs    = "search_docs"
	ToolListLibraries = "list_libraries"
	ToolFindVersion   = "find_version"
	ToolRemoveDocs    = "remove_docs"
)

// searchDocsTool returns the tool definition for search_docs
func searchDocsTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolSearchDocs,
		Description: "Search indexed library documentation. Returns page-level excerpts ranked by relevance.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"library": map[string]interface{}{
					"type":        "string",
					"description": "Library name, case-insensitive (e.g. 'react')",
				},
				"version": map[string]interface{}{
					"type":        "string",
					"description": "Exact version, semver range ('18.x', '^2.0') or empty for the latest indexed version",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language or keyword query. Quoted text is matched as a phrase.",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of pages to return (1-100)",
					"default":     DefaultSearchLimit,
					"minimum":     1,
					"maximum":     MaxSearchLimit,
				},
			},
			Required: []string{"library", "query"},
		},
	}
}

// listLibrariesTool returns the tool definition for list_libraries
func listLibrariesTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolListLibraries,
		Description: "List indexed libraries with their versions, indexing status and document counts",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// findVersionTool returns the tool definition for find_version
func findVersionTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolFindVersion,
		Description: "Find the best indexed version of a library for a target version or range",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"library": map[string]interface{}{
					"type":        "string",
					"description": "Library name",
				},
				"target": map[string]interface{}{
					"type":        "string",
					"description": "Exact version, semver range, or empty/'latest'",
				},
			},
			Required: []string{"library"},
		},
	}
}

// removeDocsTool returns the tool definition for remove_docs
func removeDocsTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolRemoveDocs,
		Description: "Remove the indexed documentation of one library version",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"library": map[string]interface{}{
					"type":        "string",
					"description": "Library name",
				},
				"version": map[string]interface{}{
					"type":        "string",
					"description": "Exact version; empty removes the unversioned entry",
				},
			},
			Required: []string{"library"},
		},
	}
}
