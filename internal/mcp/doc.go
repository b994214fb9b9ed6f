// Package mcp implements the Model Context Protocol (MCP) server for docsearch.
//
// The MCP server exposes four tools to AI assistants:
//   - search_docs: Search a library's indexed documentation
//   - list_libraries: List indexed libraries and versions
//   - find_version: Resolve a version or range to an indexed version
//   - remove_docs: Delete the documentation of one version
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// # Basic Usage
//
// The MCP server is typically started via the serve command:
//
//	docsearch serve
//
// It then listens on stdin for MCP protocol messages and writes responses to
// stdout. Logs go to stderr.
//
// # Tool: search_docs
//
//	Request:
//	{
//	  "name": "search_docs",
//	  "arguments": {
//	    "library": "react",
//	    "version": "18.x",
//	    "query": "effect cleanup",
//	    "limit": 5
//	  }
//	}
//
//	Response:
//	{
//	  "library": "react",
//	  "version": "18.2.0",
//	  "vector_enabled": true,
//	  "count": 1,
//	  "results": [
//	    {
//	      "url": "https://react.dev/reference/react/useEffect",
//	      "title": "useEffect",
//	      "content_type": "text/markdown",
//	      "score": 0.0327,
//	      "content": "..."
//	    }
//	  ]
//	}
//
// The version argument goes through the same resolution as find_version.
// When nothing matches, the result has "found": false and lists the
// available versions instead of failing the call.
//
// # Tool: find_version
//
//	Request:  {"name": "find_version", "arguments": {"library": "react", "target": "^17"}}
//	Response: {"found": true, "best_match": "17.0.2", "has_unversioned": false, "available": ["18.2.0", "17.0.2"]}
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "docsearch": {
//	      "command": "/usr/local/bin/docsearch",
//	      "args": ["serve"],
//	      "env": {
//	        "OPENAI_API_KEY": "your-api-key"
//	      }
//	    }
//	  }
//	}
//
// # Error Handling
//
// Invalid arguments are returned as JSON-RPC errors:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, embedding provider)
//   - -32004: Query parameter is empty
//   - -32005: Library parameter is empty
package mcp
