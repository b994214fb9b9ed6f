// Package config loads process configuration from defaults, an optional
// TOML file and DOCSEARCH_* environment variables, in that order.
//
// Example file:
//
//	[store]
//	path = "~/.docsearch/docsearch.db"
//
//	[embedding]
//	model = "ollama:nomic-embed-text"
//
//	[search]
//	weight_vector = 1.0
//	weight_fts = 1.0
//
//	[log]
//	level = "debug"
//	format = "json"
package config
