// Package cmd implements the command-line interface for meetwhen.
//
// This package provides the following commands:
//   - serve: Start the HTTP API (default) or the MCP stdio server
//   - find: Print the common free windows of a set of participants
//   - credentials show|delete|revoke: Manage stored per-identity credentials
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// Configuration is layered: built-in defaults, ~/.meetwhen/config.toml,
// environment variables, then flags given on the command line.
package cmd
