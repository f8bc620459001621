// Package mcp implements the Model Context Protocol server surface.
//
// The server speaks JSON-RPC 2.0 over the Streamable HTTP transport and
// exposes the Telegram toolset to external clients such as Claude Code.
// Sessions are held in memory and identified by the Mcp-Session-Id header;
// authentication is optional and accepts either static tokens (URL path or
// query parameter) or JWT bearer tokens.
package mcp
