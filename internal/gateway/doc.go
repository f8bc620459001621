// Package gateway wires the telegram-mcp server together and manages its
// lifecycle.
//
// # Architecture
//
// The Gateway owns every long-lived component:
//
//   - the SQLite store, opened once at startup and closed at shutdown
//   - the Telegram provider serving chat data to the toolset
//   - the MCP server exposing the toolset over Streamable HTTP
//   - the HTTP server hosting /mcp and /health
//
// A background maintenance loop runs on a configurable interval, deleting
// expired cache entries and trimming the structured log to its configured
// maximum. The store itself never schedules maintenance; the gateway is the
// only caller.
//
// Each instance carries a server ID persisted in the store's config table so
// log entries from different deployments remain distinguishable.
package gateway
