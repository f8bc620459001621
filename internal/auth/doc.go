// Package auth provides HS256 JWT verification for the MCP HTTP endpoint.
package auth
