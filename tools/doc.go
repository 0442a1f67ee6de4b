// Package tools defines the Tool and Host interfaces shared by remote MCP tools and local Go tools,
// and the Result type returned by every tool invocation.
package tools
