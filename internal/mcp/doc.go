// Package mcp exposes the inbox processor as MCP tools over stdio.
//
// Tools:
//
//	process_input   run one input through the orchestrator
//	session_status  report the high-priority budget of a session
//	get_rules       return the Minimalist Rules in force
//
// Sessions are held in memory for the lifetime of the server. A call without
// session_id uses the server's default session, so an agent that never names
// a session still gets one shared budget.
package mcp
