// Package mcp serves the help desk over the Model Context Protocol.
//
// helpdesk_ask runs the full plan/execute/reflect agent and returns the
// composed answer with per-subtask results. helpdesk_search_manual and
// helpdesk_search_qa call the retrieval tools directly when they are
// configured. Answers are scrubbed for secrets before they are returned.
package mcp
