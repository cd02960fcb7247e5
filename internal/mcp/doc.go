// Package mcp implements the Model Context Protocol endpoint for external tool access.
//
// # Protocol
//
// Each POST /api/mcp carries one JSON-RPC 2.0 message. The response is a
// text/event-stream body holding one or more "message" events, each a JSON-RPC
// response echoing the request id, followed by exactly one terminal event:
//
//	event: message
//	data: {"jsonrpc":"2.0","id":1,"result":{...}}
//
//	event: done
//	data: {"id":1}
//
// Protocol errors (bad JSON, unknown method, missing params) are sent as a
// message event carrying an error envelope, then done. Data-access failures
// and handler panics end the stream with an "error" event carrying a -32603
// envelope instead of done.
//
// # Authentication
//
// Requests authenticate with a bearer JWT. A failed check answers 401 with a
// JSON body and no stream; once authenticated the status is always 200.
//
// # Methods
//
//   - initialize: protocol version, capabilities and server identity
//   - notifications/initialized: empty acknowledgement
//   - tools/list: versioned catalog of getPromptById and listPrompts
//   - prompts/list: the tenant's prompts as {id, content}
//   - tools/call: runs getPromptById or listPrompts against the tenant's prompts
//
// Anything else is answered with -32601 method not found.
//
// # Handlers
//
// A Handler returns an iter.Seq2[any, error]. The dispatcher drains it in
// order, framing each value, so a handler can stream partial results before
// the terminal marker.
package mcp
