// Package ws streams preview UI directives to subscribed WebSocket
// clients.
//
// The hub fans sandbox events out to every connected client. A client
// may subscribe with ?preview=pv_... to receive only one preview's
// events; unfiltered clients receive everything.
//
// Event types:
//   - system: connection established
//   - preview_ready: document loaded, with early error count
//   - preview_error: a script error was captured
//   - page_switch: navigation completed
//   - overlay_open: an intent routed to an overlay dialog
//   - overlay_request: an executed intent asked to open a follow-up dialog
//   - redirect: an executed intent asked for a client-side redirect
//   - research_open: a long external link asked for research
//   - reload: the sandbox requested a full rebuild
//
// Slow clients are disconnected rather than allowed to stall the hub.
// Delivery is best-effort: the sandbox keeps the authoritative error
// buffer, so a missed event is recoverable by query.
package ws
