// Package protocol defines the closed set of messages exchanged between
// the preview sandbox and the host controller.
//
// Every message is a flat, serializable envelope discriminated by a "type"
// field. Field names are part of the wire contract: the sandbox and the host
// are versioned together but may be deployed independently within a session,
// so renaming a field is a breaking change.
//
// Messages never carry live references. The channel package enforces this by
// round-tripping every envelope through JSON on send.
package protocol
