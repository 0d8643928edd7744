package protocol

// Type discriminates message envelopes on the wire.
type Type string

const (
	// Lifecycle (sandbox -> host)
	TypePreviewReady Type = "PREVIEW_READY"

	// Error reporting
	TypePreviewError          Type = "PREVIEW_ERROR"
	TypeGetPreviewErrors      Type = "GET_PREVIEW_ERRORS"
	TypePreviewErrorsResponse Type = "PREVIEW_ERRORS_RESPONSE"
	TypeClearPreviewErrors    Type = "CLEAR_PREVIEW_ERRORS"

	// Intent
	TypeIntentTrigger Type = "INTENT_TRIGGER"
	TypeIntentResult  Type = "INTENT_RESULT"

	// Navigation
	TypeNavPageGenerate  Type = "NAV_PAGE_GENERATE"
	TypeNavPageReady     Type = "NAV_PAGE_READY"
	TypeNavPageError     Type = "NAV_PAGE_ERROR"
	TypeNavPageSwitch    Type = "NAV_PAGE_SWITCH"
	TypePageManifestSync Type = "PAGE_MANIFEST_SYNC"

	// Ad hoc command/response (host -> sandbox)
	TypeIntentCommand       Type = "INTENT_COMMAND"
	TypeIntentCommandResult Type = "INTENT_COMMAND_RESULT"

	// UX fallbacks (sandbox -> host)
	TypeResearchOpen         Type = "RESEARCH_OPEN"
	TypePreviewReloadRequest Type = "PREVIEW_RELOAD_REQUEST"
)

// Message is implemented by every envelope payload.
type Message interface {
	Kind() Type
}

// ErrorRecord captures a single runtime failure inside the sandbox.
type ErrorRecord struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Source    string `json:"source"`
	Line      int    `json:"line"`
	Col       int    `json:"col"`
	Stack     string `json:"stack"`
	Timestamp int64  `json:"timestamp"`
}

// PreviewReady is broadcast once per document load. ErrorCount reports
// failures captured before any listener could be attached.
type PreviewReady struct {
	ErrorCount int `json:"errorCount"`
}

// PreviewError pushes a freshly captured failure to the host.
type PreviewError struct {
	Error ErrorRecord `json:"error"`
}

// GetPreviewErrors asks the sandbox for its current error set.
type GetPreviewErrors struct {
	RequestID string `json:"requestId"`
}

// PreviewErrorsResponse answers GetPreviewErrors with the same correlation ID.
type PreviewErrorsResponse struct {
	Errors    []ErrorRecord `json:"errors"`
	RequestID string        `json:"requestId"`
}

// ClearPreviewErrors empties the sandbox error buffer. No reply.
type ClearPreviewErrors struct{}

// IntentTrigger reports a resolved interaction to the host.
type IntentTrigger struct {
	Intent  string         `json:"intent"`
	Payload map[string]any `json:"payload"`
}

// IntentResult relays the outcome of intent execution back into the sandbox
// so the triggering element can clear its busy state.
type IntentResult struct {
	Intent string         `json:"intent"`
	Result map[string]any `json:"result"`
}

// NavPageGenerate requests asynchronous generation of a page.
type NavPageGenerate struct {
	RequestID string `json:"requestId"`
	PageName  string `json:"pageName"`
	NavLabel  string `json:"navLabel"`
}

// NavPageReady delivers generated page content keyed by correlation ID.
type NavPageReady struct {
	RequestID   string `json:"requestId"`
	PageContent string `json:"pageContent"`
}

// NavPageError reports a generation failure keyed by correlation ID.
type NavPageError struct {
	RequestID string `json:"requestId"`
	Error     string `json:"error"`
}

// NavPageSwitch informs the host that the sandbox switched pages. No reply.
type NavPageSwitch struct {
	PageName string `json:"pageName"`
	PagePath string `json:"pagePath"`
}

// PageManifestSync pre-warms the sandbox page cache with a path -> content
// map. Values may be compressed (see the manifest helpers in this package).
// Host -> sandbox only, no reply.
type PageManifestSync struct {
	Pages map[string]string `json:"pages"`
}

// IntentCommand carries an ad hoc host -> sandbox command.
type IntentCommand struct {
	Command   string `json:"command"`
	RequestID string `json:"requestId"`
}

// IntentCommandResult reports whether the sandbox handled a command.
type IntentCommandResult struct {
	Command   string `json:"command"`
	RequestID string `json:"requestId"`
	Handled   bool   `json:"handled"`
}

// ResearchOpen asks the host to open a research flow for a long-text link
// that resolved to no intent. Deliberate UX fallback, not an intent.
type ResearchOpen struct {
	Query string `json:"query"`
	Href  string `json:"href"`
}

// PreviewReloadRequest is the sandbox's last-resort escape hatch when every
// local document replacement strategy has failed.
type PreviewReloadRequest struct {
	Reason string `json:"reason"`
}

func (*PreviewReady) Kind() Type          { return TypePreviewReady }
func (*PreviewError) Kind() Type          { return TypePreviewError }
func (*GetPreviewErrors) Kind() Type      { return TypeGetPreviewErrors }
func (*PreviewErrorsResponse) Kind() Type { return TypePreviewErrorsResponse }
func (*ClearPreviewErrors) Kind() Type    { return TypeClearPreviewErrors }
func (*IntentTrigger) Kind() Type         { return TypeIntentTrigger }
func (*IntentResult) Kind() Type          { return TypeIntentResult }
func (*NavPageGenerate) Kind() Type       { return TypeNavPageGenerate }
func (*NavPageReady) Kind() Type          { return TypeNavPageReady }
func (*NavPageError) Kind() Type          { return TypeNavPageError }
func (*NavPageSwitch) Kind() Type         { return TypeNavPageSwitch }
func (*PageManifestSync) Kind() Type      { return TypePageManifestSync }
func (*IntentCommand) Kind() Type         { return TypeIntentCommand }
func (*IntentCommandResult) Kind() Type   { return TypeIntentCommandResult }
func (*ResearchOpen) Kind() Type          { return TypeResearchOpen }
func (*PreviewReloadRequest) Kind() Type  { return TypePreviewReloadRequest }
