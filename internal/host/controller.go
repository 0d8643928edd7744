// Package host implements the host controller: the side of the preview
// protocol that owns the sandbox's content lifecycle, generates pages,
// executes intents, and surfaces sandbox events to the outer UI.
package host

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/draftforge/preview/internal/channel"
	"github.com/draftforge/preview/internal/host/intentexec"
	"github.com/draftforge/preview/internal/logging"
	"github.com/draftforge/preview/internal/protocol"
	"github.com/draftforge/preview/internal/shared/id"
)

// DefaultDiagnosticTimeout bounds the pre-refresh error query. The
// refresh proceeds either way; the query only enriches logs.
const DefaultDiagnosticTimeout = time.Second

// DefaultCompressMin is the manifest value size at which gzip pays off.
const DefaultCompressMin = 8 * 1024

// Surface is the content side of the sandbox the controller owns:
// initial load and subsequent scroll-preserving updates.
type Surface interface {
	Load(ctx context.Context, content string) error
	SetContent(ctx context.Context, content string) error
}

// PageGenerator produces page content for navigation requests.
type PageGenerator interface {
	Generate(ctx context.Context, pageName, navLabel string) (string, error)
}

// UISink receives sandbox events the outer application surfaces.
// Implementations must not block; the channel dispatch goroutine calls
// them inline.
type UISink interface {
	Ready(errorCount int)
	ErrorCaptured(rec protocol.ErrorRecord)
	PageSwitched(pageName, pagePath string)
	OverlayOpened(token id.OverlayToken, overlay Overlay, intentName string, payload map[string]any)
	RedirectRequested(url string)
	OverlayRequested(overlay, intentName string)
	ResearchOpened(query, href string)
	ReloadRequested(reason string)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Ready(int)                                               {}
func (NopSink) ErrorCaptured(protocol.ErrorRecord)                      {}
func (NopSink) PageSwitched(string, string)                             {}
func (NopSink) OverlayOpened(id.OverlayToken, Overlay, string, map[string]any) {}
func (NopSink) RedirectRequested(string)                                {}
func (NopSink) OverlayRequested(string, string)                         {}
func (NopSink) ResearchOpened(string, string)                           {}
func (NopSink) ReloadRequested(string)                                  {}

// Options configures a Controller.
type Options struct {
	Endpoint  *channel.Endpoint
	Surface   Surface
	Generator PageGenerator
	Executor  intentexec.Executor
	Sink      UISink
	Logger    *logging.Logger
	// PreviewID is the ambient identity merged into every intent
	// execution context.
	PreviewID         string
	DiagnosticTimeout time.Duration
	CompressMin       int
}

// Controller is the host side of the preview protocol.
type Controller struct {
	endpoint  *channel.Endpoint
	surface   Surface
	generator PageGenerator
	executor  intentexec.Executor
	overlays  *OverlayTable
	sink      UISink
	logger    *logging.Logger
	previewID string

	diagTimeout time.Duration
	compressMin int

	mu          sync.Mutex
	lastContent string
	currentPage string
	ready       bool
	readyErrors int
	errors      []protocol.ErrorRecord

	pendingErrors   map[string]chan []protocol.ErrorRecord
	pendingCommands map[string]chan bool
	pendingOverlays map[id.OverlayToken]string
}

// New wires a controller to its endpoint and installs the inbound
// handler immediately.
func New(opts Options) (*Controller, error) {
	if opts.Endpoint == nil {
		return nil, fmt.Errorf("endpoint required")
	}
	if opts.Surface == nil {
		return nil, fmt.Errorf("surface required")
	}
	if opts.Sink == nil {
		opts.Sink = NopSink{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.DiagnosticTimeout <= 0 {
		opts.DiagnosticTimeout = DefaultDiagnosticTimeout
	}
	if opts.CompressMin <= 0 {
		opts.CompressMin = DefaultCompressMin
	}

	overlays, err := LoadOverlayTable()
	if err != nil {
		return nil, err
	}

	c := &Controller{
		endpoint:        opts.Endpoint,
		surface:         opts.Surface,
		generator:       opts.Generator,
		executor:        opts.Executor,
		overlays:        overlays,
		sink:            opts.Sink,
		logger:          opts.Logger.Component("host"),
		previewID:       opts.PreviewID,
		diagTimeout:     opts.DiagnosticTimeout,
		compressMin:     opts.CompressMin,
		pendingErrors:   make(map[string]chan []protocol.ErrorRecord),
		pendingCommands: make(map[string]chan bool),
		pendingOverlays: make(map[id.OverlayToken]string),
	}
	c.endpoint.SetHandler(c.handle)
	return c, nil
}

// SetContent applies new content to the sandbox. First content builds
// the document; later calls substitute in place, preserving scroll.
func (c *Controller) SetContent(ctx context.Context, content string) error {
	c.mu.Lock()
	c.lastContent = content
	c.mu.Unlock()
	return c.surface.SetContent(ctx, content)
}

// Refresh rebuilds the preview from the last known content. A bounded
// diagnostic query runs first; its failure never blocks the refresh.
func (c *Controller) Refresh(ctx context.Context) error {
	diagCtx, cancel := context.WithTimeout(ctx, c.diagTimeout)
	recs, err := c.QueryErrors(diagCtx)
	cancel()
	if err != nil {
		c.logger.Warn("diagnostic query failed, refreshing anyway", zap.Error(err))
	} else if len(recs) > 0 {
		c.logger.Info("refreshing with sandbox errors present", zap.Int("count", len(recs)))
	}

	c.mu.Lock()
	content := c.lastContent
	c.mu.Unlock()
	if content == "" {
		return fmt.Errorf("no content to refresh")
	}
	return c.surface.SetContent(ctx, content)
}

// QueryErrors pulls the sandbox's current error set.
func (c *Controller) QueryErrors(ctx context.Context) ([]protocol.ErrorRecord, error) {
	reqID := id.NewRequestID().String()
	ch := make(chan []protocol.ErrorRecord, 1)

	c.mu.Lock()
	c.pendingErrors[reqID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pendingErrors, reqID)
		c.mu.Unlock()
	}()

	if err := c.endpoint.Send(&protocol.GetPreviewErrors{RequestID: reqID}); err != nil {
		return nil, err
	}
	select {
	case recs := <-ch:
		return recs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ClearErrors empties both the sandbox buffer and the host aggregate.
func (c *Controller) ClearErrors() error {
	c.mu.Lock()
	c.errors = nil
	c.mu.Unlock()
	return c.endpoint.Send(&protocol.ClearPreviewErrors{})
}

// SendCommand runs an ad hoc command inside the sandbox and reports
// whether it was handled.
func (c *Controller) SendCommand(ctx context.Context, command string) (bool, error) {
	reqID := id.NewRequestID().String()
	ch := make(chan bool, 1)

	c.mu.Lock()
	c.pendingCommands[reqID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pendingCommands, reqID)
		c.mu.Unlock()
	}()

	if err := c.endpoint.Send(&protocol.IntentCommand{Command: command, RequestID: reqID}); err != nil {
		return false, err
	}
	select {
	case handled := <-ch:
		return handled, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// PushManifest pre-warms the sandbox page cache, compressing values
// large enough to pay for the gzip round trip.
func (c *Controller) PushManifest(pages map[string]string) error {
	out := make(map[string]string, len(pages))
	for path, content := range pages {
		if len(content) >= c.compressMin {
			compressed, err := protocol.CompressManifestValue(content)
			if err == nil {
				out[path] = compressed
				continue
			}
			c.logger.Warn("manifest compression failed, sending plain",
				zap.String("path", path), zap.Error(err))
		}
		out[path] = content
	}
	return c.endpoint.Send(&protocol.PageManifestSync{Pages: out})
}

// CompleteOverlay finishes a table-routed intent: the dialog's
// collected payload is now executed against the backend, and the
// execution result flows back into the sandbox. This is the only path
// on which an overlay-routed intent reaches the executor.
func (c *Controller) CompleteOverlay(token id.OverlayToken, payload map[string]any) error {
	c.mu.Lock()
	intentName, ok := c.pendingOverlays[token]
	if ok {
		delete(c.pendingOverlays, token)
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pending overlay for token %s", token)
	}
	go c.runIntent(intentName, payload)
	return nil
}

// Ready reports whether the sandbox signaled readiness, and with how
// many early errors.
func (c *Controller) Ready() (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready, c.readyErrors
}

// CurrentPage returns the page the sandbox last switched to.
func (c *Controller) CurrentPage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentPage
}

// Errors returns the pushed records aggregated so far.
func (c *Controller) Errors() []protocol.ErrorRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.ErrorRecord(nil), c.errors...)
}

// HasErrors reports whether the sandbox pushed any errors.
func (c *Controller) HasErrors() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errors) > 0
}

// Close tears down the host endpoint. Pending queries fail by context.
func (c *Controller) Close() {
	c.endpoint.Close()
}

func (c *Controller) handle(m protocol.Message) {
	switch msg := m.(type) {
	case *protocol.PreviewReady:
		c.mu.Lock()
		c.ready = true
		c.readyErrors = msg.ErrorCount
		c.mu.Unlock()
		c.sink.Ready(msg.ErrorCount)
	case *protocol.PreviewError:
		c.mu.Lock()
		c.errors = append(c.errors, msg.Error)
		c.mu.Unlock()
		c.sink.ErrorCaptured(msg.Error)
	case *protocol.NavPageGenerate:
		go c.generate(msg)
	case *protocol.NavPageSwitch:
		c.mu.Lock()
		c.currentPage = msg.PageName
		c.mu.Unlock()
		c.sink.PageSwitched(msg.PageName, msg.PagePath)
	case *protocol.PreviewErrorsResponse:
		c.mu.Lock()
		ch, ok := c.pendingErrors[msg.RequestID]
		c.mu.Unlock()
		if ok {
			ch <- msg.Errors
		}
	case *protocol.IntentCommandResult:
		c.mu.Lock()
		ch, ok := c.pendingCommands[msg.RequestID]
		c.mu.Unlock()
		if ok {
			ch <- msg.Handled
		}
	case *protocol.IntentTrigger:
		c.handleIntent(msg)
	case *protocol.ResearchOpen:
		c.sink.ResearchOpened(msg.Query, msg.Href)
	case *protocol.PreviewReloadRequest:
		c.sink.ReloadRequested(msg.Reason)
		go c.rebuild(msg.Reason)
	default:
		c.logger.Debug("unhandled message", zap.String("type", string(m.Kind())))
	}
}

// generate answers a page-generation request under its correlation ID.
// The sandbox owns the timeout; the host always answers eventually.
func (c *Controller) generate(msg *protocol.NavPageGenerate) {
	fail := func(reason string) {
		_ = c.endpoint.Send(&protocol.NavPageError{RequestID: msg.RequestID, Error: reason})
	}

	if c.generator == nil {
		fail("no page generator configured")
		return
	}

	content, err := c.generator.Generate(context.Background(), msg.PageName, msg.NavLabel)
	if err != nil {
		c.logger.Warn("page generation failed",
			zap.String("page", msg.PageName), zap.Error(err))
		fail(err.Error())
		return
	}
	if mt := mimetype.Detect([]byte(content)); !mt.Is("text/html") {
		c.logger.Warn("generator produced non-html content",
			zap.String("page", msg.PageName), zap.String("mime", mt.String()))
		fail("generated content is not a page")
		return
	}

	_ = c.endpoint.Send(&protocol.NavPageReady{RequestID: msg.RequestID, PageContent: content})
}

// handleIntent routes through the overlay table first. Table-routed
// intents reach the executor only later, through CompleteOverlay;
// everything else executes immediately.
func (c *Controller) handleIntent(msg *protocol.IntentTrigger) {
	if overlay, ok := c.overlays.Lookup(msg.Intent); ok {
		token := id.NewOverlayToken()
		c.mu.Lock()
		c.pendingOverlays[token] = msg.Intent
		c.mu.Unlock()
		c.sink.OverlayOpened(token, overlay, msg.Intent, msg.Payload)
		return
	}
	go c.runIntent(msg.Intent, msg.Payload)
}

// runIntent executes one intent with the merged context and always
// answers with an intent result, success or not, so the triggering
// element's busy state always clears. UI directives the backend
// returns (redirect, open-overlay) go to the sink; the toast rides
// the result into the sandbox.
func (c *Controller) runIntent(intentName string, payload map[string]any) {
	var result map[string]any
	if c.executor == nil {
		result = map[string]any{"error": "no intent executor configured"}
	} else if res, err := c.executor.Execute(context.Background(), intentName, c.mergedContext(payload)); err != nil {
		result = map[string]any{"error": err.Error()}
	} else {
		if res.RedirectURL != "" {
			c.sink.RedirectRequested(res.RedirectURL)
		}
		if res.OpenOverlay != "" {
			c.sink.OverlayRequested(res.OpenOverlay, intentName)
		}
		result = res.ToMap()
	}
	_ = c.endpoint.Send(&protocol.IntentResult{Intent: intentName, Result: result})
}

// mergedContext combines the payload's identifiers with the ambient
// ones the host knows. Payload keys win on collision.
func (c *Controller) mergedContext(payload map[string]any) map[string]any {
	c.mu.Lock()
	page := c.currentPage
	c.mu.Unlock()

	merged := make(map[string]any, len(payload)+2)
	if c.previewID != "" {
		merged["preview_id"] = c.previewID
	}
	if page != "" {
		merged["page"] = page
	}
	for k, v := range payload {
		merged[k] = v
	}
	return merged
}

// rebuild is the out-of-band answer to a reload request.
func (c *Controller) rebuild(reason string) {
	c.mu.Lock()
	content := c.lastContent
	c.mu.Unlock()
	if content == "" {
		c.logger.Warn("reload requested with no content to rebuild", zap.String("reason", reason))
		return
	}
	if err := c.surface.SetContent(context.Background(), content); err != nil {
		c.logger.Error("rebuild failed", zap.Error(err))
	}
}
