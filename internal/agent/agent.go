// Package agent implements the content agent: the logic living inside
// the isolated preview document that observes interactions, resolves
// them to intents or navigations, and speaks the preview protocol with
// the host controller.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/draftforge/preview/internal/agent/booking"
	"github.com/draftforge/preview/internal/agent/errbuf"
	"github.com/draftforge/preview/internal/agent/intent"
	"github.com/draftforge/preview/internal/agent/nav"
	"github.com/draftforge/preview/internal/channel"
	"github.com/draftforge/preview/internal/logging"
	"github.com/draftforge/preview/internal/protocol"
	"github.com/draftforge/preview/internal/sandbox"
)

// attrBusy marks an element whose intent is still executing, so a
// second click dispatches nothing until the result comes back.
const attrBusy = "data-busy"

// Options configures an Agent.
type Options struct {
	Endpoint      *channel.Endpoint
	NavTimeout    time.Duration
	ScriptTimeout time.Duration
	ErrorCapacity int
	Logger        *logging.Logger
}

// Agent owns all per-sandbox mutable state: the page cache, the
// navigation machine, the error buffer, and busy tracking. Construct
// one per sandbox load; instances never share state.
type Agent struct {
	endpoint *channel.Endpoint
	box      *sandbox.Sandbox
	errors   *errbuf.Buffer
	resolver *intent.Resolver
	machine  *nav.Machine
	logger   *logging.Logger

	mu     sync.Mutex
	loaded bool
}

// New wires an agent to its channel endpoint. The endpoint's inbound
// handler is installed immediately; Load must run before interactions.
func New(opts Options) (*Agent, error) {
	if opts.Endpoint == nil {
		return nil, fmt.Errorf("endpoint required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	resolver, err := intent.NewResolver()
	if err != nil {
		return nil, fmt.Errorf("load intent table: %w", err)
	}

	a := &Agent{
		endpoint: opts.Endpoint,
		errors:   errbuf.New(opts.ErrorCapacity),
		resolver: resolver,
		logger:   opts.Logger.Component("agent"),
	}

	a.box = sandbox.New(sandbox.Options{
		ScriptTimeout: opts.ScriptTimeout,
		Sink:          a.captureError,
		Reload: func(reason string) error {
			return a.endpoint.Send(&protocol.PreviewReloadRequest{Reason: reason})
		},
		Logger: opts.Logger,
	})

	a.machine = nav.NewMachine(nav.Options{
		Timeout: opts.NavTimeout,
		Send:    a.endpoint.Send,
		Swap: func(content string) error {
			_, err := a.box.Replace(context.Background(), content)
			return err
		},
		UI:     docUI{a},
		Logger: opts.Logger,
	})

	a.endpoint.SetHandler(a.handle)
	return a, nil
}

// Document returns the live preview document. Nil before Load.
func (a *Agent) Document() *sandbox.Document {
	return a.box.Document()
}

// Errors returns the agent's error buffer.
func (a *Agent) Errors() *errbuf.Buffer {
	return a.errors
}

// Cache exposes the page cache for pre-warming in tests.
func (a *Agent) Cache() *nav.Cache {
	return a.machine.Cache()
}

// Load parses page content into the sandbox, runs its inline scripts,
// and broadcasts the ready signal carrying the count of errors captured
// before any listener could attach.
func (a *Agent) Load(ctx context.Context, content string) error {
	if _, err := a.box.Load(ctx, content); err != nil {
		return err
	}
	a.mu.Lock()
	a.loaded = true
	a.mu.Unlock()

	if err := a.endpoint.Send(&protocol.PreviewReady{ErrorCount: a.errors.Len()}); err != nil {
		a.logger.Warn("ready signal not delivered", zap.Error(err))
	}
	return nil
}

// SetContent applies new page content to an already-loaded sandbox,
// preserving the scroll position when its target survives the swap.
// Falls back to a full load for the first content of a sandbox.
func (a *Agent) SetContent(ctx context.Context, content string) error {
	a.mu.Lock()
	loaded := a.loaded
	a.mu.Unlock()
	if !loaded {
		return a.Load(ctx, content)
	}

	doc := a.Document()
	scroll := doc.ScrollTarget()

	if _, err := a.box.Replace(ctx, content); err != nil {
		return err
	}
	if scroll != "" && doc.Find(scroll).Length() > 0 {
		doc.ScrollTo(scroll)
	}
	return nil
}

// captureError stores a record and pushes it to the host immediately.
// Push failures are fine: the buffer still answers pull queries.
func (a *Agent) captureError(rec protocol.ErrorRecord) {
	a.errors.Capture(rec)
	_ = a.endpoint.Send(&protocol.PreviewError{Error: rec})
}

// Click processes a click on the element matching selector.
//
// Precedence: busy suppression, explicit opt-out, explicit intent
// attribute, navigation classification, generic resolution, booking
// short-circuit, research fallback. A nil return with no message means
// the default behavior should proceed.
func (a *Agent) Click(selector string) error {
	doc := a.Document()
	if doc == nil {
		return fmt.Errorf("no document loaded")
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return fmt.Errorf("no element matches %q", selector)
	}

	if _, busy := sel.Attr(attrBusy); busy {
		return nil
	}
	if intent.OptedOut(sel) {
		return nil
	}

	if name, ok := intent.Explicit(sel); ok {
		return a.dispatchBinding(doc, selector, sel,
			&intent.Binding{Source: intent.SourceExplicit, Intent: name, Payload: intent.ClickPayload(sel)})
	}

	if href, ok := sel.Attr("href"); ok && strings.TrimSpace(href) != "" {
		return a.navigate(doc, sel, strings.TrimSpace(href))
	}

	if binding := a.resolver.ResolveClick(sel); binding != nil {
		return a.dispatchBinding(doc, selector, sel, binding)
	}

	if rsch := intent.ResolveResearch(sel); rsch != nil {
		return a.endpoint.Send(&protocol.ResearchOpen{Query: rsch.Query, Href: rsch.Href})
	}
	return nil
}

// Submit processes a form submission. The form's busy state blocks a
// re-submit; the booking short-circuit never applies because the
// trigger is the form itself.
func (a *Agent) Submit(selector string) error {
	doc := a.Document()
	if doc == nil {
		return fmt.Errorf("no document loaded")
	}
	form := doc.Find(selector).First()
	if form.Length() == 0 {
		return fmt.Errorf("no form matches %q", selector)
	}

	if _, busy := form.Attr(attrBusy); busy {
		return nil
	}

	binding := a.resolver.ResolveSubmit(form)
	if binding == nil {
		return nil
	}
	doc.SetAttr(selector, attrBusy, "1")
	return a.endpoint.Send(&protocol.IntentTrigger{Intent: binding.Intent, Payload: binding.Payload})
}

// navigate handles a link destination: in-page anchors scroll with no
// cross-boundary message, external links flow through generation under
// a synthetic slug, internal links go to the navigation machine.
func (a *Agent) navigate(doc *sandbox.Document, sel *goquery.Selection, href string) error {
	label := strings.Join(strings.Fields(sel.Text()), " ")

	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(lower, "javascript:") {
		return nil
	}

	switch nav.Classify(href) {
	case nav.KindAnchor:
		frag := strings.TrimPrefix(href, "#")
		if frag != "" {
			doc.ScrollTo("#" + sandbox.EscapeSelector(frag))
		}
		return nil
	case nav.KindExternal:
		// Long-text off-site links read like "tell me more", not
		// navigation; they open the research flow instead.
		if rsch := intent.ResolveResearch(sel); rsch != nil {
			return a.endpoint.Send(&protocol.ResearchOpen{Query: rsch.Query, Href: rsch.Href})
		}
		a.machine.Navigate(nav.ExternalSlug(href), label)
		return nil
	default:
		a.machine.Navigate(href, label)
		return nil
	}
}

// dispatchBinding sends a resolved intent, first giving bookings the
// chance to satisfy themselves locally.
func (a *Agent) dispatchBinding(doc *sandbox.Document, selector string, sel *goquery.Selection, binding *intent.Binding) error {
	if binding.Intent == intent.BookingCreate && sel.Closest("form").Length() == 0 {
		if a.scrollToBookingForm(doc, sel) {
			return nil
		}
	}
	doc.SetAttr(selector, attrBusy, "1")
	return a.endpoint.Send(&protocol.IntentTrigger{Intent: binding.Intent, Payload: binding.Payload})
}

// scrollToBookingForm runs the booking locator chain; on a hit the
// visitor is scrolled to the form and its first field gets focus, and
// no message crosses the boundary.
func (a *Agent) scrollToBookingForm(doc *sandbox.Document, trigger *goquery.Selection) bool {
	target, strategy, ok := booking.Locate(doc.Root(), trigger)
	if !ok {
		return false
	}
	sel := elementSelector(target)
	doc.ScrollTo(sel)
	doc.FocusFirstInput(sel)
	a.logger.Debug("booking short-circuit", zap.String("strategy", strategy), zap.String("target", sel))
	return true
}

// handle dispatches inbound host messages.
func (a *Agent) handle(m protocol.Message) {
	switch msg := m.(type) {
	case *protocol.NavPageReady:
		a.machine.HandleReady(msg.RequestID, msg.PageContent)
	case *protocol.NavPageError:
		a.machine.HandleError(msg.RequestID, msg.Error)
	case *protocol.PageManifestSync:
		a.warmCache(msg.Pages)
	case *protocol.GetPreviewErrors:
		_ = a.endpoint.Send(&protocol.PreviewErrorsResponse{
			Errors:    a.errors.Snapshot(),
			RequestID: msg.RequestID,
		})
	case *protocol.ClearPreviewErrors:
		a.errors.Clear()
	case *protocol.IntentResult:
		a.finishIntent(msg)
	case *protocol.IntentCommand:
		a.runCommand(msg)
	default:
		a.logger.Debug("unhandled message", zap.String("type", string(m.Kind())))
	}
}

// warmCache inflates manifest entries and pre-warms the page cache.
// A corrupt entry is skipped, not fatal.
func (a *Agent) warmCache(pages map[string]string) {
	warm := make(map[string]string, len(pages))
	for path, value := range pages {
		content, err := protocol.DecompressManifestValue(value)
		if err != nil {
			a.logger.Warn("skipping corrupt manifest entry", zap.String("path", path), zap.Error(err))
			continue
		}
		warm[path] = content
	}
	a.machine.Cache().Warm(warm)
	a.logger.Debug("cache warmed", zap.Int("pages", len(warm)))
}

// finishIntent clears busy state so the triggering element can fire
// again, and surfaces any toast the execution produced.
func (a *Agent) finishIntent(msg *protocol.IntentResult) {
	doc := a.Document()
	if doc == nil {
		return
	}
	doc.RemoveAttrAll("["+attrBusy+"]", attrBusy)
	if toast, ok := msg.Result["toast"].(string); ok && toast != "" {
		doc.Notice(toast)
	}
}

// runCommand executes an ad hoc host command and reports back whether
// it was handled, under the same correlation ID.
func (a *Agent) runCommand(msg *protocol.IntentCommand) {
	doc := a.Document()
	handled := false
	if doc != nil {
		switch msg.Command {
		case "scroll-top":
			doc.ScrollTop()
			handled = true
		case "focus-first-input":
			handled = doc.FocusFirstInput("")
		case "clear-busy":
			doc.RemoveAttrAll("["+attrBusy+"]", attrBusy)
			handled = true
		}
	}
	_ = a.endpoint.Send(&protocol.IntentCommandResult{
		Command:   msg.Command,
		RequestID: msg.RequestID,
		Handled:   handled,
	})
}

// Close tears down the agent's endpoint.
func (a *Agent) Close() {
	a.endpoint.Close()
}

// docUI adapts the document's presentation state to the navigation
// machine's UI hooks.
type docUI struct{ a *Agent }

func (u docUI) SetLoading(v bool) {
	if doc := u.a.Document(); doc != nil {
		doc.SetLoading(v)
	}
}

func (u docUI) Notice(msg string) {
	if doc := u.a.Document(); doc != nil {
		doc.Notice(msg)
	}
}

// elementSelector builds a best-effort selector for reporting and
// scrolling. Ids win; anything else degrades to the tag name.
func elementSelector(sel *goquery.Selection) string {
	if id, ok := sel.Attr("id"); ok && id != "" {
		return "#" + sandbox.EscapeSelector(id)
	}
	if name, ok := sel.Attr("name"); ok && name != "" {
		return fmt.Sprintf("%s[name='%s']", goquery.NodeName(sel), name)
	}
	return goquery.NodeName(sel)
}
