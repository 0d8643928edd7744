package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/draftforge/preview/internal/agent"
	"github.com/draftforge/preview/internal/agent/nav"
	"github.com/draftforge/preview/internal/channel"
	"github.com/draftforge/preview/internal/config"
	"github.com/draftforge/preview/internal/host"
	"github.com/draftforge/preview/internal/host/intentexec"
	"github.com/draftforge/preview/internal/infrastructure/monitoring"
	"github.com/draftforge/preview/internal/logging"
	"github.com/draftforge/preview/internal/protocol"
	"github.com/draftforge/preview/internal/shared/id"
)

// Preview bundles both ends of one sandbox boundary plus the page set
// registered for it.
type Preview struct {
	ID      id.PreviewID
	agent   *agent.Agent
	ctrl    *host.Controller
	created time.Time
	metrics *monitoring.Metrics

	mu    sync.RWMutex
	pages map[string]string // keyed by normalized page name
}

// Agent returns the sandbox side of the preview.
func (p *Preview) Agent() *agent.Agent { return p.agent }

// Controller returns the host side of the preview.
func (p *Preview) Controller() *host.Controller { return p.ctrl }

// Created returns the creation time.
func (p *Preview) Created() time.Time { return p.created }

// RegisterPages stores page content for later navigation. Keys are
// normalized, so "/about.html" and "about" land on the same entry.
func (p *Preview) RegisterPages(pages map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for path, content := range pages {
		p.pages[nav.NormalizePageName(path)] = content
	}
}

// Generate serves navigation requests from the registered page set.
func (p *Preview) Generate(ctx context.Context, pageName, navLabel string) (string, error) {
	start := time.Now()
	p.mu.RLock()
	content, ok := p.pages[pageName]
	p.mu.RUnlock()
	if !ok {
		if p.metrics != nil {
			p.metrics.RecordNavigation("miss")
		}
		return "", fmt.Errorf("no page registered for %q", pageName)
	}
	if p.metrics != nil {
		p.metrics.RecordGeneration(time.Since(start))
	}
	return content, nil
}

// PreviewManager owns the set of live previews.
type PreviewManager struct {
	cfg      *config.Config
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	executor intentexec.Executor
	sinks    func(previewID string) host.UISink

	mu       sync.RWMutex
	previews map[id.PreviewID]*Preview
}

// NewPreviewManager creates a manager. sinks may be nil, in which case
// sandbox events are not surfaced anywhere.
func NewPreviewManager(cfg *config.Config, logger *logging.Logger, metrics *monitoring.Metrics, executor intentexec.Executor, sinks func(previewID string) host.UISink) *PreviewManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &PreviewManager{
		cfg:      cfg,
		logger:   logger.Component("previews"),
		metrics:  metrics,
		executor: executor,
		sinks:    sinks,
		previews: make(map[id.PreviewID]*Preview),
	}
}

// Create builds a sandboxed preview pair, applies initial content, and
// pre-warms the page cache with any registered pages.
func (m *PreviewManager) Create(ctx context.Context, content string, pages map[string]string) (*Preview, error) {
	pv := id.NewPreviewID()

	sandboxSide, hostSide := channel.Pair(m.cfg.Preview.ChannelBuffer, m.logger)

	ag, err := agent.New(agent.Options{
		Endpoint:      sandboxSide,
		NavTimeout:    m.cfg.Preview.NavTimeout,
		ScriptTimeout: m.cfg.Preview.ScriptTimeout,
		ErrorCapacity: m.cfg.Preview.ErrorBufferCap,
		Logger:        m.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}

	p := &Preview{
		ID:      pv,
		agent:   ag,
		created: time.Now(),
		metrics: m.metrics,
		pages:   make(map[string]string),
	}

	var sink host.UISink
	if m.sinks != nil {
		sink = newInstrumentedSink(m.sinks(string(pv)), m.metrics)
	}

	ctrl, err := host.New(host.Options{
		Endpoint:          hostSide,
		PreviewID:         string(pv),
		Surface:           ag,
		Generator:         p,
		Executor:          m.executor,
		Sink:              sink,
		Logger:            m.logger,
		DiagnosticTimeout: m.cfg.Preview.DiagnosticTimeout,
		CompressMin:       m.cfg.Preview.ManifestCompressMin,
	})
	if err != nil {
		ag.Close()
		return nil, fmt.Errorf("controller: %w", err)
	}
	p.ctrl = ctrl

	if content != "" {
		if err := ctrl.SetContent(ctx, content); err != nil {
			ag.Close()
			ctrl.Close()
			return nil, fmt.Errorf("initial content: %w", err)
		}
	}
	if len(pages) > 0 {
		p.RegisterPages(pages)
		if err := ctrl.PushManifest(pages); err != nil {
			m.logger.Warn("manifest push failed on create")
		}
	}

	m.mu.Lock()
	m.previews[pv] = p
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.IncPreviews()
	}
	return p, nil
}

// Get looks up a preview by ID.
func (m *PreviewManager) Get(pv id.PreviewID) (*Preview, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.previews[pv]
	return p, ok
}

// List returns all live previews.
func (m *PreviewManager) List() []*Preview {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Preview, 0, len(m.previews))
	for _, p := range m.previews {
		out = append(out, p)
	}
	return out
}

// Close tears down one preview.
func (m *PreviewManager) Close(pv id.PreviewID) bool {
	m.mu.Lock()
	p, ok := m.previews[pv]
	if ok {
		delete(m.previews, pv)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	p.agent.Close()
	p.ctrl.Close()
	if m.metrics != nil {
		m.metrics.DecPreviews()
	}
	return true
}

// CloseAll tears down every preview. Used on shutdown.
func (m *PreviewManager) CloseAll() {
	m.mu.Lock()
	previews := m.previews
	m.previews = make(map[id.PreviewID]*Preview)
	m.mu.Unlock()
	for _, p := range previews {
		p.agent.Close()
		p.ctrl.Close()
		if m.metrics != nil {
			m.metrics.DecPreviews()
		}
	}
}

// Count returns the number of live previews.
func (m *PreviewManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.previews)
}

// instrumentedSink counts events on their way to the real sink.
type instrumentedSink struct {
	inner   host.UISink
	metrics *monitoring.Metrics
}

func newInstrumentedSink(inner host.UISink, metrics *monitoring.Metrics) host.UISink {
	if inner == nil {
		inner = host.NopSink{}
	}
	if metrics == nil {
		return inner
	}
	return &instrumentedSink{inner: inner, metrics: metrics}
}

func (s *instrumentedSink) Ready(errorCount int) {
	s.inner.Ready(errorCount)
}

func (s *instrumentedSink) ErrorCaptured(rec protocol.ErrorRecord) {
	s.metrics.RecordSandboxError()
	s.inner.ErrorCaptured(rec)
}

func (s *instrumentedSink) PageSwitched(pageName, pagePath string) {
	s.metrics.RecordNavigation("switch")
	s.inner.PageSwitched(pageName, pagePath)
}

func (s *instrumentedSink) OverlayOpened(token id.OverlayToken, overlay host.Overlay, intentName string, payload map[string]any) {
	s.inner.OverlayOpened(token, overlay, intentName, payload)
}

func (s *instrumentedSink) RedirectRequested(url string) {
	s.inner.RedirectRequested(url)
}

func (s *instrumentedSink) OverlayRequested(overlay, intentName string) {
	s.inner.OverlayRequested(overlay, intentName)
}

func (s *instrumentedSink) ResearchOpened(query, href string) {
	s.inner.ResearchOpened(query, href)
}

func (s *instrumentedSink) ReloadRequested(reason string) {
	s.inner.ReloadRequested(reason)
}
