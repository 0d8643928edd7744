package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/draftforge/preview/internal/logging"
)

// DefaultScriptTimeout bounds a single inline script's execution.
const DefaultScriptTimeout = 2 * time.Second

// Options configures a Sandbox.
type Options struct {
	ScriptTimeout time.Duration
	Sink          ErrorSink
	Reload        ReloadFunc
	Logger        *logging.Logger
}

// Sandbox is the isolated preview surface: a parsed document plus a
// script runtime, with a replacement chain for applying new content.
type Sandbox struct {
	doc      *Document
	runtime  *Runtime
	replacer *Replacer
	reloadFn ReloadFunc
	logger   *logging.Logger
}

// New builds an empty sandbox. Load must be called before use.
func New(opts Options) *Sandbox {
	if opts.ScriptTimeout <= 0 {
		opts.ScriptTimeout = DefaultScriptTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	s := &Sandbox{
		runtime: NewRuntime(opts.ScriptTimeout, opts.Sink, opts.Logger),
		logger:  opts.Logger,
	}
	s.reloadFn = opts.Reload
	return s
}

// Load parses page content into the sandbox and executes its inline
// scripts. Returns the number of script failures, which feeds the
// ready signal's error count.
func (s *Sandbox) Load(ctx context.Context, content string) (int, error) {
	doc, err := NewDocument(content)
	if err != nil {
		return 0, fmt.Errorf("load document: %w", err)
	}
	s.doc = doc
	s.replacer = NewReplacer(doc, s.reloadFn, s.logger)
	s.runtime.BindDocument(doc)
	return s.runtime.RunAll(ctx, doc.Scripts()), nil
}

// Document returns the live document. Nil before Load.
func (s *Sandbox) Document() *Document {
	return s.doc
}

// Runtime returns the script runtime.
func (s *Sandbox) Runtime() *Runtime {
	return s.runtime
}

// Replace applies new page content through the strategy chain and runs
// the new content's scripts. Returns the strategy that applied it.
func (s *Sandbox) Replace(ctx context.Context, content string) (string, error) {
	if s.replacer == nil {
		return "", fmt.Errorf("sandbox not loaded")
	}
	scripts, strategy, err := s.replacer.Replace(content)
	if err != nil {
		return "", err
	}
	s.runtime.BindDocument(s.doc)
	s.runtime.RunAll(ctx, scripts)
	return strategy, nil
}
