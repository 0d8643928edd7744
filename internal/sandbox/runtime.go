package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/draftforge/preview/internal/logging"
	"github.com/draftforge/preview/internal/protocol"
)

// ErrorSink receives script failures as they are captured. The agent
// wires this to its error buffer and the push broadcast.
type ErrorSink func(protocol.ErrorRecord)

// LogEntry is one console call made by page script.
type LogEntry struct {
	Level   string
	Message string
	Time    time.Time
}

// Runtime executes a page's inline scripts with an interrupt-based
// timeout and no access to the outside world. Errors never escape:
// they are converted to records and fed to the sink.
type Runtime struct {
	vm      *goja.Runtime
	timeout time.Duration
	sink    ErrorSink
	logger  *logging.Logger

	mu        sync.Mutex
	console   []LogEntry
	consoleMu sync.Mutex
}

func NewRuntime(timeout time.Duration, sink ErrorSink, logger *logging.Logger) *Runtime {
	if logger == nil {
		logger = logging.NewNop()
	}
	if sink == nil {
		sink = func(protocol.ErrorRecord) {}
	}
	r := &Runtime{
		vm:      goja.New(),
		timeout: timeout,
		sink:    sink,
		logger:  logger,
	}
	r.setupGlobals()
	return r
}

func (r *Runtime) setupGlobals() {
	r.vm.SetMaxCallStackSize(1024)

	r.vm.Set("require", goja.Undefined())
	r.vm.Set("process", goja.Undefined())
	r.vm.Set("module", goja.Undefined())
	r.vm.Set("exports", goja.Undefined())

	console := r.vm.NewObject()
	console.Set("log", r.makeConsoleFunc("log"))
	console.Set("warn", r.makeConsoleFunc("warn"))
	console.Set("error", r.makeConsoleFunc("error"))
	console.Set("info", r.makeConsoleFunc("info"))
	r.vm.Set("console", console)

	// Timers are no-ops: preview scripts run once, synchronously.
	noop := func(call goja.FunctionCall) goja.Value { return goja.Undefined() }
	r.vm.Set("setTimeout", noop)
	r.vm.Set("setInterval", noop)

	// An async rejection nobody handles is an error like any other.
	r.vm.SetPromiseRejectionTracker(func(p *goja.Promise, op goja.PromiseRejectionOperation) {
		if op != goja.PromiseRejectionReject {
			return
		}
		r.sink(protocol.ErrorRecord{
			Type:      "unhandledrejection",
			Message:   p.Result().String(),
			Timestamp: time.Now().UnixMilli(),
		})
	})
}

func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		var msg string
		for i, arg := range call.Arguments {
			if i > 0 {
				msg += " "
			}
			msg += arg.String()
		}

		r.consoleMu.Lock()
		r.console = append(r.console, LogEntry{Level: level, Message: msg, Time: time.Now()})
		r.consoleMu.Unlock()

		if level == "error" {
			r.sink(protocol.ErrorRecord{
				Type:      "console.error",
				Message:   msg,
				Timestamp: time.Now().UnixMilli(),
			})
		}
		return goja.Undefined()
	}
}

// BindDocument exposes a minimal read-only document API to scripts.
// Mutation stays on the Go side of the boundary.
func (r *Runtime) BindDocument(doc *Document) {
	document := r.vm.NewObject()
	query := func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.Null()
		}
		sel := doc.Find(call.Arguments[0].String())
		if sel.Length() == 0 {
			return goja.Null()
		}
		return r.vm.ToValue(elementProxy(sel.First()))
	}
	document.Set("querySelector", query)
	document.Set("getElementById", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.Null()
		}
		sel := doc.Find("#" + EscapeSelector(call.Arguments[0].String()))
		if sel.Length() == 0 {
			return goja.Null()
		}
		return r.vm.ToValue(elementProxy(sel.First()))
	})
	r.vm.Set("document", document)
}

// Run executes one script. A thrown error, syntax failure, or timeout
// is converted to an ErrorRecord, sent to the sink, and reported back.
func (r *Runtime) Run(ctx context.Context, source, script string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	done := make(chan struct{})
	go func() {
		select {
		case <-timer.C:
			r.vm.Interrupt("execution timeout exceeded")
		case <-ctx.Done():
			r.vm.Interrupt("context cancelled")
		case <-done:
		}
	}()

	_, err := r.vm.RunScript(source, script)
	close(done)
	r.vm.ClearInterrupt()

	if err == nil {
		return true
	}

	rec := protocol.ErrorRecord{
		Type:      "error",
		Source:    source,
		Message:   err.Error(),
		Timestamp: time.Now().UnixMilli(),
	}
	if ex, ok := err.(*goja.Exception); ok {
		rec.Message = ex.Value().String()
		rec.Stack = ex.String()
	}
	r.logger.Debug("script failed", zap.String("source", source), zap.String("error", rec.Message))
	r.sink(rec)
	return false
}

// RunAll executes every script in order, continuing past failures, and
// returns the failure count.
func (r *Runtime) RunAll(ctx context.Context, scripts []string) int {
	failures := 0
	for i, script := range scripts {
		source := scriptSource(i)
		if !r.Run(ctx, source, script) {
			failures++
		}
	}
	return failures
}

// Console returns a copy of the captured console output.
func (r *Runtime) Console() []LogEntry {
	r.consoleMu.Lock()
	defer r.consoleMu.Unlock()
	return append([]LogEntry(nil), r.console...)
}

func scriptSource(i int) string {
	return fmt.Sprintf("inline-script-%d", i)
}

func elementProxy(el *goquery.Selection) map[string]interface{} {
	id, _ := el.Attr("id")
	class, _ := el.Attr("class")
	return map[string]interface{}{
		"tagName":     strings.ToUpper(goquery.NodeName(el)),
		"id":          id,
		"className":   class,
		"textContent": el.Text(),
		"getAttribute": func(name string) string {
			v, _ := el.Attr(name)
			return v
		},
	}
}
