// Package id provides centralized ID generation for the preview engine.
//
// Correlation IDs pair asynchronous requests with their eventual responses
// across the sandbox boundary; matching is done purely by ID comparison,
// never by arrival order. ULIDs keep them k-sortable so interleaved logs
// from both sides of the boundary read in request order.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// PreviewID identifies one sandbox instantiation.
type PreviewID string

// RequestID correlates a cross-boundary request with its response.
type RequestID string

// OverlayToken identifies a pending overlay workflow completion.
type OverlayToken string

const (
	PreviewPrefix = "pv"
	RequestPrefix = "req"
	OverlayPrefix = "ovl"
)

// Generator generates prefixed ULIDs.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by cryptographically secure entropy.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewPreviewID generates a new preview instance ID.
func NewPreviewID() PreviewID {
	return PreviewID(Default().GenerateWithPrefix(PreviewPrefix))
}

// NewRequestID generates a new correlation ID.
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewOverlayToken generates a new overlay completion token.
func NewOverlayToken() OverlayToken {
	return OverlayToken(Default().GenerateWithPrefix(OverlayPrefix))
}

func (id PreviewID) String() string    { return string(id) }
func (id RequestID) String() string    { return string(id) }
func (id OverlayToken) String() string { return string(id) }

// IsValid reports whether a prefixed ID carries a parseable ULID.
func IsValid(id string) bool {
	_, raw, found := strings.Cut(id, "_")
	if !found {
		raw = id
	}
	_, err := ulid.Parse(raw)
	return err == nil
}

// Timestamp extracts the creation time from a prefixed ID.
func Timestamp(id string) (time.Time, error) {
	_, raw, found := strings.Cut(id, "_")
	if !found {
		raw = id
	}
	parsed, err := ulid.Parse(raw)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
