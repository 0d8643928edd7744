package host

import (
	_ "embed"
	"fmt"

	"github.com/goccy/go-yaml"
)

//go:embed overlays.yaml
var overlaysYAML []byte

// Overlay describes a host-rendered dialog that satisfies an intent
// without a backend round trip. The outer UI renders it; the sandbox
// only ever sees the completion result.
type Overlay struct {
	Intent  string `yaml:"intent"`
	Overlay string `yaml:"overlay"`
	Title   string `yaml:"title"`
}

type overlayFile struct {
	Overlays []Overlay `yaml:"overlays"`
}

// OverlayTable routes intents to overlays ahead of backend execution.
type OverlayTable struct {
	byIntent map[string]Overlay
}

// LoadOverlayTable parses the embedded overlay routing table.
func LoadOverlayTable() (*OverlayTable, error) {
	var file overlayFile
	if err := yaml.Unmarshal(overlaysYAML, &file); err != nil {
		return nil, fmt.Errorf("parse overlay table: %w", err)
	}
	byIntent := make(map[string]Overlay, len(file.Overlays))
	for _, o := range file.Overlays {
		byIntent[o.Intent] = o
	}
	return &OverlayTable{byIntent: byIntent}, nil
}

// Lookup returns the overlay routed for an intent, if any.
func (t *OverlayTable) Lookup(intentName string) (Overlay, bool) {
	o, ok := t.byIntent[intentName]
	return o, ok
}

// Len reports the number of routed intents.
func (t *OverlayTable) Len() int {
	return len(t.byIntent)
}
