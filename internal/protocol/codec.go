package protocol

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrMalformed   = errors.New("malformed envelope")
)

// Encode serializes a message into a flat envelope with the type
// discriminant merged in.
func Encode(m Message) ([]byte, error) {
	raw, err := sonic.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}

	var fields map[string]any
	if err := sonic.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields["type"] = string(m.Kind())

	return sonic.Marshal(fields)
}

// Decode parses an envelope into its concrete message type. Unknown types
// and malformed payloads return an error so handlers can fail closed.
func Decode(data []byte) (Message, error) {
	var probe struct {
		Type Type `json:"type"`
	}
	if err := sonic.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var m Message
	switch probe.Type {
	case TypePreviewReady:
		m = &PreviewReady{}
	case TypePreviewError:
		m = &PreviewError{}
	case TypeGetPreviewErrors:
		m = &GetPreviewErrors{}
	case TypePreviewErrorsResponse:
		m = &PreviewErrorsResponse{}
	case TypeClearPreviewErrors:
		m = &ClearPreviewErrors{}
	case TypeIntentTrigger:
		m = &IntentTrigger{}
	case TypeIntentResult:
		m = &IntentResult{}
	case TypeNavPageGenerate:
		m = &NavPageGenerate{}
	case TypeNavPageReady:
		m = &NavPageReady{}
	case TypeNavPageError:
		m = &NavPageError{}
	case TypeNavPageSwitch:
		m = &NavPageSwitch{}
	case TypePageManifestSync:
		m = &PageManifestSync{}
	case TypeIntentCommand:
		m = &IntentCommand{}
	case TypeIntentCommandResult:
		m = &IntentCommandResult{}
	case TypeResearchOpen:
		m = &ResearchOpen{}
	case TypePreviewReloadRequest:
		m = &PreviewReloadRequest{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, probe.Type)
	}

	if err := sonic.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, probe.Type, err)
	}
	return m, nil
}
