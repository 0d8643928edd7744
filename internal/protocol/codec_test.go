package protocol

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCarriesWireFieldNames(t *testing.T) {
	data, err := Encode(&NavPageGenerate{
		RequestID: "req_01",
		PageName:  "pricing",
		NavLabel:  "Pricing",
	})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, sonic.Unmarshal(data, &fields))

	// Field names are the wire contract.
	assert.Equal(t, "NAV_PAGE_GENERATE", fields["type"])
	assert.Equal(t, "req_01", fields["requestId"])
	assert.Equal(t, "pricing", fields["pageName"])
	assert.Equal(t, "Pricing", fields["navLabel"])
}

func TestDecodeRoundTrip(t *testing.T) {
	data, err := Encode(&PreviewErrorsResponse{
		RequestID: "req_02",
		Errors: []ErrorRecord{
			{Type: "script-error", Message: "boom", Line: 3, Col: 7},
		},
	})
	require.NoError(t, err)

	m, err := Decode(data)
	require.NoError(t, err)

	resp, ok := m.(*PreviewErrorsResponse)
	require.True(t, ok)
	assert.Equal(t, "req_02", resp.RequestID)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "boom", resp.Errors[0].Message)
}

func TestDecodeUnknownTypeFailsClosed(t *testing.T) {
	_, err := Decode([]byte(`{"type":"TOTALLY_NOVEL","requestId":"x"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte(`{"type":`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeEmptyPayloadMessage(t *testing.T) {
	data, err := Encode(&ClearPreviewErrors{})
	require.NoError(t, err)

	m, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypeClearPreviewErrors, m.Kind())
}
