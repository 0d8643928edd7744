package errbuf

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftforge/preview/internal/protocol"
)

func TestKeepsMostRecentFifty(t *testing.T) {
	b := New(50)
	for i := 0; i < 120; i++ {
		b.Capture(protocol.ErrorRecord{Message: fmt.Sprintf("err-%d", i)})
	}

	snap := b.Snapshot()
	require.Len(t, snap, 50)

	// Ring semantics: oldest dropped first, newest always present.
	assert.Equal(t, "err-70", snap[0].Message)
	assert.Equal(t, "err-119", snap[49].Message)
}

func TestSnapshotIsACopy(t *testing.T) {
	b := New(10)
	b.Capture(protocol.ErrorRecord{Message: "original"})

	snap := b.Snapshot()
	snap[0].Message = "mutated"

	assert.Equal(t, "original", b.Snapshot()[0].Message)
}

func TestClear(t *testing.T) {
	b := New(10)
	b.Capture(protocol.ErrorRecord{Message: "x"})
	b.Capture(protocol.ErrorRecord{Message: "y"})
	require.Equal(t, 2, b.Len())

	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Snapshot())
}

func TestZeroCapacityUsesDefault(t *testing.T) {
	b := New(0)
	for i := 0; i < 60; i++ {
		b.Capture(protocol.ErrorRecord{})
	}
	assert.Equal(t, DefaultCapacity, b.Len())
}
