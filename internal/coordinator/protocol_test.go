package coordinator

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, TagAttach, Attach{WorkerID: "worker-1"}))

	tag, payload, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, TagAttach, tag)

	var got Attach
	require.NoError(t, Decode(payload, &got))
	assert.Equal(t, "worker-1", got.WorkerID)
}

func TestFrame_LargePayloadCompressed(t *testing.T) {
	var buf bytes.Buffer
	big := StatsDelta{PerName: []NameDelta{{Name: strings.Repeat("x", gzipThreshold*2)}}}
	require.NoError(t, WriteFrame(&buf, TagStatsDelta, big))

	tag, payload, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, TagStatsDelta, tag)

	var got StatsDelta
	require.NoError(t, Decode(payload, &got))
	require.Len(t, got.PerName, 1)
	assert.Equal(t, big.PerName[0].Name, got.PerName[0].Name)
}

func TestFrame_UnknownTagIsProtocolError(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 1})
	buf.Write([]byte{99})

	_, _, err := ReadFrame(&buf)
	assert.Error(t, err)
}

func TestDivideUsers_Balanced(t *testing.T) {
	counts := divideUsers(1000, 4)
	require.Len(t, counts, 4)
	total := 0
	for _, c := range counts {
		assert.InDelta(t, 250, c, 60)
		total += c
	}
	assert.Equal(t, 1000, total)
}
