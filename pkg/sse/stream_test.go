package sse

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader replays a scripted sequence of chunks, one per Read
// call, regardless of how much buffer space the caller offers.
type chunkReader struct {
	chunks []string
	pos    int
	final  error // returned once the script is exhausted
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.chunks) {
		if r.final != nil {
			return 0, r.final
		}
		return 0, io.EOF
	}
	chunk := r.chunks[r.pos]
	r.pos++
	return copy(p, chunk), nil
}

func collect(t *testing.T, s *Stream) []string {
	t.Helper()
	var payloads []string
	for {
		payload, ok := s.Next()
		if !ok {
			return payloads
		}
		payloads = append(payloads, payload)
	}
}

const wire = "data: {\"a\":1}\n\ndata: {\"b\":2}\n\ndata: {\"c\":3}\n\ndata: [DONE]\n\n"

var wirePayloads = []string{`{"a":1}`, `{"b":2}`, `{"c":3}`}

func TestSingleChunkDelivery(t *testing.T) {
	s := New(&chunkReader{chunks: []string{wire}}, nil)
	assert.Equal(t, wirePayloads, collect(t, s))
	assert.NoError(t, s.Err())
}

func TestChunkingEquivalence(t *testing.T) {
	// Splitting the same logical frames at any boundary must yield
	// the same payload sequence as one-shot delivery.
	cases := map[string][]string{
		"byte at a time":    strings.Split(wire, ""),
		"mid delimiter":     {wire[:14], wire[14:]}, // between the two \n of the first delimiter
		"mid prefix":        {"dat", "a: {\"a\":1}\n\ndata: {\"b\":2}\n\ndata: {\"c\":3}\n\ndata: [DONE]\n\n"},
		"frame plus a half": {"data: {\"a\":1}\n\ndata: {\"b\"", ":2}\n\ndata: {\"c\":3}\n\ndata: [DONE]\n\n"},
	}

	for name, chunks := range cases {
		t.Run(name, func(t *testing.T) {
			s := New(&chunkReader{chunks: chunks}, nil)
			assert.Equal(t, wirePayloads, collect(t, s))
			assert.NoError(t, s.Err())
		})
	}
}

func TestMultipleFramesInOneRead(t *testing.T) {
	// Both frames arrive in a single read; the second must surface
	// on the next call without another read being issued.
	r := &chunkReader{chunks: []string{"data: one\n\ndata: two\n\n", "data: [DONE]\n\n"}}
	s := New(r, nil)

	first, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, "one", first)
	assert.Equal(t, 1, r.pos)

	second, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, "two", second)
	assert.Equal(t, 1, r.pos, "buffered frame must not trigger a read")

	_, ok = s.Next()
	assert.False(t, ok)
}

func TestSentinelIsSuppressed(t *testing.T) {
	s := New(&chunkReader{chunks: []string{"data: [DONE]\n\n"}}, nil)

	_, ok := s.Next()
	assert.False(t, ok)
	assert.NoError(t, s.Err())

	// Exhausted stays exhausted.
	_, ok = s.Next()
	assert.False(t, ok)
}

func TestZeroByteReadIsRetried(t *testing.T) {
	s := New(&chunkReader{chunks: []string{"data: ", "", "", "x\n\n", "data: [DONE]\n\n"}}, nil)

	payload, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, "x", payload)
}

func TestReadFailureEndsSilently(t *testing.T) {
	readErr := errors.New("connection reset")
	s := New(&chunkReader{chunks: []string{"data: first\n\n"}, final: readErr}, nil)

	payload, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, "first", payload)

	_, ok = s.Next()
	assert.False(t, ok)
	assert.ErrorIs(t, s.Err(), readErr)
}

// eofWithDataReader returns its whole payload and io.EOF from the
// same Read call, as net readers are allowed to.
type eofWithDataReader struct {
	chunk string
	done  bool
}

func (r *eofWithDataReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	r.done = true
	return copy(p, r.chunk), io.EOF
}

func TestFramesDeliveredAlongsideEOF(t *testing.T) {
	s := New(&eofWithDataReader{chunk: "data: one\n\ndata: two\n\n"}, nil)

	assert.Equal(t, []string{"one", "two"}, collect(t, s))
	assert.ErrorIs(t, s.Err(), io.EOF)
}

func TestEOFBeforeSentinelReportedByErr(t *testing.T) {
	s := New(&chunkReader{chunks: []string{"data: only\n\n"}}, nil)

	_, ok := s.Next()
	require.True(t, ok)
	_, ok = s.Next()
	assert.False(t, ok)
	assert.ErrorIs(t, s.Err(), io.EOF)
}

func TestBufferGrowsPastInitialCapacity(t *testing.T) {
	big := strings.Repeat("y", initialBufSize*3)
	whole := "data: " + big + "\n\ndata: [DONE]\n\n"

	// Feed the oversized frame in small pieces so every Read fits
	// inside the slack the parser offers.
	var chunks []string
	for i := 0; i < len(whole); i += 64 {
		end := i + 64
		if end > len(whole) {
			end = len(whole)
		}
		chunks = append(chunks, whole[i:end])
	}
	s := New(&chunkReader{chunks: chunks}, nil)

	payload, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, big, payload)

	_, ok = s.Next()
	assert.False(t, ok)
	assert.NoError(t, s.Err())
}

func TestMalformedBytesAreSubstituted(t *testing.T) {
	s := New(&chunkReader{chunks: []string{"data: a\xffb\n\ndata: [DONE]\n\n"}}, nil)

	payload, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, "a�b", payload)
}

func TestSpecEndToEndFrames(t *testing.T) {
	frames := "data: {\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":\"\"}}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hi\"}}]}\n\n" +
		"data: [DONE]\n\n"

	s := New(&chunkReader{chunks: []string{frames}}, nil)
	payloads := collect(t, s)
	require.Len(t, payloads, 2)
	assert.Contains(t, payloads[0], `"role":"assistant"`)
	assert.Contains(t, payloads[1], `"Hi"`)
}
