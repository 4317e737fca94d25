// Package sse reconstructs server-sent event frames from an
// arbitrarily chunked byte stream.
package sse

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/popup-gpt/popup-gpt/pkg/logger"
)

const (
	initialBufSize = 4096
	minReadSlack   = 128

	// Every frame opens with the literal field name; the payload
	// starts right after it.
	framePrefix  = "data: "
	doneSentinel = "[DONE]"
)

var frameDelim = []byte("\n\n")

// Stream yields the payload of each event frame read from a blocking
// byte source. Frames are delimited by a blank line and may be split
// at any byte boundary across reads; a frame whose payload is the
// terminal sentinel ends the stream without being yielded.
//
// Stream is forward-only and not safe for concurrent use.
type Stream struct {
	source io.Reader
	buf    []byte
	filled int
	done   bool
	err    error
	log    logger.Logger
}

// New returns a Stream reading from source. A nil log discards the
// read-failure side channel.
func New(source io.Reader, log logger.Logger) *Stream {
	if log == nil {
		log = logger.Nop()
	}
	return &Stream{
		source: source,
		buf:    make([]byte, initialBufSize),
		log:    log,
	}
}

// Next returns the next frame payload. ok is false once the stream is
// exhausted, either by the terminal sentinel or by a read failure;
// Err distinguishes the two after the fact.
func (s *Stream) Next() (payload string, ok bool) {
	if s.done {
		return "", false
	}

	for {
		// Deliver frames already sitting in the buffer before
		// touching the source again; a single read may have
		// carried more than one complete frame.
		if payload, found := s.takeFrame(); found {
			if payload == doneSentinel {
				s.done = true
				return "", false
			}
			return payload, true
		}

		if s.err != nil {
			// End of sequence. Callers cannot tell a broken
			// connection from normal completion here; Err
			// carries the distinction.
			s.done = true
			if s.err == io.EOF {
				s.log.Debug("event stream closed before terminal sentinel")
			} else {
				s.log.Error("event stream read failed", "error", s.err.Error())
			}
			return "", false
		}

		if len(s.buf)-s.filled < minReadSlack {
			grown := make([]byte, len(s.buf)*2)
			copy(grown, s.buf[:s.filled])
			s.buf = grown
		}

		// A read may deliver final bytes together with its error;
		// the error is honored only after the buffer runs dry of
		// frames. A zero-byte read without error is retried.
		n, err := s.source.Read(s.buf[s.filled:])
		s.filled += n
		if err != nil {
			s.err = err
		}
	}
}

// takeFrame extracts the first complete frame from the filled region
// and compacts the remainder to the front of the buffer.
func (s *Stream) takeFrame() (string, bool) {
	split := bytes.Index(s.buf[:s.filled], frameDelim)
	if split < 0 {
		return "", false
	}

	start := len(framePrefix)
	if start > split {
		start = split
	}
	payload := strings.ToValidUTF8(string(s.buf[start:split]), string(utf8.RuneError))

	consumed := split + len(frameDelim)
	copy(s.buf, s.buf[consumed:s.filled])
	s.filled -= consumed

	return payload, true
}

// Err returns the read failure that ended the stream, nil when it
// ended with the terminal sentinel. Meaningful once Next has reported
// exhaustion. io.EOF is reported as-is: the source closing without a
// sentinel is still an abnormal end of this protocol.
func (s *Stream) Err() error {
	return s.err
}
