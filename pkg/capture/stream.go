// Package capture implements a write-through buffering wrapper around an
// http.ResponseWriter, so a downstream response can be captured for later
// reuse while still streaming to the original client.
//
// Grounded on always-cache's pkg/response-writer-tee (ResponseSaver) and
// response-saver.go, generalized from "buffer the entire response forever"
// to "buffer up to maxBodySize, then keep teeing to the client but drop the
// ability to commit" and from a single growing bytes.Buffer to a segmented
// byte sequence sized in fixed segments.
package capture

import (
	"bytes"
	"net/http"
)

// DefaultSegmentSize is the fixed segment size buffered writes are chunked
// into.
const DefaultSegmentSize = 80 * 1024

// DefaultMaxBodySize is the fallback per-response capture ceiling.
const DefaultMaxBodySize = 64 * 1024

// Stream wraps an http.ResponseWriter, teeing every write to the underlying
// sink while additionally buffering bytes into fixed-size segments up to
// maxBodySize. Writes to the underlying sink are never suppressed, even
// after buffering is disabled: the client always receives the full
// response.
type Stream struct {
	http.ResponseWriter

	maxBodySize int
	segmentSize int

	segments   [][]byte
	total      int
	buffering  bool
	overflowed bool

	headerWritten bool
	statusCode    int

	started      bool
	onFirstWrite func()
}

// New creates a Stream around w with the given ceiling. onFirstWrite, if
// non-nil, fires exactly once, on the first byte written through the
// stream.
func New(w http.ResponseWriter, maxBodySize int, onFirstWrite func()) *Stream {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	return &Stream{
		ResponseWriter: w,
		maxBodySize:    maxBodySize,
		segmentSize:    DefaultSegmentSize,
		buffering:      true,
		onFirstWrite:   onFirstWrite,
	}
}

// WriteHeader implements http.ResponseWriter, recording the status code so
// it is available to callers finalizing cache metadata after the fact.
func (s *Stream) WriteHeader(statusCode int) {
	if s.headerWritten {
		return
	}
	s.headerWritten = true
	s.statusCode = statusCode
	s.ResponseWriter.WriteHeader(statusCode)
}

// StatusCode returns the status code written so far, defaulting to 200 as
// net/http itself does when a handler writes a body without an explicit
// WriteHeader call.
func (s *Stream) StatusCode() int {
	if !s.headerWritten {
		return http.StatusOK
	}
	return s.statusCode
}

// Write implements http.ResponseWriter. All bytes reach the underlying sink
// unconditionally; buffering is a side effect that can be silently disabled
// once maxBodySize would be exceeded.
func (s *Stream) Write(p []byte) (int, error) {
	if !s.headerWritten {
		s.WriteHeader(http.StatusOK)
	}
	if !s.started {
		s.started = true
		if s.onFirstWrite != nil {
			s.onFirstWrite()
		}
	}

	n, err := s.ResponseWriter.Write(p)

	if s.buffering {
		if s.total+len(p) > s.maxBodySize {
			s.buffering = false
			s.overflowed = true
			s.segments = nil
			s.total = 0
		} else {
			s.appendToBuffer(p)
		}
	}

	return n, err
}

func (s *Stream) appendToBuffer(p []byte) {
	for len(p) > 0 {
		if len(s.segments) == 0 || len(s.segments[len(s.segments)-1]) == s.segmentSize {
			s.segments = append(s.segments, make([]byte, 0, s.segmentSize))
		}
		last := s.segments[len(s.segments)-1]
		room := s.segmentSize - len(last)
		n := len(p)
		if n > room {
			n = room
		}
		s.segments[len(s.segments)-1] = append(last, p[:n]...)
		p = p[n:]
		s.total += n
	}
}

// BufferingEnabled reports whether the stream is still capable of producing
// a committable buffered body.
func (s *Stream) BufferingEnabled() bool {
	return s.buffering
}

// Overflowed reports whether buffering was disabled because maxBodySize was
// exceeded.
func (s *Stream) Overflowed() bool {
	return s.overflowed
}

// BufferedBody returns the bytes buffered so far, concatenated in write
// order. Empty once buffering has been disabled.
func (s *Stream) BufferedBody() []byte {
	if !s.buffering {
		return nil
	}
	var buf bytes.Buffer
	buf.Grow(s.total)
	for _, seg := range s.segments {
		buf.Write(seg)
	}
	return buf.Bytes()
}

// DisableBuffering discards the buffer without affecting bytes already sent
// to the client. Used when the response turns out not to be cacheable after
// capture has started.
func (s *Stream) DisableBuffering() {
	s.buffering = false
	s.segments = nil
	s.total = 0
}
