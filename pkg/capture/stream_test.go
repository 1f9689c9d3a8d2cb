package capture

import (
	"net/http/httptest"
	"testing"
)

func TestStreamBuffersUnderCeiling(t *testing.T) {
	rec := httptest.NewRecorder()
	s := New(rec, 1024, nil)

	if _, err := s.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !s.BufferingEnabled() {
		t.Fatalf("expected buffering enabled")
	}
	if string(s.BufferedBody()) != "hello" {
		t.Fatalf("got %q", s.BufferedBody())
	}
	if rec.Body.String() != "hello" {
		t.Fatalf("client did not receive bytes: %q", rec.Body.String())
	}
}

func TestStreamOverflowDisablesBufferingButKeepsPassthrough(t *testing.T) {
	rec := httptest.NewRecorder()
	s := New(rec, 4, nil)

	payload := []byte("hello world")
	if _, err := s.Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	if s.BufferingEnabled() {
		t.Fatalf("expected buffering disabled after overflow")
	}
	if !s.Overflowed() {
		t.Fatalf("expected overflow flag set")
	}
	if rec.Body.String() != string(payload) {
		t.Fatalf("client should still receive all bytes, got %q", rec.Body.String())
	}
}

func TestStreamExactCeilingCommits(t *testing.T) {
	rec := httptest.NewRecorder()
	s := New(rec, 5, nil)
	if _, err := s.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !s.BufferingEnabled() {
		t.Fatalf("expected buffering still enabled at exact ceiling")
	}
}

func TestStreamOneByteOverDisables(t *testing.T) {
	rec := httptest.NewRecorder()
	s := New(rec, 5, nil)
	if _, err := s.Write([]byte("hello!")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if s.BufferingEnabled() {
		t.Fatalf("expected buffering disabled one byte over ceiling")
	}
}

func TestStreamFirstWriteCallbackFiresOnce(t *testing.T) {
	rec := httptest.NewRecorder()
	calls := 0
	s := New(rec, 1024, func() { calls++ })

	s.Write([]byte("a"))
	s.Write([]byte("b"))
	s.Write([]byte("c"))

	if calls != 1 {
		t.Fatalf("expected callback to fire exactly once, got %d", calls)
	}
}

func TestStreamSpansMultipleSegments(t *testing.T) {
	rec := httptest.NewRecorder()
	s := New(rec, 1024*1024, nil)
	s.segmentSize = 4

	if _, err := s.Write([]byte("0123456789")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := string(s.BufferedBody()); got != "0123456789" {
		t.Fatalf("got %q", got)
	}
	if len(s.segments) != 3 {
		t.Fatalf("expected 3 segments of size 4, got %d", len(s.segments))
	}
}

func TestDisableBufferingDoesNotAffectClientBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	s := New(rec, 1024, nil)
	s.Write([]byte("first"))
	s.DisableBuffering()
	s.Write([]byte("second"))

	if rec.Body.String() != "firstsecond" {
		t.Fatalf("client missing bytes: %q", rec.Body.String())
	}
	if s.BufferingEnabled() {
		t.Fatalf("expected buffering to stay disabled")
	}
}
