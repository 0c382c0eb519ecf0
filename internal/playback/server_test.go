package playback

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer() *Server {
	return NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestServeBlob_Full(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/media/1", nil)
	rec := httptest.NewRecorder()

	if err := s.ServeBlob(rec, req, "video/mp4", []byte("0123456789")); err != nil {
		t.Fatalf("ServeBlob() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "0123456789" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("Accept-Ranges") != "bytes" || rec.Header().Get("Content-Type") != "video/mp4" {
		t.Errorf("headers = %v", rec.Header())
	}
}

func TestServeBlob_Partial(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/media/1", nil)
	req.Header.Set("Range", "bytes=2-5")
	rec := httptest.NewRecorder()

	if err := s.ServeBlob(rec, req, "", []byte("0123456789")); err != nil {
		t.Fatalf("ServeBlob() error = %v", err)
	}
	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if rec.Body.String() != "2345" {
		t.Errorf("body = %q, want 2345", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 2-5/10" {
		t.Errorf("Content-Range = %s", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Errorf("Content-Type = %s", got)
	}
}

func TestServeBlob_Unsatisfiable(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/media/1", nil)
	req.Header.Set("Range", "bytes=50-")
	rec := httptest.NewRecorder()

	if err := s.ServeBlob(rec, req, "audio/mpeg", []byte("abc")); err != nil {
		t.Fatalf("ServeBlob() error = %v", err)
	}
	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes */3" {
		t.Errorf("Content-Range = %s", got)
	}
}
