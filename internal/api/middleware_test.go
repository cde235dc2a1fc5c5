package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eddalabs/edda/internal/testutil"
)

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(testutil.QuietLogger())(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestRecoveryAfterHeadersSent(t *testing.T) {
	handler := recoveryMiddleware(testutil.QuietLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			panic("late boom")
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	// Headers already went out; the recovered panic cannot rewrite them.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRequestIDGenerated(t *testing.T) {
	var seen string
	handler := requestIDMiddleware()(
		http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			seen = requestIDFromContext(r.Context())
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatal("expected request ID in context")
	}
	if got := rec.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("header %q does not match context value %q", got, seen)
	}
}

func TestLoggingWriterCapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	lw := &loggingWriter{w: rec}

	lw.WriteHeader(http.StatusTeapot)
	if _, err := lw.Write([]byte("short and stout")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if lw.statusCode != http.StatusTeapot {
		t.Errorf("statusCode = %d, want %d", lw.statusCode, http.StatusTeapot)
	}
	if lw.bytesWritten != int64(len("short and stout")) {
		t.Errorf("bytesWritten = %d", lw.bytesWritten)
	}
}

func TestLoggingWriterDefaultsTo200(t *testing.T) {
	rec := httptest.NewRecorder()
	lw := &loggingWriter{w: rec}

	if _, err := lw.Write([]byte("ok")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if lw.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want 200", lw.statusCode)
	}
}
