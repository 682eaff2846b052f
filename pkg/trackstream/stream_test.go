package trackstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

var trackBody = []byte("0123456789abcdefghij")

// rangeServer honors Range requests with 206 responses.
func rangeServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		if rng == "" {
			w.Header().Set("Content-Length", strconv.Itoa(len(trackBody)))
			w.WriteHeader(http.StatusOK)
			w.Write(trackBody)
			return
		}
		var offset int
		if _, err := fmt.Sscanf(rng, "bytes=%d-", &offset); err != nil {
			t.Errorf("unparseable range header %q", rng)
		}
		w.Header().Set("Content-Range",
			fmt.Sprintf("bytes %d-%d/%d", offset, len(trackBody)-1, len(trackBody)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(trackBody[offset:])
	}))
}

func TestOpenFromStart(t *testing.T) {
	server := rangeServer(t)
	defer server.Close()

	src := New(Config{})
	rc, size, err := src.Open(context.Background(), server.URL, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	if size != int64(len(trackBody)) {
		t.Errorf("size %d, want %d", size, len(trackBody))
	}
	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if string(body) != string(trackBody) {
		t.Errorf("body %q", body)
	}
	if got := src.BytesRead.Load(); got != int64(len(trackBody)) {
		t.Errorf("BytesRead %d, want %d", got, len(trackBody))
	}
}

func TestOpenAtOffsetWithRangeSupport(t *testing.T) {
	server := rangeServer(t)
	defer server.Close()

	src := New(Config{})
	rc, size, err := src.Open(context.Background(), server.URL, 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	if size != int64(len(trackBody)) {
		t.Errorf("size from Content-Range %d, want %d", size, len(trackBody))
	}
	body, _ := io.ReadAll(rc)
	if string(body) != string(trackBody[10:]) {
		t.Errorf("body %q, want %q", body, trackBody[10:])
	}
}

func TestOpenAtOffsetWithoutRangeSupport(t *testing.T) {
	// Server ignores Range and replies 200 with the full body; the
	// source must still deliver from the requested offset.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(trackBody)))
		w.WriteHeader(http.StatusOK)
		w.Write(trackBody)
	}))
	defer server.Close()

	src := New(Config{})
	rc, size, err := src.Open(context.Background(), server.URL, 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	if size != int64(len(trackBody)) {
		t.Errorf("size %d, want %d", size, len(trackBody))
	}
	body, _ := io.ReadAll(rc)
	if string(body) != string(trackBody[10:]) {
		t.Errorf("body %q, want %q", body, trackBody[10:])
	}
}

func TestOpenStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone fishing", http.StatusNotFound)
	}))
	defer server.Close()

	src := New(Config{})
	_, _, err := src.Open(context.Background(), server.URL, 0)
	if err == nil {
		t.Fatal("expected an error for 404")
	}

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error %T, want *StatusError", err)
	}
	if se.HTTPStatus() != http.StatusNotFound {
		t.Errorf("status %d, want 404", se.HTTPStatus())
	}
	if !strings.Contains(se.Error(), "404") {
		t.Errorf("message %q does not name the status", se.Error())
	}
}

func TestOpenSendsIdentityHeaders(t *testing.T) {
	var gotAgent, gotRange string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		gotRange = r.Header.Get("Range")
		w.Write(trackBody)
	}))
	defer server.Close()

	src := New(Config{UserAgent: "deadstream/2.0"})
	rc, _, err := src.Open(context.Background(), server.URL, 5)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rc.Close()

	if gotAgent != "deadstream/2.0" {
		t.Errorf("User-Agent %q", gotAgent)
	}
	if gotRange != "bytes=5-" {
		t.Errorf("Range %q", gotRange)
	}
}

func TestTotalFromContentRange(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"bytes 1000-4999/5000", 5000},
		{"bytes 0-0/1", 1},
		{"bytes 1000-4999/*", -1},
		{"", -1},
		{"garbage", -1},
	}
	for _, tc := range cases {
		if got := totalFromContentRange(tc.in); got != tc.want {
			t.Errorf("totalFromContentRange(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
