package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeS3 is a minimal path-style S3 endpoint keeping objects in memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	puts    []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = string(body)
		f.puts = append(f.puts, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead, http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			if r.Method == http.MethodGet {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusNotFound)
				io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
				return
			}
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			io.WriteString(w, body)
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestS3Adapter(t *testing.T, prefix string) (*S3Adapter, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	adapter, err := NewS3Adapter(context.Background(), S3Options{
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		Bucket:          "books",
		Prefix:          prefix,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	if err != nil {
		t.Fatalf("NewS3Adapter() error = %v", err)
	}
	return adapter, fake
}

func TestS3Adapter_Put(t *testing.T) {
	adapter, fake := newTestS3Adapter(t, "/published/")
	ctx := context.Background()

	if err := adapter.Put(ctx, "OEBPS/ch1.xhtml", strings.NewReader("<html/>")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if len(fake.puts) != 1 || fake.puts[0] != "/books/published/OEBPS/ch1.xhtml" {
		t.Errorf("PUT paths = %v", fake.puts)
	}
}

func TestS3Adapter_ExistsAndGet(t *testing.T) {
	adapter, fake := newTestS3Adapter(t, "")
	fake.objects["/books/OEBPS/style.css"] = "body{}"
	ctx := context.Background()

	exists, err := adapter.Exists(ctx, "OEBPS/style.css")
	if err != nil || !exists {
		t.Errorf("Exists() = %v, %v, want true", exists, err)
	}
	exists, err = adapter.Exists(ctx, "OEBPS/missing.css")
	if err != nil || exists {
		t.Errorf("Exists(missing) = %v, %v, want false", exists, err)
	}

	rc, err := adapter.Get(ctx, "OEBPS/style.css")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "body{}" {
		t.Errorf("Get() = %q", data)
	}

	if _, err := adapter.Get(ctx, "OEBPS/missing.css"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestS3Adapter_ObjectKey(t *testing.T) {
	tests := []struct {
		prefix string
		key    string
		want   string
	}{
		{"", "OEBPS/a.xhtml", "OEBPS/a.xhtml"},
		{"books/1", "OEBPS/a.xhtml", "books/1/OEBPS/a.xhtml"},
		{"books", "/mimetype", "books/mimetype"},
	}
	for _, tt := range tests {
		s := &S3Adapter{prefix: tt.prefix}
		if got := s.objectKey(tt.key); got != tt.want {
			t.Errorf("objectKey(%q) with prefix %q = %q, want %q", tt.key, tt.prefix, got, tt.want)
		}
	}
}
