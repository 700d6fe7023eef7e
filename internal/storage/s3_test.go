package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeS3 records path-style object requests.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	methods []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods = append(f.methods, r.Method+" "+r.URL.Path)
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStorage(t *testing.T) (*Client, *fakeS3, *httptest.Server) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), srv.URL, "us-east-1", "stories-staging", "access", "secret")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, fake, srv
}

func TestUploadAndDelete(t *testing.T) {
	c, fake, _ := newTestStorage(t)
	ctx := context.Background()
	data := []byte("png-bytes")

	if err := c.Upload(ctx, "staging/abc.png", bytes.NewReader(data), "image/png", int64(len(data))); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if got := fake.objects["/stories-staging/staging/abc.png"]; string(got) != "png-bytes" {
		t.Errorf("stored object = %q", got)
	}

	if err := c.Delete(ctx, "staging/abc.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := fake.objects["/stories-staging/staging/abc.png"]; ok {
		t.Error("object still present after Delete")
	}
}

func TestGeneratePresignedURL(t *testing.T) {
	c, _, srv := newTestStorage(t)

	url, err := c.GeneratePresignedURL("staging/abc.png", 15*time.Minute)
	if err != nil {
		t.Fatalf("GeneratePresignedURL: %v", err)
	}
	if !strings.HasPrefix(url, srv.URL+"/stories-staging/staging/abc.png?") {
		t.Errorf("url = %q", url)
	}
	if !strings.Contains(url, "X-Amz-Signature=") || !strings.Contains(url, "X-Amz-Expires=900") {
		t.Errorf("url is not presigned: %q", url)
	}
}
