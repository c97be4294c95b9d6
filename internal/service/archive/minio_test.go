package archive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"dogfinder/internal/config"
)

// fakeS3 answers the handful of S3 calls the archiver makes.
type fakeS3 struct {
	mu       sync.Mutex
	buckets  map[string]bool
	objects  map[string][]byte
	requests []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	bucket := parts[0]

	switch {
	case r.Method == http.MethodHead && len(parts) == 1:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && len(parts) == 1:
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && len(parts) == 2:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func newTestArchive(t *testing.T) (*Minio, *fakeS3) {
	t.Helper()
	fake := &fakeS3{buckets: map[string]bool{}, objects: map[string][]byte{}}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	m, err := NewMinio(config.MinioConfig{
		Endpoint:  strings.TrimPrefix(server.URL, "http://"),
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "dogfinder",
		Region:    "us-east-1",
	})
	if err != nil {
		t.Fatalf("NewMinio failed: %v", err)
	}
	return m, fake
}

func TestMinio_EnsureBucketCreatesOnce(t *testing.T) {
	m, fake := newTestArchive(t)
	ctx := context.Background()

	if err := m.EnsureBucket(ctx); err != nil {
		t.Fatalf("EnsureBucket failed: %v", err)
	}
	if err := m.EnsureBucket(ctx); err != nil {
		t.Fatalf("Second EnsureBucket failed: %v", err)
	}

	creates := 0
	for _, r := range fake.requests {
		if r == "PUT /dogfinder" {
			creates++
		}
	}
	if creates != 1 {
		t.Errorf("Expected bucket to be created once, got %d (%v)", creates, fake.requests)
	}
}

func TestMinio_Upload(t *testing.T) {
	m, fake := newTestArchive(t)
	data := []byte{0xFF, 0xD8, 0x10, 0xFF, 0xD9}

	url, err := m.Upload(context.Background(), "scans/s1/frame.jpg", data)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if !strings.HasSuffix(url, "/dogfinder/scans/s1/frame.jpg") {
		t.Errorf("Unexpected object URL %s", url)
	}
	// The body may arrive chunk-signed over plain HTTP, so only check it landed.
	if got, ok := fake.objects["/dogfinder/scans/s1/frame.jpg"]; !ok || len(got) < len(data) {
		t.Errorf("Expected object to be stored, got %d bytes", len(got))
	}
}
