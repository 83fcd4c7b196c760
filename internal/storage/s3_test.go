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

	"github.com/google/uuid"
)

func TestMediaKey(t *testing.T) {
	owner := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	capsule := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	at := time.UnixMilli(1700000000123)

	tests := []struct {
		name     string
		fileName string
		wantTail string
	}{
		{"plain", "photo.png", "1700000000123-photo.png"},
		{"spaces", "summer trip.mov", "1700000000123-summer_trip.mov"},
		{"path traversal", "../../etc/passwd", "1700000000123-passwd"},
		{"windows path", `C:\Users\me\voice.m4a`, "1700000000123-voice.m4a"},
		{"empty", "", "1700000000123-file"},
	}

	prefix := owner.String() + "/" + capsule.String() + "/"
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MediaKey(owner, capsule, at, tt.fileName)
			if got != prefix+tt.wantTail {
				t.Errorf("MediaKey(%q) = %q, want %q", tt.fileName, got, prefix+tt.wantTail)
			}
		})
	}
}

// fakeS3 records PUT requests and answers like a path-style S3 endpoint.
type fakeS3 struct {
	mu   sync.Mutex
	puts map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.puts[r.URL.Path] = body
		f.mu.Unlock()
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodPost:
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><DeleteResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"></DeleteResult>`)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func newTestStorage(t *testing.T) (*S3Storage, *fakeS3) {
	t.Helper()
	fake := &fakeS3{puts: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := NewS3Storage(context.Background(), Options{
		Bucket:    "capsule-media",
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		PathStyle: true,
		AccessKey: "test",
		SecretKey: "test",
	})
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}
	return s, fake
}

func TestPutAndDelete(t *testing.T) {
	s, fake := newTestStorage(t)
	ctx := context.Background()

	data := []byte("hello capsule")
	if err := s.Put(ctx, "u/c/1-a.txt", bytes.NewReader(data), int64(len(data)), "text/plain"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, ok := fake.puts["/capsule-media/u/c/1-a.txt"]; !ok {
		t.Errorf("object not uploaded, got paths %v", fake.puts)
	}

	failed, err := s.Delete(ctx, []string{"u/c/1-a.txt"})
	if err != nil || len(failed) != 0 {
		t.Errorf("Delete() = %v, %v; want no failures", failed, err)
	}
}

func TestPresignGet(t *testing.T) {
	s, _ := newTestStorage(t)

	url, err := s.PresignGet(context.Background(), "u/c/1-a.png", 15*time.Minute)
	if err != nil {
		t.Fatalf("PresignGet() error = %v", err)
	}
	for _, want := range []string{"/capsule-media/u/c/1-a.png", "X-Amz-Signature=", "X-Amz-Expires=900"} {
		if !strings.Contains(url, want) {
			t.Errorf("presigned url %q missing %q", url, want)
		}
	}
}
