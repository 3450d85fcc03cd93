package assets

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wumpus-archiver/archiver/src/config"
)

// fakeS3 understands just enough path-style S3 for PutObject and
// CreateBucket.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var bucket, key string
	path := r.URL.Path[1:]
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			bucket, key = path[:i], path[i+1:]
			break
		}
	}
	if bucket == "" {
		bucket = path
	}

	if key == "" {
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
		return
	}
	if !f.buckets[bucket] {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchBucket</Code><Message>The specified bucket does not exist</Message></Error>`)
		return
	}
	body, _ := io.ReadAll(r.Body)
	f.objects[bucket+"/"+key] = string(body)
	w.Header().Set("ETag", `"abc"`)
	w.WriteHeader(http.StatusOK)
}

func TestS3Sink(t *testing.T) {
	fake := &fakeS3{buckets: map[string]bool{}, objects: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	sink, err := NewS3Sink(ctx, config.S3Config{
		Endpoint:  srv.URL,
		Region:    "us-east-1",
		Bucket:    "archive",
		AccessKey: "key",
		SecretKey: "secret",
	})
	require.NoError(t, err)

	// The first upload creates the bucket.
	require.NoError(t, sink.Put(ctx, "10/900_a.png", []byte("png"), "image/png"))
	require.NoError(t, sink.Put(ctx, "10/901_b.txt", []byte("txt"), ""))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.True(t, fake.buckets["archive"])
	assert.Equal(t, "png", fake.objects["archive/10/900_a.png"])
	assert.Equal(t, "txt", fake.objects["archive/10/901_b.txt"])
}
