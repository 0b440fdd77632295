package gcs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	s := &BlobStore{prefix: "exports"}
	assert.Equal(t, "exports/results.json", s.ObjectName("/results.json"))
	s = &BlobStore{}
	assert.Equal(t, "results.json", s.ObjectName("results.json"))
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"bucket":"creator-exports","name":"exports/results.json","size":"2"}`)
	}))
	t.Cleanup(srv.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(srv.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "creator-exports", Prefix: "exports/"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "results.json", "application/json", strings.NewReader(`[{"username":"alpha"}]`))
	require.NoError(t, err)
	assert.Equal(t, "gs://creator-exports/exports/results.json", uri)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, bodies)
	assert.Contains(t, strings.Join(bodies, "\n"), `[{"username":"alpha"}]`)
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	s := &BlobStore{bucket: "b"}
	_, err := s.PutObject(context.Background(), " ", "application/json", strings.NewReader("[]"))
	require.Error(t, err)
}
