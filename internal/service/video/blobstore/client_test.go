package blobstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFramePath(t *testing.T) {
	require.Equal(t, "slides/abc12345678/3-first.webp", FramePath("abc12345678", 3, "first"))
}

func TestClient_Upload(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	c := New(ts.URL, "tok", "https://public.example")
	url, err := c.Upload(context.Background(), "slides/vid/0-first.webp", []byte("data"), "image/webp")
	require.NoError(t, err)
	require.Equal(t, "https://public.example/slides/vid/0-first.webp", url)
	require.Equal(t, "/slides/vid/0-first.webp", gotPath)
}
