package transcriptclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"meridian/internal/domain"
)

func TestClient_Fetch_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transcripts/abc12345678", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"title": "A Talk",
			"channelName": "Some Channel",
			"description": "desc",
			"transcript": [{"start": 0, "end": 1.5, "text": "hello"}]
		}`))
	}))
	defer ts.Close()

	c := New(ts.URL, "test-token")
	result, err := c.Fetch(context.Background(), "abc12345678")
	require.NoError(t, err)
	require.Equal(t, "A Talk", result.Title)
	require.Len(t, result.Transcript, 1)
	require.Equal(t, "hello", result.Transcript[0].Text)
}

func TestClient_Fetch_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	c := New(ts.URL, "test-token")
	_, err := c.Fetch(context.Background(), "missing12345")
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestClient_Fetch_EmptyTranscriptTreatedAsNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"title": "Empty", "transcript": []}`))
	}))
	defer ts.Close()

	c := New(ts.URL, "test-token")
	_, err := c.Fetch(context.Background(), "empty1234567")
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestClient_Fetch_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer ts.Close()

	c := New(ts.URL, "test-token")
	_, err := c.Fetch(context.Background(), "err123456789")
	require.Error(t, err)
	require.False(t, errors.Is(err, domain.ErrNotFound))
}
