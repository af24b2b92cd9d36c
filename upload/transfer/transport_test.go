package transfer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransport_Put(t *testing.T) {
	payload := "hello upload"

	var gotMethod, gotContentType string
	var gotLength int64
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotLength = r.ContentLength
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var lastProgress int64
	transport := NewHTTPTransport(nil)
	err := transport.Put(context.Background(), PutRequest{
		URL:         server.URL,
		ContentType: "text/plain",
		Body:        strings.NewReader(payload),
		Size:        int64(len(payload)),
		OnProgress:  func(uploadedBytes int64) { lastProgress = uploadedBytes },
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "text/plain", gotContentType)
	assert.Equal(t, int64(len(payload)), gotLength)
	assert.Equal(t, payload, string(gotBody))
	assert.Equal(t, int64(len(payload)), lastProgress)
}

func TestHTTPTransport_Put_statusCodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("expired"))
	}))
	defer server.Close()

	transport := NewHTTPTransport(nil)
	err := transport.Put(context.Background(), PutRequest{
		URL:  server.URL,
		Body: strings.NewReader("x"),
		Size: 1,
	})
	require.Error(t, err)

	var statusErr *StatusCodeError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.Equal(t, "expired", statusErr.Body)
}

func TestHTTPTransport_Put_contextCancel(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		// Drain the body so the server notices the client disconnect and
		// cancels the request context; otherwise Close() blocks forever.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	transport := NewHTTPTransport(nil)
	err := transport.Put(ctx, PutRequest{
		URL:  server.URL,
		Body: strings.NewReader("payload"),
		Size: 7,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload aborted")
	assert.True(t, errors.Is(err, context.Canceled))
}
