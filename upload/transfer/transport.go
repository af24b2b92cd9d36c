package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusCodeError is returned by the HTTP transport when the PUT completes
// with a status outside [200, 300).
type StatusCodeError struct {
	StatusCode int
	Body       string
}

func (e *StatusCodeError) Error() string {
	return fmt.Sprintf("upload failed with status %d: %s", e.StatusCode, e.Body)
}

// HTTPTransport uploads payloads with plain HTTP PUT requests.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a transport around the given client.
// If client is nil, a default client optimized for uploads is created.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &HTTPTransport{client: client}
}

// DefaultHTTPClient creates an HTTP client optimized for long-running uploads.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		// No overall timeout: transfers are aborted via context.
		Timeout: 0,
		Transport: &http.Transport{
			MaxIdleConns:        50,
			MaxConnsPerHost:     20,
			IdleConnTimeout:     10 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			Proxy:               http.ProxyFromEnvironment,
		},
	}
}

// Put uploads the payload in a single attempt. The response body is not
// interpreted beyond the error snippet on non-2xx statuses.
func (t *HTTPTransport) Put(ctx context.Context, putReq PutRequest) error {
	var body io.Reader = putReq.Body
	if putReq.OnProgress != nil {
		body = &countingReader{reader: putReq.Body, onProgress: putReq.OnProgress}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, putReq.URL, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", putReq.ContentType)
	req.ContentLength = putReq.Size

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("upload aborted: %w", ctx.Err())
		}
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errorBody := make([]byte, 1024)
		n, _ := io.ReadAtLeast(resp.Body, errorBody, 1)
		return &StatusCodeError{StatusCode: resp.StatusCode, Body: string(errorBody[:n])}
	}

	return nil
}

// countingReader reports cumulative bytes read from the wrapped reader.
type countingReader struct {
	reader     io.Reader
	read       int64
	onProgress func(uploadedBytes int64)
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.read += int64(n)
		r.onProgress(r.read)
	}
	return n, err
}
