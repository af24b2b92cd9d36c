package network

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSlotRequest() SlotRequest {
	return SlotRequest{
		PolicyKey: "gallery",
		Files: []FileMeta{
			{Filename: "a.png", MIMEType: "image/png", SizeBytes: 1024},
			{Filename: "b.jpg", MIMEType: "image/jpeg", SizeBytes: 2048},
		},
	}
}

func TestAPIClient_RequestSlots(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody SlotRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		response := []UploadSlot{
			{StorageKey: "gallery/a.png", WriteURL: "https://storage.example.com/a", ExpiresIn: 90},
			{StorageKey: "gallery/b.jpg", WriteURL: "https://storage.example.com/b", ExpiresIn: 90},
		}
		require.NoError(t, json.NewEncoder(w).Encode(response))
	}))
	defer server.Close()

	client := NewAPIClient(nil, server.URL, "token-123", log.NewLogger())
	slots, err := client.RequestSlots(context.Background(), testSlotRequest())
	require.NoError(t, err)

	assert.Equal(t, "/uploads/presign", gotPath)
	assert.Equal(t, "Bearer token-123", gotAuth)
	assert.Equal(t, "gallery", gotBody.PolicyKey)
	require.Len(t, gotBody.Files, 2)
	assert.Equal(t, "a.png", gotBody.Files[0].Filename)
	assert.Equal(t, "image/png", gotBody.Files[0].MIMEType)
	assert.Equal(t, int64(1024), gotBody.Files[0].SizeBytes)

	require.Len(t, slots, 2)
	assert.Equal(t, "gallery/a.png", slots[0].StorageKey)
	assert.Equal(t, "https://storage.example.com/a", slots[0].WriteURL)
	assert.Equal(t, 90, slots[0].ExpiresIn)
}

func TestAPIClient_RequestSlots_rejectionIsNotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":"quota exceeded"}`)
	}))
	defer server.Close()

	client := NewAPIClient(nil, server.URL, "token-123", log.NewLogger())
	_, err := client.RequestSlots(context.Background(), testSlotRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 403")
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Equal(t, 1, calls)
}

func TestAPIClient_RequestSlots_slotCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := []UploadSlot{
			{StorageKey: "gallery/a.png", WriteURL: "https://storage.example.com/a"},
		}
		require.NoError(t, json.NewEncoder(w).Encode(response))
	}))
	defer server.Close()

	client := NewAPIClient(nil, server.URL, "token-123", log.NewLogger())
	_, err := client.RequestSlots(context.Background(), testSlotRequest())
	require.EqualError(t, err, "slot count mismatch: requested 2, got 1")
}
