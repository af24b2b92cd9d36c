// Package network implements the remote collaborators of the upload pipeline:
// the slot request exchange (file metadata in, storage key + presigned write
// URL out) and retrieval of stored assets.
package network

import (
	"context"
)

// FileMeta is the metadata sent for one file in a slot request.
type FileMeta struct {
	Filename  string `json:"filename"`
	MIMEType  string `json:"mimeType"`
	SizeBytes int64  `json:"size"`
}

// SlotRequest is the single batched exchange of one upload session.
type SlotRequest struct {
	PolicyKey string     `json:"type"`
	Files     []FileMeta `json:"files"`
}

// UploadSlot is one issued upload target: a server-assigned storage key plus a
// short-lived, single-use write URL. Slots are index-correlated with the
// request batch.
type UploadSlot struct {
	StorageKey string `json:"key"`
	WriteURL   string `json:"url"`
	// ExpiresIn is the URL lifetime in seconds. Informational: the issuer
	// decides it and the pipeline never acts on it.
	ExpiresIn int `json:"expires_in,omitempty"`
}

// SlotRequester exchanges file metadata for upload slots in one remote call.
// Implementations must return exactly one slot per requested file, in request
// order, and must surface rejections (authorization, quota, unknown policy)
// as errors without retrying them.
type SlotRequester interface {
	RequestSlots(ctx context.Context, request SlotRequest) ([]UploadSlot, error)
}
