// Package transfer drives individual file uploads against presigned write URLs:
// per-file state machines with retry and backoff, a bounded-concurrency
// scheduler, and throughput stats.
package transfer

import (
	"context"
	"io"
)

// Status is the lifecycle state of one transfer.
type Status string

// Transfer statuses. Completed, StatusError and Cancelled are terminal.
// Paused is not terminal by the state machine's definition, but a paused
// transfer is never auto-resumed: resuming requires a fresh submission.
const (
	Pending     Status = "pending"
	Uploading   Status = "uploading"
	Paused      Status = "paused"
	Completed   Status = "completed"
	StatusError Status = "error"
	Cancelled   Status = "cancelled"
)

// Terminal reports whether a unit in this status will make no further progress.
// Paused counts as settled: the in-flight request is gone and only a new
// submission can continue the file.
func (s Status) Terminal() bool {
	switch s {
	case Completed, StatusError, Cancelled, Paused:
		return true
	default:
		return false
	}
}

// State is the snapshot of one file's transfer, keyed by filename.
type State struct {
	Filename      string
	StorageKey    string
	Progress      float64
	Status        Status
	UploadedBytes int64
	TotalBytes    int64
	// SpeedBPS and ETASeconds track recent throughput (delta since the
	// previous progress tick, not since start). Best-effort UI hints only.
	SpeedBPS   float64
	ETASeconds float64
	Err        string
}

// Result is the final outcome of one transfer.
type Result struct {
	Filename   string
	StorageKey string
	Status     Status
	Err        string
}

// Sink receives every state change of a transfer unit.
type Sink interface {
	Record(state State)
}

// PutRequest describes one single-attempt upload of a full payload.
type PutRequest struct {
	URL         string
	ContentType string
	Body        io.Reader
	Size        int64
	// OnProgress is invoked as body bytes are consumed by the transport.
	OnProgress func(uploadedBytes int64)
}

// Transport performs exactly one PUT attempt. Retries belong to the transfer
// unit, which needs to observe each attempt for its state machine; the
// transport must not retry internally.
type Transport interface {
	Put(ctx context.Context, req PutRequest) error
}
