package transfer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
)

const (
	// DefaultMaxRetries is the retry budget after the first attempt.
	DefaultMaxRetries = 3
	// DefaultBackoffBase is the backoff unit: attempt n sleeps base << n.
	DefaultBackoffBase = time.Second
)

// Item is one queued upload: a validated file paired with its slot.
type Item struct {
	Filename    string
	StorageKey  string
	WriteURL    string
	ContentType string
	Size        int64
	// Body is re-read from the start on every attempt.
	Body io.ReadSeeker
}

// Config bundles the collaborators and tuning of transfer units.
type Config struct {
	Transport Transport
	Sink      Sink
	Logger    log.Logger
	Stats     *Stats
	// MaxRetries is the number of retries after the first attempt. Default 3.
	MaxRetries int
	// BackoffBase scales the exponential backoff between attempts. Default 1s.
	BackoffBase time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.Logger == nil {
		c.Logger = log.NewLogger()
	}
	return c
}

// Unit owns one file's upload lifecycle until it settles.
type Unit struct {
	item Item
	cfg  Config

	mu          sync.Mutex
	state       State
	abortReason Status
	cancel      context.CancelFunc
	settled     bool
	lastTick    time.Time
	lastBytes   int64
}

// NewUnit creates a pending transfer unit for the given item.
func NewUnit(item Item, cfg Config) *Unit {
	return &Unit{
		item: item,
		cfg:  cfg.withDefaults(),
		state: State{
			Filename:   item.Filename,
			StorageKey: item.StorageKey,
			Status:     Pending,
			TotalBytes: item.Size,
		},
	}
}

// State returns the current snapshot.
func (u *Unit) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Abort moves the unit towards the given terminal reason (Cancelled or
// Paused). In-flight requests are torn down at the transport level; progress
// freezes at the last observed value. Calling Abort on a settled unit, or a
// second time, is a no-op.
func (u *Unit) Abort(reason Status) {
	u.mu.Lock()
	if u.settled || u.abortReason != "" {
		u.mu.Unlock()
		return
	}
	u.abortReason = reason
	cancel := u.cancel

	var snapshot State
	recordNow := false
	if cancel == nil {
		// Not dispatched yet: settle right here so the scheduler skips it.
		u.state.Status = reason
		if reason == Cancelled {
			u.state.Err = "Upload cancelled"
		}
		u.settled = true
		snapshot = u.state
		recordNow = true
	}
	u.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if recordNow {
		u.record(snapshot)
	}
}

// Run drives the transfer to a settled state and returns its result.
// Per-file failures are encoded in the result, never returned as an error.
func (u *Unit) Run(ctx context.Context) Result {
	u.mu.Lock()
	if u.settled {
		result := u.result()
		u.mu.Unlock()
		return result
	}
	runCtx, cancel := context.WithCancel(ctx)
	u.cancel = cancel
	u.mu.Unlock()
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= u.cfg.MaxRetries; attempt++ {
		if result, settled := u.checkAbort(ctx); settled {
			return result
		}

		u.cfg.Logger.Debugf("Uploading %s (attempt %d/%d)", u.item.Filename, attempt+1, u.cfg.MaxRetries+1)
		start := time.Now()
		u.beginAttempt(start)

		if _, err := u.item.Body.Seek(0, io.SeekStart); err != nil {
			return u.settle(StatusError, fmt.Sprintf("rewind payload: %s", err))
		}

		err := u.cfg.Transport.Put(runCtx, PutRequest{
			URL:         u.item.WriteURL,
			ContentType: u.item.ContentType,
			Body:        u.item.Body,
			Size:        u.item.Size,
			OnProgress:  u.onProgress,
		})
		if err == nil {
			took := time.Since(start)
			if u.cfg.Stats != nil {
				u.cfg.Stats.Update(took, u.item.Size)
			}
			u.cfg.Logger.Debugf("Uploaded %s in %s", u.item.Filename, took.Round(time.Millisecond))
			return u.complete()
		}

		if result, settled := u.checkAbort(ctx); settled {
			return result
		}

		lastErr = err
		if attempt == u.cfg.MaxRetries {
			break
		}

		backoff := u.cfg.BackoffBase << attempt
		u.cfg.Logger.Warnf("Upload of %s failed (attempt %d/%d), retrying in %s: %s",
			u.item.Filename, attempt+1, u.cfg.MaxRetries+1, backoff, err)

		select {
		case <-time.After(backoff):
		case <-runCtx.Done():
			if result, settled := u.checkAbort(ctx); settled {
				return result
			}
		}
	}

	u.cfg.Logger.Errorf("Upload of %s failed after %d attempts: %s", u.item.Filename, u.cfg.MaxRetries+1, lastErr)
	return u.settle(StatusError, lastErr.Error())
}

// checkAbort settles the unit if an abort was requested or the session context
// is gone. The second return value reports whether the unit settled.
func (u *Unit) checkAbort(sessionCtx context.Context) (Result, bool) {
	u.mu.Lock()
	reason := u.abortReason
	u.mu.Unlock()

	if reason != "" {
		message := ""
		if reason == Cancelled {
			message = "Upload cancelled"
		}
		return u.settle(reason, message), true
	}
	if sessionCtx.Err() != nil {
		return u.settle(Cancelled, "Upload cancelled"), true
	}
	return Result{}, false
}

func (u *Unit) beginAttempt(now time.Time) {
	u.mu.Lock()
	u.state.Status = Uploading
	u.state.Progress = 0
	u.state.UploadedBytes = 0
	u.state.SpeedBPS = 0
	u.state.ETASeconds = 0
	u.state.Err = ""
	u.lastTick = now
	u.lastBytes = 0
	snapshot := u.state
	u.mu.Unlock()

	u.record(snapshot)
}

// onProgress derives speed and ETA from the delta since the previous tick, so
// the estimate tracks recent throughput instead of averaging over the whole
// transfer.
func (u *Unit) onProgress(uploadedBytes int64) {
	u.mu.Lock()
	now := time.Now()
	elapsed := now.Sub(u.lastTick).Seconds()
	if elapsed > 0 {
		speed := float64(uploadedBytes-u.lastBytes) / elapsed
		u.state.SpeedBPS = speed
		if speed > 0 {
			u.state.ETASeconds = float64(u.item.Size-uploadedBytes) / speed
		} else {
			u.state.ETASeconds = 0
		}
		u.lastTick = now
		u.lastBytes = uploadedBytes
	}

	u.state.UploadedBytes = uploadedBytes
	if u.item.Size > 0 {
		u.state.Progress = float64(uploadedBytes) / float64(u.item.Size) * 100
	}
	snapshot := u.state
	u.mu.Unlock()

	u.record(snapshot)
}

func (u *Unit) complete() Result {
	u.mu.Lock()
	u.state.Status = Completed
	u.state.Progress = 100
	u.state.UploadedBytes = u.item.Size
	u.state.SpeedBPS = 0
	u.state.ETASeconds = 0
	u.settled = true
	snapshot := u.state
	result := u.result()
	u.mu.Unlock()

	u.record(snapshot)
	return result
}

// settle terminalizes with the given status, freezing progress at the last
// observed value.
func (u *Unit) settle(status Status, message string) Result {
	u.mu.Lock()
	if u.settled {
		result := u.result()
		u.mu.Unlock()
		return result
	}
	u.state.Status = status
	u.state.Err = message
	u.state.SpeedBPS = 0
	u.state.ETASeconds = 0
	u.settled = true
	snapshot := u.state
	result := u.result()
	u.mu.Unlock()

	u.record(snapshot)
	return result
}

// result assumes u.mu is held.
func (u *Unit) result() Result {
	return Result{
		Filename:   u.state.Filename,
		StorageKey: u.state.StorageKey,
		Status:     u.state.Status,
		Err:        u.state.Err,
	}
}

func (u *Unit) record(snapshot State) {
	if u.cfg.Sink != nil {
		u.cfg.Sink.Record(snapshot)
	}
}
