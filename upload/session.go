// Package upload composes the upload pipeline: policy validation, the slot
// request exchange, bounded-concurrency transfers and progress aggregation,
// behind one session façade.
package upload

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"

	"github.com/saaskit/go-uploadkit/upload/network"
	"github.com/saaskit/go-uploadkit/upload/policy"
	"github.com/saaskit/go-uploadkit/upload/progress"
	"github.com/saaskit/go-uploadkit/upload/transfer"
)

// File is one candidate upload. Immutable once submitted.
type File struct {
	Name     string
	MIMEType string
	Size     int64
	// Body holds the payload. It is re-read from the start on every transfer
	// attempt, so it must stay valid for the whole session.
	Body io.ReadSeeker
}

// Config bundles the collaborators of an Uploader.
type Config struct {
	// Slots is the slot requester. Required.
	Slots network.SlotRequester
	// Transport performs single PUT attempts. Nil selects the HTTP transport.
	Transport transfer.Transport
	// Registry holds the known policies. Zero value selects the built-ins.
	Registry policy.Registry
	// Logger can be nil.
	Logger log.Logger
	// EnvRepo can be nil.
	EnvRepo env.Repository
	// Tracker receives session analytics events. Nil selects the default
	// tracker.
	Tracker analytics.Tracker
	// MaxRetries and BackoffBase tune the per-file retry policy; zero values
	// select the transfer package defaults.
	MaxRetries  int
	BackoffBase time.Duration
}

// Uploader creates upload sessions. Safe for concurrent use; every session
// owns its own state.
type Uploader struct {
	cfg Config
}

// NewUploader ...
func NewUploader(cfg Config) *Uploader {
	if cfg.Transport == nil {
		cfg.Transport = transfer.NewHTTPTransport(nil)
	}
	if cfg.Registry.IsZero() {
		cfg.Registry = policy.DefaultRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewLogger()
	}
	if cfg.EnvRepo == nil {
		cfg.EnvRepo = env.NewRepository()
	}
	return &Uploader{cfg: cfg}
}

type sessionOptions struct {
	observers    []progress.Observer
	fileProgress func(filename string, percent float64)
}

// Option configures one session.
type Option func(*sessionOptions)

// WithObserver registers an observer for the session's full progress
// snapshots.
func WithObserver(observer progress.Observer) Option {
	return func(o *sessionOptions) {
		o.observers = append(o.observers, observer)
	}
}

// WithFileProgress registers a per-file percentage callback, invoked on every
// progress tick of an uploading file.
func WithFileProgress(fn func(filename string, percent float64)) Option {
	return func(o *sessionOptions) {
		o.fileProgress = fn
	}
}

// Session is the caller-facing aggregate of all transfers spawned by one
// Start call. Cancel and pause operations stay valid for the whole session
// lifetime and are no-ops on files that already settled.
type Session struct {
	units      map[string]*transfer.Unit
	ordered    []*transfer.Unit
	aggregator *progress.Aggregator
	cancel     context.CancelFunc
	done       chan struct{}
	results    []transfer.Result
	closeOnce  sync.Once
}

// Start validates the batch, performs the slot exchange and dispatches the
// transfers. Validation failures are returned as policy.ValidationErrors with
// zero network activity; a slot exchange failure aborts the whole session with
// no partial uploads. The returned session settles asynchronously; use Wait
// for the results.
func (u *Uploader) Start(ctx context.Context, files []File, policyKey string, opts ...Option) (*Session, error) {
	options := sessionOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	fileInfos := make([]policy.FileInfo, 0, len(files))
	for _, file := range files {
		fileInfos = append(fileInfos, policy.FileInfo{
			Filename:  file.Name,
			MIMEType:  file.MIMEType,
			SizeBytes: file.Size,
		})
	}

	tracker := newSessionTracker(u.cfg.Tracker, policyKey, u.cfg.EnvRepo, u.cfg.Logger)

	if validationErrs := u.cfg.Registry.Validate(fileInfos, policyKey); len(validationErrs) > 0 {
		tracker.logValidationRejected(len(files), len(validationErrs))
		tracker.wait()
		return nil, validationErrs
	}
	pol, err := u.cfg.Registry.Lookup(policyKey)
	if err != nil {
		return nil, err
	}

	metas := make([]network.FileMeta, 0, len(files))
	var totalBytes int64
	for _, info := range fileInfos {
		metas = append(metas, network.FileMeta{
			Filename:  info.Filename,
			MIMEType:  info.MIMEType,
			SizeBytes: info.SizeBytes,
		})
		totalBytes += info.SizeBytes
	}

	u.cfg.Logger.Infof("Requesting upload slots...")
	slots, err := u.cfg.Slots.RequestSlots(ctx, network.SlotRequest{PolicyKey: policyKey, Files: metas})
	if err != nil {
		return nil, fmt.Errorf("request upload slots: %w", err)
	}
	if len(slots) != len(files) {
		return nil, fmt.Errorf("slot count mismatch: requested %d, got %d", len(files), len(slots))
	}

	u.cfg.Logger.Infof("Uploading %d file(s), %s total", len(files),
		units.HumanSizeWithPrecision(float64(totalBytes), 3))

	aggregator := progress.NewAggregator()
	for _, observer := range options.observers {
		aggregator.Subscribe(observer)
	}

	var sink transfer.Sink = aggregator
	if options.fileProgress != nil {
		fileProgress := options.fileProgress
		sink = sinkFunc(func(state transfer.State) {
			aggregator.Record(state)
			if state.Status == transfer.Uploading {
				fileProgress(state.Filename, state.Progress)
			}
		})
	}

	stats := transfer.NewStats()
	unitConfig := transfer.Config{
		Transport:   u.cfg.Transport,
		Sink:        sink,
		Logger:      u.cfg.Logger,
		Stats:       stats,
		MaxRetries:  u.cfg.MaxRetries,
		BackoffBase: u.cfg.BackoffBase,
	}

	session := &Session{
		units:      make(map[string]*transfer.Unit, len(files)),
		aggregator: aggregator,
		done:       make(chan struct{}),
	}
	for i, file := range files {
		unit := transfer.NewUnit(transfer.Item{
			Filename:    file.Name,
			StorageKey:  slots[i].StorageKey,
			WriteURL:    slots[i].WriteURL,
			ContentType: file.MIMEType,
			Size:        file.Size,
			Body:        file.Body,
		}, unitConfig)
		session.units[file.Name] = unit
		session.ordered = append(session.ordered, unit)

		// Every file shows up as pending before anything is dispatched.
		aggregator.Record(unit.State())
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	session.cancel = cancel

	scheduler := transfer.NewScheduler(pol.Concurrency, u.cfg.Logger)
	startTime := time.Now()
	go func() {
		defer cancel()
		session.results = scheduler.Run(sessionCtx, session.ordered)
		tracker.logSessionFinished(session.results, stats.UploadedBytes(), time.Since(startTime))
		close(session.done)
		tracker.wait()
	}()

	return session, nil
}

// Upload is Start followed by Wait.
func (u *Uploader) Upload(ctx context.Context, files []File, policyKey string, opts ...Option) ([]transfer.Result, error) {
	session, err := u.Start(ctx, files, policyKey, opts...)
	if err != nil {
		return nil, err
	}
	return session.Wait(), nil
}

// Wait blocks until every transfer settled and returns the per-file results
// in submission order. Mixed outcomes are normal: inspect each result's
// status instead of expecting an error.
func (s *Session) Wait() []transfer.Result {
	<-s.done
	return s.results
}

// Snapshot returns the current state of every file in the session.
func (s *Session) Snapshot() []transfer.State {
	return s.aggregator.Snapshot()
}

// Subscribe registers an observer for the session's progress snapshots and
// returns its unsubscribe function.
func (s *Session) Subscribe(observer progress.Observer) func() {
	return s.aggregator.Subscribe(observer)
}

// CancelAll aborts every transfer that has not settled yet.
func (s *Session) CancelAll() {
	for _, unit := range s.ordered {
		unit.Abort(transfer.Cancelled)
	}
}

// CancelFile aborts one file's transfer. No-op for unknown or settled files;
// calling it twice is safe.
func (s *Session) CancelFile(filename string) {
	if unit, ok := s.units[filename]; ok {
		unit.Abort(transfer.Cancelled)
	}
}

// PauseFile aborts one file's transfer at the transport level but records it
// as paused, frozen at the last observed progress. A paused file is not
// resumed within this session; re-submit it to upload the remainder (from the
// start, presigned single-PUT uploads cannot continue mid-object).
func (s *Session) PauseFile(filename string) {
	if unit, ok := s.units[filename]; ok {
		unit.Abort(transfer.Paused)
	}
}

// Close aborts everything still live. Safe to call repeatedly and alongside
// Wait.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.CancelAll()
		s.cancel()
	})
}

type sinkFunc func(transfer.State)

func (f sinkFunc) Record(state transfer.State) { f(state) }
