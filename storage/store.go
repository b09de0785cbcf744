package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"prism-board/domain"
)

const (
	defaultQueueSize = 256
	defaultRetries   = 5
	defaultTimeout   = 10 * time.Second
)

// ErrClosed is wrapped into the PersistenceError returned after Close.
var ErrClosed = errors.New("store closed")

// Options tunes a Store. Zero values select the defaults.
type Options struct {
	QueueSize int
	Retries   int
	Timeout   time.Duration
	Cache     *SnapshotCache
	Notifiers []Notifier
	Logger    *log.Logger
}

// Store serializes every mutation through one writer goroutine and retries
// on version conflicts, so concurrent callers never lose each other's writes.
type Store struct {
	backend   Backend
	cache     *SnapshotCache
	notifiers []Notifier
	log       *log.Logger
	retries   int
	timeout   time.Duration

	reads singleflight.Group

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	done   chan struct{}
}

type job struct {
	ctx    context.Context
	fn     func(*domain.Snapshot) error
	result chan jobResult
}

type jobResult struct {
	snap domain.Snapshot
	err  error
}

// NewStore starts the writer lane over backend.
func NewStore(backend Backend, opts Options) *Store {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	} else if opts.Retries == 0 {
		opts.Retries = defaultRetries
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	s := &Store{
		backend:   backend,
		cache:     opts.Cache,
		notifiers: opts.Notifiers,
		log:       opts.Logger,
		retries:   opts.Retries,
		timeout:   opts.Timeout,
		jobs:      make(chan job, opts.QueueSize),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

// Read returns the current snapshot, from the cache when possible.
// Concurrent misses share one backend load.
func (s *Store) Read(ctx context.Context) (domain.Snapshot, error) {
	if snap, _, ok := s.cache.Load(ctx); ok {
		return snap, nil
	}
	// The shared load must outlive any single caller's context.
	ch := s.reads.DoChan("snapshot", func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		snap, version, err := s.backend.Load(lctx)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "load", Err: err}
		}
		s.cache.Fill(lctx, snap, version)
		return snap, nil
	})
	select {
	case <-ctx.Done():
		return domain.Snapshot{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return domain.Snapshot{}, r.Err
		}
		return r.Val.(domain.Snapshot).Clone(), nil
	}
}

// Ping loads the document from the backend, bypassing the cache.
func (s *Store) Ping(ctx context.Context) error {
	if _, _, err := s.backend.Load(ctx); err != nil {
		return &domain.PersistenceError{Op: "load", Err: err}
	}
	return nil
}

// Update queues fn on the writer lane and waits for its outcome. fn receives
// a private copy of the latest snapshot; nothing is persisted when fn fails.
// Once the lane picks the job up it runs to completion even if ctx is
// cancelled.
func (s *Store) Update(ctx context.Context, fn func(*domain.Snapshot) error) (domain.Snapshot, error) {
	j := job{ctx: ctx, fn: fn, result: make(chan jobResult, 1)}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return domain.Snapshot{}, &domain.PersistenceError{Op: "update", Err: ErrClosed}
	}
	select {
	case s.jobs <- j:
	case <-ctx.Done():
		s.mu.RUnlock()
		return domain.Snapshot{}, ctx.Err()
	}
	s.mu.RUnlock()

	r := <-j.result
	return r.snap, r.err
}

// Close stops accepting mutations, waits for queued ones to finish and stops
// the lane.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()
	<-s.done
}

func (s *Store) run() {
	defer close(s.done)
	for j := range s.jobs {
		if err := j.ctx.Err(); err != nil {
			j.result <- jobResult{err: err}
			continue
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(j.ctx), s.timeout)
		snap, err := s.apply(ctx, j.fn)
		cancel()
		j.result <- jobResult{snap: snap, err: err}
	}
}

func (s *Store) apply(ctx context.Context, fn func(*domain.Snapshot) error) (domain.Snapshot, error) {
	for attempt := 1; ; attempt++ {
		next, version, err := s.backend.Load(ctx)
		if err != nil {
			return domain.Snapshot{}, &domain.PersistenceError{Op: "load", Err: err}
		}
		if err := fn(&next); err != nil {
			return domain.Snapshot{}, err
		}
		if err := next.Check(); err != nil {
			s.log.WithError(err).Error("mutation rejected by invariant check")
			return domain.Snapshot{}, &domain.PersistenceError{Op: "check", Err: err}
		}
		committed, err := s.backend.Save(ctx, next, version)
		if errors.Is(err, domain.ErrConcurrencyConflict) && attempt <= s.retries {
			s.log.WithFields(log.Fields{"attempt": attempt, "version": version}).Warn("write conflict; reloading document")
			continue
		}
		if err != nil {
			return domain.Snapshot{}, &domain.PersistenceError{Op: "save", Err: err}
		}
		s.commit(ctx, next, committed)
		return next.Clone(), nil
	}
}

func (s *Store) commit(ctx context.Context, snap domain.Snapshot, version Version) {
	s.cache.Store(ctx, snap, version)
	if len(s.notifiers) == 0 {
		return
	}
	change := domain.Change{Version: string(version), CommittedAt: time.Now().UTC()}
	for _, n := range s.notifiers {
		if err := n.Publish(ctx, change); err != nil {
			s.log.WithError(err).WithField("version", version).Warn("change notification failed")
		}
	}
}
