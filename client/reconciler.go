package client

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"prism-board/domain"
	"prism-board/gesture"
)

const (
	defaultQueueSize = 64
	defaultTimeout   = 15 * time.Second
)

// ErrClosed is returned by Submit and Reload after Close.
var ErrClosed = errors.New("client: reconciler closed")

// Options tunes a Reconciler. Zero values select the defaults.
type Options struct {
	QueueSize int
	Timeout   time.Duration
	// OnAuthRequired is called when the server asks for credentials, for
	// example to re-prompt for a PIN. The board is reloaded afterwards.
	OnAuthRequired func(ctx context.Context) error
	Logger         *log.Logger
	Now            func() time.Time
}

// Reconciler applies move intents optimistically, confirms them with the
// server and falls back to a full reload on any failure. Intents run one at
// a time in submission order.
type Reconciler struct {
	api     BoardAPI
	state   *State
	render  Renderer
	log     *log.Logger
	timeout time.Duration
	onAuth  func(ctx context.Context) error
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	jobs   chan laneJob
	done   chan struct{}
}

type laneJob struct {
	ctx    context.Context
	intent *gesture.Intent
	result chan error
}

// NewReconciler starts the lane.
func NewReconciler(api BoardAPI, state *State, render Renderer, opts Options) *Reconciler {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = domain.MonotonicClock()
	}
	if render == nil {
		render = NopRenderer{}
	}
	r := &Reconciler{
		api:     api,
		state:   state,
		render:  render,
		log:     opts.Logger,
		timeout: opts.Timeout,
		onAuth:  opts.OnAuthRequired,
		now:     opts.Now,
		jobs:    make(chan laneJob, opts.QueueSize),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Submit queues a move intent. It implements gesture.IntentSink.
func (r *Reconciler) Submit(in gesture.Intent) error {
	return r.enqueue(laneJob{ctx: context.Background(), intent: &in})
}

// Reload replaces the state with the server's snapshot and redraws
// everything. It waits behind any queued intents. On failure the state is
// left as it was.
func (r *Reconciler) Reload(ctx context.Context) error {
	j := laneJob{ctx: ctx, result: make(chan error, 1)}
	if err := r.enqueue(j); err != nil {
		return err
	}
	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work and waits for queued intents to settle.
func (r *Reconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.jobs)
	r.mu.Unlock()
	<-r.done
}

func (r *Reconciler) enqueue(j laneJob) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	select {
	case r.jobs <- j:
		return nil
	case <-j.ctx.Done():
		return j.ctx.Err()
	}
}

func (r *Reconciler) run() {
	defer close(r.done)
	for j := range r.jobs {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(j.ctx), r.timeout)
		var err error
		if j.intent != nil {
			r.apply(ctx, *j.intent)
		} else {
			err = r.reload(ctx)
		}
		cancel()
		if j.result != nil {
			j.result <- err
		}
	}
}

func (r *Reconciler) apply(ctx context.Context, in gesture.Intent) {
	logger := r.log.WithFields(log.Fields{"kind": in.Kind, "id": in.EntityID, "board": in.BoardID})
	switch in.Kind {
	case gesture.KindTask:
		if ids, err := r.state.ApplyTaskMove(in, r.now()); err != nil {
			logger.WithError(err).Debug("cached board disagrees with move; sending anyway")
		} else {
			r.render.RenderSections(r.state, ids...)
		}
		index := in.Index
		res, err := r.api.MoveTask(ctx, in.BoardID, domain.MoveTaskInput{
			TaskID:        in.EntityID,
			FromSectionID: in.From,
			ToSectionID:   in.To,
			NewIndex:      &index,
		})
		if err != nil {
			r.recover(ctx, logger, err)
			return
		}
		r.state.MergeMoveTask(res)
		r.render.RenderSections(r.state, sectionIDs(res.Sections)...)
	case gesture.KindSection:
		if err := r.state.ApplySectionMove(in); err != nil {
			logger.WithError(err).Debug("cached board disagrees with move; sending anyway")
		} else {
			r.render.RenderBoard(r.state, in.BoardID)
		}
		order, err := r.api.MoveSection(ctx, in.BoardID, in.EntityID, in.Index)
		if err != nil {
			r.recover(ctx, logger, err)
			return
		}
		r.state.MergeSectionOrder(in.BoardID, order)
		r.render.RenderBoard(r.state, in.BoardID)
	default:
		logger.Warn("ignoring intent of unknown kind")
	}
}

// recover discards optimistic changes by reloading everything.
func (r *Reconciler) recover(ctx context.Context, logger *log.Entry, err error) {
	if errors.Is(err, ErrAuthRequired) {
		logger.Warn("move needs authentication")
		if r.onAuth != nil {
			if herr := r.onAuth(ctx); herr != nil {
				logger.WithError(herr).Error("authentication prompt failed")
			}
		}
	} else {
		logger.WithError(err).Warn("move failed; reloading board")
	}
	_ = r.reload(ctx)
}

func (r *Reconciler) reload(ctx context.Context) error {
	snap, err := r.api.Snapshot(ctx)
	if err != nil {
		r.log.WithError(err).Error("board reload failed")
		return err
	}
	r.state.Replace(snap)
	r.render.RenderAll(r.state)
	return nil
}

func sectionIDs(sections map[string]domain.Section) []string {
	ids := make([]string, 0, len(sections))
	for id := range sections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
