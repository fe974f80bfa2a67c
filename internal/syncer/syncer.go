// Package syncer keeps an offline copy of a user's events and reconciles it
// with the server once connectivity returns.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/remind/internal/model"
)

const DefaultBatchSize = 10

var (
	ErrOffline = errors.New("syncer is offline")
	// ErrUnreachable marks transport failures: the server was never reached,
	// so the change was neither applied nor rejected.
	ErrUnreachable = errors.New("server unreachable")
)

// Remote is the server side of a sync.
type Remote interface {
	// ListEvents returns events updated after since, tombstones included. A
	// zero since returns the full list.
	ListEvents(ctx context.Context, since time.Time) ([]model.Event, error)
	// Apply replays one change and returns the server's copy of the event.
	Apply(ctx context.Context, c Change) (*model.Event, error)
}

// Pinger is implemented by remotes that can cheaply check reachability.
// Run uses it to come back online after a transport failure.
type Pinger interface {
	Ping(ctx context.Context) error
}

// unreachable reports whether err is a transport failure rather than a
// server rejection.
func unreachable(err error) bool {
	if errors.Is(err, ErrUnreachable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ue *url.Error
	var ne net.Error
	return errors.As(err, &ue) || errors.As(err, &ne)
}

type Options struct {
	BatchSize int
	// RequeueFailed keeps changes the server rejected in the queue for the
	// next sync. When false they are logged and discarded.
	RequeueFailed bool
	// Interval between background syncs in Run.
	Interval time.Duration
}

type Report struct {
	Batches int `json:"batches"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
	Pulled  int `json:"pulled"`
}

type Reconciler struct {
	remote Remote
	state  *State
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	online atomic.Bool
	wake   chan struct{}
	syncMu sync.Mutex

	// OnSync, when set, receives the report of every successful sync.
	OnSync func(Report)
}

func New(remote Remote, state *State, opts Options, logger *slog.Logger) *Reconciler {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	r := &Reconciler{
		remote: remote,
		state:  state,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		wake:   make(chan struct{}, 1),
	}
	r.online.Store(true)
	return r
}

// SetOnline records connectivity. Coming back online schedules a sync.
func (r *Reconciler) SetOnline(online bool) {
	was := r.online.Swap(online)
	if online && !was {
		r.Notify()
	}
}

func (r *Reconciler) Online() bool { return r.online.Load() }

// Notify asks Run to sync soon. It never blocks.
func (r *Reconciler) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Create queues a new event. It appears locally once the server assigns an id.
func (r *Reconciler) Create(e model.Event) Change {
	e.ID = 0
	return r.enqueue(OpCreate, e)
}

func (r *Reconciler) Update(e model.Event) Change {
	e.UpdatedAt = r.now().UTC()
	r.state.Put(e)
	return r.enqueue(OpUpdate, e)
}

func (r *Reconciler) Delete(id int64) Change {
	e, ok := r.state.Get(id)
	if !ok {
		e = model.Event{ID: id}
	}
	r.state.Remove(id)
	return r.enqueue(OpDelete, e)
}

func (r *Reconciler) enqueue(op Op, e model.Event) Change {
	c := Change{ID: uuid.New(), Op: op, Event: e, Timestamp: r.now().UTC()}
	r.state.Enqueue(c)
	r.Notify()
	return c
}

// Sync pushes pending changes, or pulls the server's event list when nothing
// is pending. Individual rejections are counted in the report, not returned.
// A transport failure takes the reconciler offline, keeps the queue intact
// and returns an error wrapping ErrOffline.
func (r *Reconciler) Sync(ctx context.Context) (Report, error) {
	if !r.Online() {
		return Report{}, ErrOffline
	}
	r.syncMu.Lock()
	defer r.syncMu.Unlock()

	var (
		rep Report
		err error
	)
	if pending := r.state.Pending(); len(pending) > 0 {
		rep, err = r.push(ctx, pending)
	} else {
		rep, err = r.pull(ctx)
	}
	if saveErr := r.state.Save(); saveErr != nil && err == nil {
		err = saveErr
	}
	if err != nil {
		return rep, err
	}

	r.logger.Info("sync complete", "batches", rep.Batches, "synced", rep.Synced, "failed", rep.Failed, "pulled", rep.Pulled)
	if r.OnSync != nil {
		r.OnSync(rep)
	}
	return rep, nil
}

type outcome struct {
	event *model.Event
	err   error
}

func (r *Reconciler) push(ctx context.Context, pending []Change) (Report, error) {
	var rep Report
	for start := 0; start < len(pending); start += r.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		end := min(start+r.opts.BatchSize, len(pending))
		batch := pending[start:end]
		results := make([]outcome, len(batch))

		var g errgroup.Group
		for i, c := range batch {
			g.Go(func() error {
				ev, err := r.remote.Apply(ctx, c)
				results[i] = outcome{event: ev, err: err}
				return nil
			})
		}
		g.Wait()
		rep.Batches++

		var (
			done    []uuid.UUID
			lostErr error
		)
		for i, c := range batch {
			res := results[i]
			switch {
			case res.err != nil && unreachable(res.err):
				lostErr = res.err
			case res.err != nil:
				rep.Failed++
				r.logger.Warn("sync change failed", "change_id", c.ID, "op", c.Op, "event_id", c.Event.ID, "requeue", r.opts.RequeueFailed, "error", res.err)
				if !r.opts.RequeueFailed {
					done = append(done, c.ID)
				}
			default:
				rep.Synced++
				done = append(done, c.ID)
				r.applyLocal(c, res.event)
			}
		}
		r.state.Dequeue(done...)
		if lostErr != nil {
			r.SetOnline(false)
			return rep, fmt.Errorf("%w: %w", ErrOffline, lostErr)
		}
	}
	return rep, nil
}

func (r *Reconciler) applyLocal(c Change, server *model.Event) {
	if c.Op == OpDelete {
		r.state.Remove(c.Event.ID)
		return
	}
	if server == nil {
		if c.Event.ID == 0 {
			return
		}
		r.state.Put(c.Event)
		return
	}
	if server.Status == model.EventStatusDeleted {
		r.state.Remove(server.ID)
		return
	}
	r.state.Put(*server)
}

// pull fetches the full server list. Server copies replace older local
// ones and events the server no longer has are dropped; nothing is pending
// when pull runs, so the server is authoritative for ids it does not list.
func (r *Reconciler) pull(ctx context.Context) (Report, error) {
	var rep Report
	events, err := r.remote.ListEvents(ctx, time.Time{})
	if err != nil {
		if unreachable(err) {
			r.SetOnline(false)
			return rep, fmt.Errorf("%w: %w", ErrOffline, err)
		}
		return rep, fmt.Errorf("list remote events: %w", err)
	}
	seen := make(map[int64]struct{}, len(events))
	for _, e := range events {
		local, ok := r.state.Get(e.ID)
		switch {
		case e.Status == model.EventStatusDeleted:
			if ok {
				r.state.Remove(e.ID)
				rep.Pulled++
			}
			continue
		case !ok || e.UpdatedAt.After(local.UpdatedAt):
			r.state.Put(e)
			rep.Pulled++
		}
		seen[e.ID] = struct{}{}
	}
	for _, e := range r.state.Events() {
		if _, ok := seen[e.ID]; !ok {
			r.state.Remove(e.ID)
			rep.Pulled++
		}
	}
	return rep, nil
}

// Run syncs on every interval tick and whenever Notify is called, until ctx
// is cancelled. While offline each tick pings the remote, if it can, and
// going back online triggers a sync.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.wake:
		}
		if !r.Online() {
			r.reconnect(ctx)
			continue
		}
		if _, err := r.Sync(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("sync failed", "error", err)
		}
	}
}

func (r *Reconciler) reconnect(ctx context.Context) {
	p, ok := r.remote.(Pinger)
	if !ok {
		return
	}
	if err := p.Ping(ctx); err != nil {
		r.logger.Debug("still offline", "error", err)
		return
	}
	r.logger.Info("server reachable again")
	r.SetOnline(true)
}
