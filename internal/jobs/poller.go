package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/gci-tools/reportes-console/internal/pkg/logger"
)

// TickFunc receives the results of one polling tick: the owner's recent
// records and, when a job is observed, its refreshed record and events.
// Ticks overlap when a response outlasts the interval, so the callback may
// be invoked from concurrent goroutines and must be safe for that.
type TickFunc func(records []Record, observed *Record, events []Event)

// NotifyFunc surfaces a tick failure. Failures never stop the poller.
type NotifyFunc func(err error)

// Poller re-fetches the owner's job list and the observed job on a fixed
// period while enabled. One poller instance exists per client; Enable is
// idempotent (an existing timer is cancelled first). Ticks are fire and
// forget: a slow response does not delay the next tick, and overlapping
// ticks are tolerated — staleness is handled by the tracker's generation
// counter, not by serializing here.
type Poller struct {
	log      *logger.Logger
	tracker  *Tracker
	interval time.Duration
	onTick   TickFunc
	notify   NotifyFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	owner  string
	filter string
	limit  int
}

func NewPoller(log *logger.Logger, tracker *Tracker, interval time.Duration, onTick TickFunc, notify NotifyFunc) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		log:      log.With("component", "Poller"),
		tracker:  tracker,
		interval: interval,
		onTick:   onTick,
		notify:   notify,
		limit:    100,
	}
}

// SetQuery updates the owner/state/limit used by the list fetch on each tick.
func (p *Poller) SetQuery(owner, stateFilter string, limit int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.owner = owner
	p.filter = stateFilter
	if limit > 0 {
		p.limit = limit
	}
}

// Enable starts polling for the given owner. Calling it while already
// enabled restarts the timer rather than stacking a second one.
func (p *Poller) Enable(owner string) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if owner != "" {
		p.owner = owner
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	p.log.Debug("polling enabled", "owner", owner, "interval", p.interval)
	go p.loop(ctx)
}

// Disable stops the timer. In-flight tick requests are not aborted; their
// late responses are discarded by the tracker's generation check when the
// observed job has moved on.
func (p *Poller) Disable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
		p.log.Debug("polling disabled")
	}
}

func (p *Poller) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	// Fire once immediately so enabling gives instant feedback.
	go p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	p.mu.Lock()
	owner := p.owner
	filter := p.filter
	limit := p.limit
	p.mu.Unlock()

	// Nothing to fetch and nothing to deliver.
	if owner == "" && p.tracker.ObservedID() == "" {
		return
	}

	var records []Record
	if owner != "" {
		rs, err := p.tracker.ListForOwner(ctx, owner, filter, limit)
		if err != nil {
			p.report(err)
		} else {
			records = rs
		}
	}

	var (
		rec    *Record
		events []Event
	)
	if p.tracker.ObservedID() != "" {
		r, ev, err := p.tracker.RefreshObserved(ctx)
		if err != nil {
			p.report(err)
		} else {
			rec, events = r, ev
		}
	}

	if p.onTick != nil {
		p.onTick(records, rec, events)
	}
}

func (p *Poller) report(err error) {
	if err == nil {
		return
	}
	p.log.Warn("polling tick failed", "error", err)
	if p.notify != nil {
		p.notify(err)
	}
}
