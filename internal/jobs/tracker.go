package jobs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gci-tools/reportes-console/internal/gateway"
	"github.com/gci-tools/reportes-console/internal/pkg/logger"
	"github.com/gci-tools/reportes-console/internal/platform/apierr"
)

// Tracker follows one observed job at a time: submission makes the new job the
// observed one, refresh re-fetches its record and event timeline together.
// The observation generation counter turns "stale responses are discarded"
// into a checked invariant: a response fetched for generation N is dropped if
// the observed job changed to generation N+1 while it was in flight.
type Tracker struct {
	log *logger.Logger
	gw  *gateway.Gateway

	mu       sync.Mutex
	observed string
	gen      uint64
	record   *Record
	events   []Event
}

func NewTracker(log *logger.Logger, gw *gateway.Gateway) (*Tracker, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if gw == nil {
		return nil, fmt.Errorf("gateway required")
	}
	return &Tracker{log: log.With("component", "JobTracker"), gw: gw}, nil
}

// ObservedID returns the id of the job currently being followed, "" if none.
func (t *Tracker) ObservedID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.observed
}

// Snapshot returns the last applied record and events for the observed job.
// The slice is shared read-only state; callers must not mutate it.
func (t *Tracker) Snapshot() (*Record, []Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record, t.events
}

// Observe switches the observed job. The previous job's cached record and
// events are discarded; in-flight fetches for it will be dropped on arrival.
func (t *Tracker) Observe(requestID string) {
	requestID = strings.TrimSpace(requestID)
	t.mu.Lock()
	defer t.mu.Unlock()
	if requestID == t.observed {
		return
	}
	t.observed = requestID
	t.gen++
	t.record = nil
	t.events = nil
}

// Submit validates and sends one job request. On success the returned request
// id becomes the observed job. Parameters must already be a JSON object
// (ParseParameters); a nil map is sent as an empty object.
func (t *Tracker) Submit(ctx context.Context, req Request) (*Record, error) {
	req.ReportCode = strings.TrimSpace(req.ReportCode)
	if req.ReportCode == "" {
		return nil, apierr.Validation("a report code is required")
	}
	if req.Parameters == nil {
		req.Parameters = map[string]any{}
	}
	if req.MaxAttempts < 1 {
		req.MaxAttempts = 2
	}
	rec, err := gateway.JSON[Record](ctx, t.gw, http.MethodPost, "/solicitudes", req)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.observed = rec.RequestID
	t.gen++
	t.record = rec
	t.events = nil
	t.mu.Unlock()
	t.log.Info("job submitted", "request_id", rec.RequestID, "reporte", rec.ReportCode)
	return rec, nil
}

// RefreshObserved re-fetches the observed job's record and full event list.
// Both fetches run concurrently but neither result is applied until both have
// resolved, so a reader never sees a record from one tick paired with events
// from another. Returns (nil, nil, nil) when no job is observed or when the
// response turned out to be for a job no longer observed.
func (t *Tracker) RefreshObserved(ctx context.Context) (*Record, []Event, error) {
	t.mu.Lock()
	id := t.observed
	gen := t.gen
	t.mu.Unlock()
	if id == "" {
		return nil, nil, nil
	}

	var (
		rec    *Record
		events []Event
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := gateway.JSON[Record](gctx, t.gw, http.MethodGet, "/solicitudes/"+url.PathEscape(id), nil)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	g.Go(func() error {
		ev, err := gateway.JSON[[]Event](gctx, t.gw, http.MethodGet, "/solicitudes/"+url.PathEscape(id)+"/eventos", nil)
		if err != nil {
			return err
		}
		events = *ev
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen || t.observed != id {
		// The observed job changed while the fetches were in flight.
		t.log.Debug("discarding stale refresh", "request_id", id)
		return nil, nil, nil
	}
	t.record = rec
	t.events = events
	return rec, events, nil
}

// ListForOwner fetches up to limit records for an owner and then narrows by
// state client-side. The limit bounds the pre-filter population, so the
// returned count may be smaller than limit even when more matching records
// exist server-side.
func (t *Tracker) ListForOwner(ctx context.Context, owner, stateFilter string, limit int) ([]Record, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, apierr.Validation("an owner username is required")
	}
	if limit < 1 {
		limit = 100
	}
	q := url.Values{}
	q.Set("usuario", owner)
	q.Set("limit", fmt.Sprintf("%d", limit))
	page, err := gateway.JSON[recordPage](ctx, t.gw, http.MethodGet, "/mis-solicitudes?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	stateFilter = strings.ToUpper(strings.TrimSpace(stateFilter))
	if stateFilter == "" {
		return page.Items, nil
	}
	out := make([]Record, 0, len(page.Items))
	for _, r := range page.Items {
		if strings.ToUpper(r.State) == stateFilter {
			out = append(out, r)
		}
	}
	return out, nil
}
