package facet

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cryptadb/crypta/internal/query"
	"github.com/cryptadb/crypta/internal/records"
)

// Fetcher is the slice of the API client the coordinator needs.
type Fetcher interface {
	FilterTree(ctx context.Context, base records.Base, filters []string) ([]query.FilterGroup, error)
	FilterResults(ctx context.Context, base records.Base, filters []string, stats map[string]string) (*query.ResultSet, error)
}

// DefaultDebounce is how long the coordinator waits after the last change
// before firing a refresh.
const DefaultDebounce = 250 * time.Millisecond

// Update is one completed refresh, tagged with the generation that issued
// it so stale responses can be discarded.
type Update struct {
	Gen     uint64
	Tree    []query.FilterGroup
	Results *query.ResultSet
	Err     error
}

// Coordinator debounces session changes and keeps the session in sync
// with the server. Every refresh is tagged with a monotonically
// increasing generation; only responses newer than the last applied one
// mutate the session, so a slow early response can never clobber the
// result of a later request.
type Coordinator struct {
	mu      sync.Mutex
	session *Session
	fetch   Fetcher

	debounce time.Duration
	timer    *time.Timer

	gen     uint64 // last issued
	applied uint64 // last applied

	// OnUpdate, when set, runs after every applied update or recorded
	// failure, outside the coordinator lock.
	OnUpdate func()
}

// NewCoordinator wires a session to a fetcher with the default debounce.
func NewCoordinator(s *Session, f Fetcher) *Coordinator {
	return &Coordinator{session: s, fetch: f, debounce: DefaultDebounce}
}

// SetDebounce overrides the debounce interval. Zero fires immediately.
func (c *Coordinator) SetDebounce(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.debounce = d
}

// Request schedules a refresh after the debounce interval. Further calls
// inside the interval reset the timer, so a burst of toggles produces one
// round trip.
func (c *Coordinator) Request(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	if c.debounce <= 0 {
		go c.Refresh(ctx)
		return
	}
	c.timer = time.AfterFunc(c.debounce, func() { c.Refresh(ctx) })
}

// Refresh performs one fetch cycle immediately and applies the outcome.
// It returns the update for callers that drive their own event loop.
func (c *Coordinator) Refresh(ctx context.Context) *Update {
	gen, base, filters, stats := c.snapshot()
	u := c.doFetch(ctx, gen, base, filters, stats)
	c.Apply(u)
	return u
}

// snapshot issues a new generation and captures the request parameters
// under the lock.
func (c *Coordinator) snapshot() (uint64, records.Base, []string, map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	filters := make([]string, len(c.session.Applied))
	copy(filters, c.session.Applied)
	return c.gen, c.session.Base, filters, c.session.StatsParams()
}

// doFetch runs the tree and results requests in parallel.
func (c *Coordinator) doFetch(ctx context.Context, gen uint64, base records.Base, filters []string, stats map[string]string) *Update {
	u := &Update{Gen: gen}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tree, err := c.fetch.FilterTree(ctx, base, filters)
		u.Tree = tree
		return err
	})
	g.Go(func() error {
		rs, err := c.fetch.FilterResults(ctx, base, filters, stats)
		u.Results = rs
		return err
	})
	u.Err = g.Wait()
	return u
}

// Apply installs an update into the session. Updates older than the last
// applied generation are dropped. A failed update keeps the prior tree and
// rows and surfaces a retryable error instead. Returns whether the session
// changed.
func (c *Coordinator) Apply(u *Update) bool {
	c.mu.Lock()
	if u.Gen <= c.applied {
		c.mu.Unlock()
		return false
	}
	if u.Err != nil {
		c.session.LastErr = u.Err
		c.mu.Unlock()
		c.notify()
		return true
	}
	c.applied = u.Gen
	c.session.apply(u.Tree, u.Results)
	c.mu.Unlock()
	c.notify()
	return true
}

func (c *Coordinator) notify() {
	if c.OnUpdate != nil {
		c.OnUpdate()
	}
}

// Retry re-runs a refresh after a failure without changing any state.
func (c *Coordinator) Retry(ctx context.Context) *Update {
	return c.Refresh(ctx)
}
