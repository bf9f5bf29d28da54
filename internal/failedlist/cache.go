// Package failedlist caches one server-paginated page of failed orders and
// keeps it current through explicit fetches and pushed patches, so a push
// event never forces a re-fetch.
package failedlist

import (
	"context"
	"sync"
	"time"

	"fulfillment-board/internal/models"
	"fulfillment-board/internal/telemetry"
)

// Fetcher retrieves one page from the external failed-order list. Filtering
// and sorting stay server-side.
type Fetcher interface {
	FetchFailedOrders(ctx context.Context, q models.FailedOrderQuery) (models.FailedOrderPage, error)
}

// Cache holds the currently visible page plus the query that produced it.
// A generation counter guards against stale responses: fetches are not
// aborted in flight, so a response is applied only if no newer fetch or
// query change happened meanwhile.
type Cache struct {
	mu          sync.Mutex
	fetcher     Fetcher
	query       models.FailedOrderQuery
	page        models.FailedOrderPage
	gen         uint64
	debounce    time.Duration
	searchTimer *time.Timer
}

// New builds a cache around fetcher. debounce bounds how fast rapid search
// input may trigger fetches.
func New(fetcher Fetcher, pageSize int, debounce time.Duration) *Cache {
	return &Cache{
		fetcher:  fetcher,
		query:    models.FailedOrderQuery{Page: 1, Limit: pageSize},
		debounce: debounce,
	}
}

// Query returns the active query.
func (c *Cache) Query() models.FailedOrderQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// Snapshot returns a copy of the cached page.
func (c *Cache) Snapshot() models.FailedOrderPage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.page
	out.Records = append([]models.FailedOrderRecord(nil), c.page.Records...)
	return out
}

// Get returns the cached record with the given id, if it is on the page.
func (c *Cache) Get(id string) (models.FailedOrderRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.page.Records {
		if r.ID == id {
			return r, true
		}
	}
	return models.FailedOrderRecord{}, false
}

// Refresh fetches the current query's page. The response is discarded when a
// newer fetch or query change has superseded it.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	q := c.query
	c.mu.Unlock()

	telemetry.ListFetches.Inc()
	page, err := c.fetcher.FetchFailedOrders(ctx, q)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		telemetry.ListStaleDiscards.Inc()
		return nil
	}
	c.page = page
	return nil
}

// SetPage switches the visible page and refetches.
func (c *Cache) SetPage(ctx context.Context, page int) error {
	c.mu.Lock()
	if page < 1 {
		page = 1
	}
	c.query.Page = page
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// SetFilters replaces the status/store/date filters, rewinds to page one and
// refetches.
func (c *Cache) SetFilters(ctx context.Context, status, storeID string, start, end time.Time) error {
	c.mu.Lock()
	c.query.Status = status
	c.query.StoreID = storeID
	c.query.StartDate = start
	c.query.EndDate = end
	c.query.Page = 1
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// Search schedules a debounced fetch for term: within one debounce window
// only the last term fires a request. The fetch runs in the background on
// ctx once the window closes.
func (c *Cache) Search(ctx context.Context, term string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.query.Search = term
	c.query.Page = 1
	if c.searchTimer != nil {
		c.searchTimer.Stop()
	}
	c.searchTimer = time.AfterFunc(c.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		_ = c.Refresh(ctx)
	})
}

// ApplyPatch overwrites status and retryCount of the record with the given
// id, leaving every other field untouched, and reports whether the record
// was on the current page. Merge policy (ordering, terminal states) belongs
// to the reconciler; this is the mechanical hook it uses.
func (c *Cache) ApplyPatch(id, status string, retryCount int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.page.Records {
		if c.page.Records[i].ID == id {
			c.page.Records[i].Status = status
			c.page.Records[i].RetryCount = retryCount
			return true
		}
	}
	return false
}

// Stop cancels any pending debounced search.
func (c *Cache) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.searchTimer != nil {
		c.searchTimer.Stop()
		c.searchTimer = nil
	}
}
