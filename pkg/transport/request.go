package transport

import (
	"time"

	"github.com/google/uuid"
)

// Request describes one outbound HTTP call: target URL, method, an optional
// single body, and per-cause attempt counters. A fresh request has all
// counters at zero; the counters only ever grow as the request is retried.
// A request is consumed once a terminal result is produced and must not be
// reused.
type Request struct {
	// ID identifies the request across retries, for logs and tracing.
	ID string

	// Method is the HTTP method.
	Method string

	// URL is the absolute target URL.
	URL string

	// Body is the single-object request body, marshaled as JSON. Nil for
	// bodyless calls. Batch requests carry Items instead.
	Body any

	// ContentType overrides the Content-Type header. Empty means JSON.
	ContentType string

	// Accept overrides the Accept header. Empty means JSON.
	Accept string

	// connectAttempts counts retries caused by connect failures.
	connectAttempts int

	// readAttempts counts retries caused by read/timeout failures.
	readAttempts int

	// statusAttempts counts retries caused by retryable status codes.
	statusAttempts int

	// notBefore delays the next attempt (backoff or Retry-After). The
	// sleep happens on whichever goroutine performs the attempt.
	notBefore time.Time
}

// NewRequest creates a fresh single-object request.
func NewRequest(method, url string, body any) *Request {
	return &Request{
		ID:     uuid.New().String(),
		Method: method,
		URL:    url,
		Body:   body,
	}
}

// TotalAttempts is the sum of the three per-cause attempt counters. It is
// monotonically non-decreasing across the request's lifetime and drives
// backoff timing.
func (r *Request) TotalAttempts() int {
	return r.connectAttempts + r.readAttempts + r.statusAttempts
}

// Item is one logical entry of a batch request.
type Item struct {
	// ID is the item's stable identifier within the batch (usually the
	// resource instance's external identifier).
	ID string

	// Payload is the item body, marshaled as one entry of the batch's
	// JSON items array.
	Payload any
}

// Batch is a Request specialized to carry an ordered list of items plus the
// Tracker shared by every fragment split off from the same original batch.
type Batch struct {
	Request

	// Items are the batch's logical entries, in submission order.
	Items []Item

	tracker *Tracker
}

// NewBatch creates a fresh batch with its own tracker.
func NewBatch(method, url string, items []Item, maxFailedSplits int) *Batch {
	return &Batch{
		Request: Request{
			ID:     uuid.New().String(),
			Method: method,
			URL:    url,
		},
		Items:   items,
		tracker: NewTracker(maxFailedSplits),
	}
}

// Tracker returns the tracker shared by this batch's tree.
func (b *Batch) Tracker() *Tracker {
	return b.tracker
}

// Split bisects the batch into two children of sizes ceil(n/2) and
// floor(n/2). The children partition the items with no loss and no
// duplication, share the parent's tracker, and inherit the parent's attempt
// counters so the retry ceiling keeps applying to the fragments. Splitting
// a batch of size <= 1 is a contract violation and panics.
func (b *Batch) Split() (*Batch, *Batch) {
	if len(b.Items) <= 1 {
		panic("transport: split of batch with fewer than two items")
	}
	mid := (len(b.Items) + 1) / 2
	left := b.child(b.Items[:mid])
	right := b.child(b.Items[mid:])
	return left, right
}

func (b *Batch) child(items []Item) *Batch {
	return &Batch{
		Request: Request{
			ID:              uuid.New().String(),
			Method:          b.Method,
			URL:             b.URL,
			ContentType:     b.ContentType,
			Accept:          b.Accept,
			connectAttempts: b.connectAttempts,
			readAttempts:    b.readAttempts,
			statusAttempts:  b.statusAttempts,
		},
		Items:   items,
		tracker: b.tracker,
	}
}

// ItemIDs returns the identifiers of the batch's items in order.
func (b *Batch) ItemIDs() []string {
	ids := make([]string, len(b.Items))
	for i, it := range b.Items {
		ids[i] = it.ID
	}
	return ids
}

// payloads returns the item payloads in order, the wire shape of the batch
// body.
func (b *Batch) payloads() []any {
	out := make([]any, len(b.Items))
	for i, it := range b.Items {
		out[i] = it.Payload
	}
	return out
}
