package transport

import (
	"encoding/json"
	"time"
)

// NextAction is the step machine's decision after one attempt. It is a
// closed set: RetrySingle, RetryBatch, SplitBatch and Done are the only
// implementations.
type NextAction interface {
	sealedAction()
}

// RetrySingle re-enqueues a single request after the given delay. The
// request value carries the advanced attempt counters.
type RetrySingle struct {
	Request *Request
	Delay   time.Duration
}

// RetryBatch re-enqueues a whole batch after the given delay.
type RetryBatch struct {
	Batch *Batch
	Delay time.Duration
}

// SplitBatch replaces a failing batch with its two halves.
type SplitBatch struct {
	Left  *Batch
	Right *Batch
}

// Done carries the terminal results of the attempt.
type Done struct {
	Results []Result
}

func (RetrySingle) sealedAction() {}
func (RetryBatch) sealedAction()  {}
func (SplitBatch) sealedAction()  {}
func (Done) sealedAction()        {}

// causeStatus advances the status counter in retryCopy.
const causeStatus FailureCause = "status"

// retryCopy returns a copy of the request with the counter for cause
// advanced by one.
func (r *Request) retryCopy(cause FailureCause) *Request {
	next := *r
	switch cause {
	case CauseConnect:
		next.connectAttempts++
	case CauseRead:
		next.readAttempts++
	default:
		next.statusAttempts++
	}
	return &next
}

// retryCopy returns a copy of the batch with the counter for cause advanced
// by one. The copy shares the tracker and the item slice; neither is
// mutated by the transport.
func (b *Batch) retryCopy(cause FailureCause) *Batch {
	return &Batch{
		Request: *b.Request.retryCopy(cause),
		Items:   b.Items,
		tracker: b.tracker,
	}
}

// stepSingle decides the next action for a single-object request attempt.
func (c *Client) stepSingle(req *Request, out attemptOutcome) NextAction {
	if out.err != nil {
		return c.stepTransportError(out.err, req, nil)
	}

	status := out.status
	switch {
	case status >= 200 && status < 300:
		return Done{Results: []Result{Success{StatusCode: status, Body: out.body}}}

	case status == 429 && out.retryAfter > 0 && req.statusAttempts < c.opts.MaxRetries:
		c.recordRetry("status")
		return RetrySingle{Request: req.retryCopy(causeStatus), Delay: out.retryAfter}

	case c.retryable[status] && req.statusAttempts < c.opts.MaxRetries:
		c.recordRetry("status")
		next := req.retryCopy(causeStatus)
		return RetrySingle{Request: next, Delay: Backoff(next.TotalAttempts(), c.opts.MaxBackoff)}

	default:
		return Done{Results: []Result{FailedResponse{
			StatusCode: status,
			Detail:     parseErrorDetail(out.body),
			Body:       out.body,
		}}}
	}
}

// stepBatch decides the next action for a batch attempt: terminal results,
// a whole-batch retry, or a bisection into two fragments sharing the batch
// tree's tracker.
func (c *Client) stepBatch(b *Batch, out attemptOutcome) NextAction {
	if out.err != nil {
		return c.stepTransportError(out.err, &b.Request, b)
	}

	status := out.status
	effStatusAttempts := b.statusAttempts + b.tracker.SharedStatusAttempts()

	switch {
	case status >= 200 && status < 300:
		return Done{Results: matchBatchResults(b, status, out.body)}

	// A 429 is a capacity signal, not a content defect: honor Retry-After
	// and never split.
	case status == 429 && out.retryAfter > 0 && effStatusAttempts < c.opts.MaxRetries:
		c.recordRetry("status")
		return RetryBatch{Batch: b.retryCopy(causeStatus), Delay: out.retryAfter}

	case c.splittable[status] && len(b.Items) > 1:
		if status >= 500 {
			// Server errors count toward the retry ceiling even as the
			// fragments shrink.
			b.tracker.RecordStatusAttempt()
		}
		if b.tracker.LimitReached() {
			if c.opts.Metrics != nil {
				c.opts.Metrics.RecordAbortedBatch()
			}
			return Done{Results: failAllResponse(b, status, out.body)}
		}
		b.tracker.RecordFailedSplit()
		if c.opts.Metrics != nil {
			c.opts.Metrics.RecordSplit()
		}
		left, right := b.Split()
		return SplitBatch{Left: left, Right: right}

	case c.retryable[status] && effStatusAttempts < c.opts.MaxRetries:
		c.recordRetry("status")
		next := b.retryCopy(causeStatus)
		delay := Backoff(next.TotalAttempts()+b.tracker.SharedStatusAttempts(), c.opts.MaxBackoff)
		return RetryBatch{Batch: next, Delay: delay}

	default:
		return Done{Results: failAllResponse(b, status, out.body)}
	}
}

// stepTransportError handles attempts that produced no HTTP response.
// Connect and read failures retry against their own ceilings; anything else
// is a terminal FailedRequest.
func (c *Client) stepTransportError(err error, req *Request, b *Batch) NextAction {
	cause := classifyError(err)

	retryable := false
	switch cause {
	case CauseConnect:
		retryable = req.connectAttempts < c.opts.MaxConnectRetries
	case CauseRead:
		retryable = req.readAttempts < c.opts.MaxReadRetries
	}

	if retryable {
		c.recordRetry(string(cause))
		if b != nil {
			next := b.retryCopy(cause)
			return RetryBatch{Batch: next, Delay: Backoff(next.TotalAttempts(), c.opts.MaxBackoff)}
		}
		next := req.retryCopy(cause)
		return RetrySingle{Request: next, Delay: Backoff(next.TotalAttempts(), c.opts.MaxBackoff)}
	}

	if b != nil {
		return Done{Results: failAllRequest(b, cause, err.Error())}
	}
	return Done{Results: []Result{FailedRequest{Cause: cause, Reason: err.Error()}}}
}

func (c *Client) recordRetry(cause string) {
	c.stats.RecordRetry()
	if c.opts.Metrics != nil {
		c.opts.Metrics.RecordRetry(cause)
	}
}

// itemEcho is one per-item entry of a batch response that enumerates items.
type itemEcho struct {
	ID     string          `json:"id"`
	Status int             `json:"status"`
	Error  *ErrorDetail    `json:"error,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// matchBatchResults tags every item of a 2xx batch. When the response
// enumerates items, they are matched by identifier first and position
// second; items the server does not echo back become MissingItem, and
// echoes whose identifier cannot be derived are tagged UnknownItem.
func matchBatchResults(b *Batch, status int, body []byte) []Result {
	echoes, ok := parseItemEchoes(body)
	if !ok {
		// The server did not enumerate items: the whole batch succeeded.
		results := make([]Result, len(b.Items))
		for i, it := range b.Items {
			results[i] = Success{ItemID: it.ID, StatusCode: status, Body: nil}
		}
		return results
	}

	byID := make(map[string]int, len(b.Items))
	for i, it := range b.Items {
		byID[it.ID] = i
	}

	results := make([]Result, len(b.Items))
	var extra []Result
	for pos, echo := range echoes {
		idx := -1
		itemID := echo.ID
		if itemID != "" {
			if i, exists := byID[itemID]; exists {
				idx = i
			}
		} else if pos < len(b.Items) {
			idx = pos
			itemID = b.Items[pos].ID
		}

		res := echoResult(itemID, status, echo)
		if idx >= 0 && results[idx] == nil {
			results[idx] = res
		} else {
			// Echo for an item we did not send, or a duplicate echo.
			if echo.ID == "" {
				res = echoResult(UnknownItem, status, echo)
			}
			extra = append(extra, res)
		}
	}

	for i, it := range b.Items {
		if results[i] == nil {
			results[i] = MissingItem{ItemID: it.ID, StatusCode: status}
		}
	}
	return append(results, extra...)
}

func echoResult(itemID string, batchStatus int, echo itemEcho) Result {
	status := echo.Status
	if status == 0 {
		status = batchStatus
	}
	if status >= 200 && status < 300 {
		return Success{ItemID: itemID, StatusCode: status, Body: echo.Body}
	}
	return FailedResponse{ItemID: itemID, StatusCode: status, Detail: echo.Error, Body: echo.Body}
}

// parseItemEchoes extracts per-item entries from a batch response body,
// accepting both {"items": [...]} and a bare array. The second return is
// false when the response does not enumerate items.
func parseItemEchoes(body []byte) ([]itemEcho, bool) {
	if len(body) == 0 {
		return nil, false
	}
	var wrapped struct {
		Items []itemEcho `json:"items"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Items != nil {
		return wrapped.Items, true
	}
	var bare []itemEcho
	if err := json.Unmarshal(body, &bare); err == nil && bare != nil {
		return bare, true
	}
	return nil, false
}

// failAllResponse produces a terminal FailedResponse for every item.
func failAllResponse(b *Batch, status int, body []byte) []Result {
	detail := parseErrorDetail(body)
	results := make([]Result, len(b.Items))
	for i, it := range b.Items {
		results[i] = FailedResponse{ItemID: it.ID, StatusCode: status, Detail: detail, Body: body}
	}
	return results
}

// failAllRequest produces a terminal FailedRequest for every item.
func failAllRequest(b *Batch, cause FailureCause, reason string) []Result {
	results := make([]Result, len(b.Items))
	for i, it := range b.Items {
		results[i] = FailedRequest{ItemID: it.ID, Cause: cause, Reason: reason}
	}
	return results
}
