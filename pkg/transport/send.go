package transport

import (
	"context"
	"time"
)

// Send executes a single-object request to a terminal result, sleeping on
// the calling goroutine between retries.
func (c *Client) Send(ctx context.Context, req *Request) Result {
	for {
		if res, interrupted := waitUntil(ctx, req.notBefore); interrupted {
			return res
		}
		out := c.attempt(ctx, req, nil)
		switch action := c.stepSingle(req, out).(type) {
		case Done:
			c.recordResults(action.Results)
			return action.Results[0]
		case RetrySingle:
			req = action.Request
			req.notBefore = time.Now().Add(action.Delay)
		}
	}
}

// SendBatch performs one attempt for a batch and returns the terminal
// results produced so far plus any fragments to re-enqueue (a retry of the
// whole batch, or the two halves of a split). The caller loops until only
// terminal results remain; SendWithRetries does that loop internally.
func (c *Client) SendBatch(ctx context.Context, b *Batch) ([]Result, []*Batch) {
	if res, interrupted := waitUntil(ctx, b.notBefore); interrupted {
		results := make([]Result, len(b.Items))
		for i, it := range b.Items {
			r := res.(FailedRequest)
			r.ItemID = it.ID
			results[i] = r
		}
		c.recordResults(results)
		return results, nil
	}

	if c.opts.Metrics != nil {
		c.opts.Metrics.ObserveBatchSize(len(b.Items))
	}

	out := c.attempt(ctx, &b.Request, b.payloads())
	switch action := c.stepBatch(b, out).(type) {
	case Done:
		c.recordResults(action.Results)
		return action.Results, nil
	case RetryBatch:
		action.Batch.notBefore = time.Now().Add(action.Delay)
		return nil, []*Batch{action.Batch}
	case SplitBatch:
		return nil, []*Batch{action.Left, action.Right}
	}
	return nil, nil
}

// SendWithRetries drives a batch tree to completion on the calling
// goroutine, blocking through retries and splits until every item has a
// terminal result. Item results may arrive in any order relative to the
// original batch.
func (c *Client) SendWithRetries(ctx context.Context, b *Batch) []Result {
	pending := []*Batch{b}
	var results []Result
	for len(pending) > 0 {
		next := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		terminal, fragments := c.SendBatch(ctx, next)
		results = append(results, terminal...)
		pending = append(pending, fragments...)
	}
	return results
}

// waitUntil sleeps until t, honoring cancellation. On interruption it
// returns a terminal FailedRequest template and true.
func waitUntil(ctx context.Context, t time.Time) (Result, bool) {
	d := time.Until(t)
	if d <= 0 {
		select {
		case <-ctx.Done():
			return FailedRequest{Cause: CauseFatal, Reason: ctx.Err().Error()}, true
		default:
			return nil, false
		}
	}
	select {
	case <-time.After(d):
		return nil, false
	case <-ctx.Done():
		return FailedRequest{Cause: CauseFatal, Reason: ctx.Err().Error()}, true
	}
}

func (c *Client) recordResults(results []Result) {
	if c.opts.Metrics == nil {
		return
	}
	for _, res := range results {
		switch res.(type) {
		case Success:
			c.opts.Metrics.RecordItemResult("success")
		case FailedResponse:
			c.opts.Metrics.RecordItemResult("failed_response")
		case FailedRequest:
			c.opts.Metrics.RecordItemResult("failed_request")
		case MissingItem:
			c.opts.Metrics.RecordItemResult("missing")
		}
	}
}
