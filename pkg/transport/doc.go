// Package transport implements the resilient batch HTTP transport used to
// talk to the Marble platform API.
//
// The transport owns the HTTP connection pool and the retry / backoff / split
// state machine for both single-object requests and multi-item batch requests.
// A failing batch is bisected into two smaller batches to isolate the items
// the server rejects; all fragments of one original batch share a Tracker
// that bounds how often the batch tree may fail-and-split before it is forced
// to a terminal failure.
//
// Every logical item eventually resolves to exactly one terminal Result:
// Success, FailedResponse (an HTTP response was obtained), FailedRequest
// (no response was obtained), or MissingItem (the server's item list did not
// echo the item back). Partial success within a batch is normal; results are
// always reported per item.
//
// Requests are executed either on the caller's goroutine (SendWithRetries)
// or by a fixed-size worker pool draining a bounded queue (Pool), with
// backpressure coming from the queue's capacity.
package transport
