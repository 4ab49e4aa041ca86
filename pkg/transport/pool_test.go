package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBatch(t, r)
		echoes := make([]map[string]any, len(body.Items))
		for i, item := range body.Items {
			echoes[i] = map[string]any{"id": item["id"], "status": 200}
		}
		writeEchoes(w, echoes)
	}))
}

func collectResults(t *testing.T, p *Pool, n int) []Result {
	t.Helper()
	results := make([]Result, 0, n)
	timeout := time.After(10 * time.Second)
	for len(results) < n {
		select {
		case res, ok := <-p.Results():
			if !ok {
				t.Fatalf("Results closed after %d of %d results", len(results), n)
			}
			results = append(results, res)
		case <-timeout:
			t.Fatalf("Timed out after %d of %d results", len(results), n)
		}
	}
	return results
}

func TestPool_Submit_DrivesBatchToCompletion(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	c := NewClient(Options{BaseURL: server.URL})
	p := NewPool(c, 2, 4)
	defer p.Shutdown()

	b := c.NewBatch("POST", "/api/v1/tables", testItems("a", "b", "c"))
	if err := p.Submit(context.Background(), b); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	results := collectResults(t, p, 3)
	for _, res := range results {
		if !res.OK() {
			t.Errorf("Expected success for %s, got %T", res.Item(), res)
		}
	}
}

func TestPool_FragmentsFlowBackThroughQueue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBatch(t, r)
		for _, item := range body.Items {
			if item["id"] == "poison" {
				w.WriteHeader(http.StatusConflict)
				return
			}
		}
		echoes := make([]map[string]any, len(body.Items))
		for i, item := range body.Items {
			echoes[i] = map[string]any{"id": item["id"], "status": 200}
		}
		writeEchoes(w, echoes)
	}))
	defer server.Close()

	c := NewClient(Options{BaseURL: server.URL})
	p := NewPool(c, 2, 2)
	defer p.Shutdown()

	b := c.NewBatch("POST", "/api/v1/tables", testItems("a", "b", "poison", "c"))
	if err := p.Submit(context.Background(), b); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	results := collectResults(t, p, 4)
	var failures int
	for _, res := range results {
		if !res.OK() {
			failures++
			if res.Item() != "poison" {
				t.Errorf("Expected only the poison item to fail, got %s", res.Item())
			}
		}
	}
	if failures != 1 {
		t.Errorf("Expected exactly 1 failure, got %d", failures)
	}
}

func TestPool_MultipleBatches(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	c := NewClient(Options{BaseURL: server.URL})
	p := NewPool(c, 4, 8)

	total := 0
	for i := 0; i < 5; i++ {
		ids := []string{
			"batch" + string(rune('0'+i)) + "-x",
			"batch" + string(rune('0'+i)) + "-y",
		}
		total += len(ids)
		if err := p.Submit(context.Background(), c.NewBatch("POST", "/api/v1/tables", testItems(ids...))); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	results := collectResults(t, p, total)
	if len(results) != total {
		t.Fatalf("Expected %d results, got %d", total, len(results))
	}
	p.Shutdown()
}

func TestPool_SubmitAfterShutdownFails(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	c := NewClient(Options{BaseURL: server.URL})
	p := NewPool(c, 1, 1)
	p.Shutdown()

	b := c.NewBatch("POST", "/api/v1/tables", testItems("a"))
	if err := p.Submit(context.Background(), b); err == nil {
		t.Error("Expected Submit to fail after Shutdown")
	}
}

func TestPool_SubmitRacingShutdown(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	c := NewClient(Options{BaseURL: server.URL})
	p := NewPool(c, 1, 1)

	// A drainer keeps the bounded results channel from stalling the
	// workers while submissions race the shutdown.
	drained := make(chan int)
	go func() {
		n := 0
		for range p.Results() {
			n++
		}
		drained <- n
	}()

	var wg sync.WaitGroup
	accepted := int32(0)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := c.NewBatch("POST", "/api/v1/tables", testItems("r"+string(rune('a'+i))))
			if err := p.Submit(context.Background(), b); err == nil {
				atomic.AddInt32(&accepted, 1)
			}
		}(i)
	}
	p.Shutdown()
	wg.Wait()

	select {
	case n := <-drained:
		if int32(n) != atomic.LoadInt32(&accepted) {
			t.Errorf("Expected a result for each of the %d accepted batches, got %d",
				accepted, n)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Results channel never closed")
	}
}

func TestPool_ShutdownDrainsAndClosesResults(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	c := NewClient(Options{BaseURL: server.URL})
	p := NewPool(c, 2, 4)

	b := c.NewBatch("POST", "/api/v1/tables", testItems("a", "b"))
	if err := p.Submit(context.Background(), b); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	results := collectResults(t, p, 2)
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}

	p.Shutdown()
	if _, ok := <-p.Results(); ok {
		t.Error("Expected results channel closed after Shutdown")
	}
}
