package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

type batchBody struct {
	Items []map[string]any `json:"items"`
}

func decodeBatch(t *testing.T, r *http.Request) batchBody {
	t.Helper()
	var body batchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode batch body: %v", err)
	}
	return body
}

func writeEchoes(w http.ResponseWriter, echoes []map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"items": echoes})
}

func TestClient_Send_RetriesThenSucceeds(t *testing.T) {
	fixRand(t, 0.0)

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"ok": true}`)
	}))
	defer server.Close()

	c := NewClient(Options{BaseURL: server.URL})
	res := c.Send(context.Background(), NewRequest("GET", "/api/v1/tables", nil))

	success, ok := res.(Success)
	if !ok {
		t.Fatalf("Expected Success after retry, got %T", res)
	}
	if success.StatusCode != 200 {
		t.Errorf("Expected status 200, got %d", success.StatusCode)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 attempts, got %d", calls.Load())
	}
}

func TestClient_Send_AppliesAuthAndUserAgent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sesame" {
			t.Errorf("Expected bearer token, got %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "marble-test/1.0" {
			t.Errorf("Expected custom user agent, got %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Expected JSON accept header, got %q", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(Options{
		BaseURL:     server.URL,
		Credentials: StaticToken("sesame"),
		UserAgent:   "marble-test/1.0",
	})
	res := c.Send(context.Background(), NewRequest("GET", "/api/v1/tables", nil))
	if !res.OK() {
		t.Fatalf("Expected success, got %v", res)
	}
}

func TestClient_Send_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(Options{BaseURL: server.URL})
	res := c.Send(ctx, NewRequest("GET", "/api/v1/tables", nil))

	failed, ok := res.(FailedRequest)
	if !ok {
		t.Fatalf("Expected FailedRequest on cancelled context, got %T", res)
	}
	if failed.Cause != CauseFatal {
		t.Errorf("Expected fatal cause, got %s", failed.Cause)
	}
}

// One poisoned item in a batch of five: bisection must isolate it, leaving
// four successes and exactly one terminal failure.
func TestClient_SendWithRetries_IsolatesPoisonedItem(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBatch(t, r)
		for _, item := range body.Items {
			if item["id"] == "item-3" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				fmt.Fprint(w, `{"error": {"code": 409, "message": "conflicting definition"}}`)
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
	b := c.NewBatch("POST", "/api/v1/tables",
		testItems("item-1", "item-2", "item-3", "item-4", "item-5"))

	results := c.SendWithRetries(context.Background(), b)

	if len(results) != 5 {
		t.Fatalf("Expected 5 results, got %d", len(results))
	}
	succeeded := make(map[string]int)
	var failures []FailedResponse
	for _, res := range results {
		switch r := res.(type) {
		case Success:
			succeeded[r.ItemID]++
		case FailedResponse:
			failures = append(failures, r)
		default:
			t.Errorf("Unexpected result type %T for %s", res, res.Item())
		}
	}

	if len(failures) != 1 {
		t.Fatalf("Expected exactly 1 failure, got %d", len(failures))
	}
	if failures[0].ItemID != "item-3" {
		t.Errorf("Expected item-3 to fail, got %s", failures[0].ItemID)
	}
	if failures[0].StatusCode != 409 {
		t.Errorf("Expected status 409, got %d", failures[0].StatusCode)
	}
	if failures[0].Detail == nil || failures[0].Detail.Message != "conflicting definition" {
		t.Errorf("Expected parsed error envelope, got %+v", failures[0].Detail)
	}
	for _, id := range []string{"item-1", "item-2", "item-4", "item-5"} {
		if succeeded[id] != 1 {
			t.Errorf("Expected exactly one success for %s, got %d", id, succeeded[id])
		}
	}
}

func TestClient_SendWithRetries_PartialEchoProducesMissingItem(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBatch(t, r)
		// Echo every item except the last one.
		echoes := make([]map[string]any, 0, len(body.Items))
		for i, item := range body.Items {
			if i == len(body.Items)-1 {
				break
			}
			echoes = append(echoes, map[string]any{"id": item["id"], "status": 200})
		}
		writeEchoes(w, echoes)
	}))
	defer server.Close()

	c := NewClient(Options{BaseURL: server.URL})
	b := c.NewBatch("POST", "/api/v1/tables", testItems("a", "b", "c"))

	results := c.SendWithRetries(context.Background(), b)

	var missing []MissingItem
	for _, res := range results {
		if m, ok := res.(MissingItem); ok {
			missing = append(missing, m)
		}
	}
	if len(missing) != 1 || missing[0].ItemID != "c" {
		t.Errorf("Expected exactly item c missing, got %v", missing)
	}
}

func TestClient_SendWithRetries_AbortAfterSplitBudget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"error": {"code": 422, "message": "invalid"}}`)
	}))
	defer server.Close()

	c := NewClient(Options{BaseURL: server.URL, MaxFailedSplits: 2})
	b := c.NewBatch("POST", "/api/v1/tables",
		testItems("a", "b", "c", "d", "e", "f", "g", "h"))

	results := c.SendWithRetries(context.Background(), b)

	if len(results) != 8 {
		t.Fatalf("Expected 8 results, got %d", len(results))
	}
	for _, res := range results {
		if res.OK() {
			t.Errorf("Expected every item to fail, got success for %s", res.Item())
		}
	}
	if got := b.Tracker().FailedSplits(); got != 2 {
		t.Errorf("Expected split budget consumed exactly, got %d", got)
	}
}

func TestClient_ResolveURL(t *testing.T) {
	c := NewClient(Options{BaseURL: "https://platform.example/"})

	if got := c.resolveURL("/api/v1/tables"); got != "https://platform.example/api/v1/tables" {
		t.Errorf("Expected joined URL, got %q", got)
	}
	if got := c.resolveURL("https://other.example/x"); got != "https://other.example/x" {
		t.Errorf("Expected absolute URL passthrough, got %q", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("17"); got.Seconds() != 17 {
		t.Errorf("Expected 17s, got %v", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("Expected 0 for absent header, got %v", got)
	}
	if got := parseRetryAfter("not-a-delay"); got != 0 {
		t.Errorf("Expected 0 for malformed header, got %v", got)
	}
}
