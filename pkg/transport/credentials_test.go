package transport

import (
	"context"
	"net/http"
	"testing"
)

func TestApplyAuth_StaticToken(t *testing.T) {
	req, _ := http.NewRequest("GET", "http://example.com", nil)
	if err := applyAuth(context.Background(), req, StaticToken("sesame")); err != nil {
		t.Fatalf("applyAuth failed: %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer sesame" {
		t.Errorf("Expected bearer header, got %q", got)
	}
}

func TestApplyAuth_NoProvider(t *testing.T) {
	req, _ := http.NewRequest("GET", "http://example.com", nil)
	if err := applyAuth(context.Background(), req, nil); err != nil {
		t.Fatalf("applyAuth failed: %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "" {
		t.Errorf("Expected no auth header, got %q", got)
	}
}

func TestApplyAuth_EmptyToken(t *testing.T) {
	req, _ := http.NewRequest("GET", "http://example.com", nil)
	if err := applyAuth(context.Background(), req, StaticToken("")); err != nil {
		t.Fatalf("applyAuth failed: %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "" {
		t.Errorf("Expected no auth header for an empty token, got %q", got)
	}
}
