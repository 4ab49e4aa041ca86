package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marbledata/marble/pkg/transport"
)

// APISource observes remote state through the platform's list endpoints.
type APISource struct {
	client *transport.Client
}

// NewAPISource creates a remote source backed by the given transport client.
func NewAPISource(client *transport.Client) *APISource {
	return &APISource{client: client}
}

// listEnvelope is the wire shape of a list response. The platform wraps
// collections in an items envelope; a bare array is tolerated too.
type listEnvelope struct {
	Items []listEntry `json:"items"`
}

type listEntry struct {
	ID    string         `json:"id"`
	State map[string]any `json:"state"`
}

// List fetches every remote instance of the given type.
func (s *APISource) List(ctx context.Context, rt ResourceType) ([]RemoteResource, error) {
	req := transport.NewRequest("GET", rt.Endpoint(), nil)
	req.ID = "list-" + rt.Name()

	res := s.client.Send(ctx, req)
	success, ok := res.(transport.Success)
	if !ok {
		return nil, listError(rt.Name(), res)
	}

	entries, err := parseListBody(success.Body)
	if err != nil {
		return nil, NewPermanentError(
			fmt.Sprintf("listing %s resources returned a malformed body", rt.Name()),
			err,
		).WithCode(ErrCodeListFailed).WithOperation("list")
	}

	remote := make([]RemoteResource, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		remote = append(remote, RemoteResource{ID: e.ID, State: e.State})
	}
	return remote, nil
}

func parseListBody(body []byte) ([]listEntry, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var envelope listEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Items != nil {
		return envelope.Items, nil
	}
	var bare []listEntry
	if err := json.Unmarshal(body, &bare); err != nil {
		return nil, err
	}
	return bare, nil
}

// listError classifies a failed list result. Throttling and conflicts map
// to their own classes so callers can decide whether another sync attempt
// is worthwhile.
func listError(name string, res transport.Result) *EngineError {
	msg := fmt.Sprintf("listing %s resources failed", name)
	cause := resultError(res)

	var err *EngineError
	switch r := res.(type) {
	case transport.FailedResponse:
		switch {
		case r.StatusCode == 429:
			err = NewThrottledError(msg, cause)
		case r.StatusCode == 409:
			err = NewConflictError(msg, cause)
		case r.StatusCode >= 500:
			err = NewTransientError(msg, cause)
		default:
			err = NewPermanentError(msg, cause)
		}
	case transport.FailedRequest:
		if r.Cause == transport.CauseFatal {
			err = NewPermanentError(msg, cause)
		} else {
			err = NewTransientError(msg, cause)
		}
	default:
		err = NewTransientError(msg, cause)
	}
	return err.WithCode(ErrCodeListFailed).WithOperation("list")
}

// resultError renders a terminal transport failure as an error value.
func resultError(res transport.Result) error {
	switch r := res.(type) {
	case transport.FailedResponse:
		if r.Detail != nil {
			return fmt.Errorf("status %d: %s", r.StatusCode, r.Detail.Message)
		}
		return fmt.Errorf("status %d", r.StatusCode)
	case transport.FailedRequest:
		return fmt.Errorf("%s failure: %s", r.Cause, r.Reason)
	case transport.MissingItem:
		return fmt.Errorf("item missing from response (status %d)", r.StatusCode)
	default:
		return fmt.Errorf("unexpected result %T", res)
	}
}
