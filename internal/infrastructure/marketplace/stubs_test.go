package marketplace

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/sellerlink/backend/internal/domain/integration"
)

type stubGrantStore struct {
	mu      sync.Mutex
	grant   *integration.Grant
	cleared int
}

func (s *stubGrantStore) GetActive(ctx context.Context) (*integration.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grant == nil {
		return nil, nil
	}
	g := *s.grant
	return &g, nil
}

func (s *stubGrantStore) Save(ctx context.Context, grant *integration.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := *grant
	s.grant = &g
	return nil
}

func (s *stubGrantStore) Clear(ctx context.Context, grantID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grant = nil
	s.cleared++
	return nil
}

// stubRefresher hands out the next access token and records the grants it was given
type stubRefresher struct {
	mu     sync.Mutex
	calls  []*integration.Grant
	tokens *integration.TokenSet
	err    error
}

func (r *stubRefresher) RefreshTokens(ctx context.Context, grant *integration.Grant) (*integration.TokenSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, grant)
	if r.err != nil {
		return nil, r.err
	}
	return r.tokens, nil
}

func (r *stubRefresher) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// recordingDoer captures requests and answers with canned bodies
type recordingDoer struct {
	requests []Request
	body     []byte
	err      error
}

func (d *recordingDoer) Do(ctx context.Context, req Request) (*Response, error) {
	d.requests = append(d.requests, req)
	if d.err != nil {
		return nil, d.err
	}
	return &Response{StatusCode: 200, Body: d.body}, nil
}

func (d *recordingDoer) last() Request {
	return d.requests[len(d.requests)-1]
}
