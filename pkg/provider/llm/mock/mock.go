// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that callers send correct
// CompletionRequests and to feed controlled responses without a live backend.
// Scripted results in Results are consumed one per call, which makes retry
// sequences (fail, fail, succeed) easy to express.
//
// Example:
//
//	p := &mock.Provider{
//	    Results: []mock.Result{
//	        {Err: errors.New("503")},
//	        {Response: &llm.CompletionResponse{Content: `{"score":7}`}},
//	    },
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/fortuna/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Result is one scripted outcome of Complete.
type Result struct {
	Response *llm.CompletionResponse
	Err      error
}

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Results are returned in order, one per call. Once exhausted, the
	// CompleteResponse/CompleteErr pair is used.
	Results []Result

	// CompleteResponse is returned by Complete when Results is exhausted.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned when Results is exhausted.
	CompleteErr error

	// --- Call records (read after test) ---

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

// Complete records the call and returns the next scripted result.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(p.Results) > 0 {
		r := p.Results[0]
		p.Results = p.Results[1:]
		return r.Response, r.Err
	}
	return p.CompleteResponse, p.CompleteErr
}

// Calls returns the number of Complete invocations so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}

// LastRequest returns the request of the most recent Complete call.
func (p *Provider) LastRequest() (llm.CompletionRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.CompleteCalls) == 0 {
		return llm.CompletionRequest{}, false
	}
	return p.CompleteCalls[len(p.CompleteCalls)-1].Req, true
}
