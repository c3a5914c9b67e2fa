// Package mock provides a test double for the image.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/fortuna/pkg/provider/image"
)

var _ image.Provider = (*Provider)(nil)

// Provider is a mock implementation of image.Provider.
type Provider struct {
	mu sync.Mutex

	// Image is returned by Generate. May be nil (returns nil, nil).
	Image *image.Image

	// GenerateErr, if non-nil, is returned as the error from Generate.
	GenerateErr error

	// Requests records every request passed to Generate.
	Requests []image.Request
}

// Generate records the request and returns Image or GenerateErr.
func (p *Provider) Generate(_ context.Context, req image.Request) (*image.Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.GenerateErr != nil {
		return nil, p.GenerateErr
	}
	return p.Image, nil
}

// Calls returns the number of Generate invocations so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}
