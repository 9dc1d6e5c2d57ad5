package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
)

// StaticBrowser reports a fixed list of endpoints. Each Browse emits one
// EndpointAdded per address and then waits for ctx or Stop.
type StaticBrowser struct {
	endpoints []*Endpoint

	mu      sync.Mutex
	cancels []context.CancelFunc
}

// NewStaticBrowser creates a browser for "host:port" addresses.
func NewStaticBrowser(addresses ...string) (*StaticBrowser, error) {
	b := &StaticBrowser{}
	for _, addr := range addresses {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint %q: %w", addr, err)
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid port in %q: %w", addr, err)
		}
		b.endpoints = append(b.endpoints, &Endpoint{
			InstanceName: addr,
			Host:         host,
			Port:         uint16(port),
		})
	}
	return b, nil
}

// Browse implements Browser.
func (b *StaticBrowser) Browse(ctx context.Context) (<-chan EndpointEvent, error) {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()

	out := make(chan EndpointEvent)
	go func() {
		defer close(out)
		for _, ep := range b.endpoints {
			select {
			case out <- EndpointEvent{Type: EndpointAdded, Endpoint: clone(ep)}:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return out, nil
}

// Stop ends every active Browse.
func (b *StaticBrowser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
}

var _ Browser = (*StaticBrowser)(nil)
