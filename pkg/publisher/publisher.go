// Package publisher implements the service side of the fieldbus sample: a
// byte counter published as a field event of two services on a fixed
// period.
package publisher

import (
	"sync"

	"github.com/fieldbus/fieldbus-go/pkg/runtime"
	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

// Publisher owns the counter and emits one notification per service on
// every Tick.
type Publisher struct {
	app      runtime.Application
	event    wire.EventID
	services []wire.ServiceKey

	mu      sync.Mutex
	counter uint8
}

// NewPublisher creates a publisher notifying event on the given services,
// in order.
func NewPublisher(app runtime.Application, event wire.EventID, services ...wire.ServiceKey) *Publisher {
	return &Publisher{
		app:      app,
		event:    event,
		services: services,
	}
}

// Tick publishes the current counter value to every service and advances
// the counter, wrapping after 255. It returns the published value.
func (p *Publisher) Tick() uint8 {
	p.mu.Lock()
	value := p.counter
	p.counter++
	p.mu.Unlock()

	payload := runtime.NewPayload([]byte{value})
	for _, s := range p.services {
		p.app.Notify(s.Service, s.Instance, p.event, payload)
	}
	return value
}

// Next returns the value the next Tick will publish.
func (p *Publisher) Next() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counter
}
