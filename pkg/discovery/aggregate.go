package discovery

import "slices"

// aggregator merges per-interface announcements into endpoints.
type aggregator struct {
	endpoints map[string]*Endpoint
}

func newAggregator() *aggregator {
	return &aggregator{endpoints: make(map[string]*Endpoint)}
}

// add records an announcement and returns the event to emit, if any.
func (a *aggregator) add(ep *Endpoint) (EndpointEvent, bool) {
	existing, found := a.endpoints[ep.InstanceName]
	if !found {
		a.endpoints[ep.InstanceName] = ep
		return EndpointEvent{Type: EndpointAdded, Endpoint: clone(ep)}, true
	}

	changed := false
	for _, addr := range ep.Addresses {
		if !slices.Contains(existing.Addresses, addr) {
			existing.Addresses = append(existing.Addresses, addr)
			changed = true
		}
	}
	if existing.Port != ep.Port || existing.Name != ep.Name || !slices.Equal(existing.Services, ep.Services) {
		existing.Port = ep.Port
		existing.Name = ep.Name
		existing.Services = ep.Services
		changed = true
	}
	if !changed {
		return EndpointEvent{}, false
	}
	return EndpointEvent{Type: EndpointUpdated, Endpoint: clone(existing)}, true
}

// remove withdraws addresses; the endpoint goes away with its last address
// or when the withdrawal carries no addresses at all.
func (a *aggregator) remove(instance string, addrs []string) (EndpointEvent, bool) {
	existing, found := a.endpoints[instance]
	if !found {
		return EndpointEvent{}, false
	}
	if len(addrs) > 0 {
		existing.Addresses = slices.DeleteFunc(existing.Addresses, func(s string) bool {
			return slices.Contains(addrs, s)
		})
	} else {
		existing.Addresses = nil
	}
	if len(existing.Addresses) > 0 {
		return EndpointEvent{Type: EndpointUpdated, Endpoint: clone(existing)}, true
	}
	delete(a.endpoints, instance)
	return EndpointEvent{Type: EndpointRemoved, Endpoint: existing}, true
}

func clone(ep *Endpoint) *Endpoint {
	c := *ep
	c.Addresses = slices.Clone(ep.Addresses)
	c.Services = slices.Clone(ep.Services)
	return &c
}
