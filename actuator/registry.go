package actuator

import "fmt"

// Actuator describes one configured device on the bus.
type Actuator struct {
	ID    uint8
	Class Class
}

// Registry owns the proxies in bus order. The order is fixed at startup
// and determines the layout of every bulk transaction.
type Registry struct {
	proxies []*Proxy
	byID    map[uint8]*Proxy
}

// NewRegistry constructs one proxy per actuator, in order. Any failure is
// fatal: the bridge cannot run without every configured device.
func NewRegistry(tr Transport, actuators []Actuator) (*Registry, error) {
	r := &Registry{byID: make(map[uint8]*Proxy, len(actuators))}
	for i, a := range actuators {
		if _, ok := r.byID[a.ID]; ok {
			return nil, fmt.Errorf("duplicate device id %d", a.ID)
		}
		p, err := NewProxy(tr, i, a.ID, a.Class)
		if err != nil {
			return nil, err
		}
		r.proxies = append(r.proxies, p)
		r.byID[a.ID] = p
	}
	return r, nil
}

func (r *Registry) Len() int {
	return len(r.proxies)
}

// At returns the proxy at the given bus index.
func (r *Registry) At(index int) (*Proxy, error) {
	if index < 0 || index >= len(r.proxies) {
		return nil, fmt.Errorf("%w: index %d", ErrUnknownDevice, index)
	}
	return r.proxies[index], nil
}

// ByID returns the proxy for a bus ID.
func (r *Registry) ByID(id uint8) (*Proxy, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownDevice, id)
	}
	return p, nil
}

// InitialPositions returns every device's startup position in degrees, in
// bus order. Degrees use the class position ratio, so raw 2048 on an XC330
// is 180.00, not 2048*360/4095.
func (r *Registry) InitialPositions() []float64 {
	out := make([]float64, len(r.proxies))
	for i, p := range r.proxies {
		out[i] = p.InitialPosition()
	}
	return out
}
