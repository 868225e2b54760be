package actuator

// Pending is a requested register change that has not been applied yet.
// The zero value means no change.
type Pending struct {
	set   bool
	value uint8
}

// NoChange is the empty request.
var NoChange = Pending{}

func Set(value uint8) Pending {
	return Pending{set: true, value: value}
}

// Get returns the requested value, if any.
func (p Pending) Get() (uint8, bool) {
	return p.value, p.set
}

// take returns the request and resets it so it is applied at most once.
func (p *Pending) take() (uint8, bool) {
	v, ok := p.Get()
	*p = NoChange
	return v, ok
}
