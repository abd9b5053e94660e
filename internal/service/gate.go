package service

// gate is a tiny 1-token semaphore. Provisioning acquires the per-tenant gate
// so that quota admission, name claim and row insert behave as one decision
// per tenant. Provisioning is a low-frequency administrative action; a short
// per-tenant serialization is acceptable.
type gate struct{ ch chan struct{} }

func newGate() *gate {
	g := &gate{ch: make(chan struct{}, 1)}
	g.ch <- struct{}{} // token present => unlocked
	return g
}

func (g *gate) Lock() { <-g.ch }

func (g *gate) Unlock() {
	select {
	case g.ch <- struct{}{}:
	default:
		panic("unlock of unlocked gate")
	}
}
