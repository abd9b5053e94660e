package channel

// Status is the connection lifecycle state of a channel.
//
// The provisioning flow only ever reaches an intermediate state: it creates
// the record in StatusCreating and, depending on the provider's immediate
// response, advances it to StatusQR or StatusConnected. Durable transitions
// for most channels arrive later through the webhook ingester. No state is
// terminal; a channel may cycle between qr, connected and disconnected until
// it is deleted.
type Status string

const (
	StatusCreating     Status = "creating"
	StatusQR           Status = "qr"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Valid reports whether s is one of the enumerated lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusCreating, StatusQR, StatusConnected, StatusDisconnected:
		return true
	}
	return false
}

// transitions is the authoritative legal-transition table.
//
// creating fans out to any post-creation state. qr may repeat (the provider
// rotates pairing codes), connect, or drop. connected and disconnected cycle
// both ways (reconnect flow), and a dropped session may be re-paired via qr.
// Nothing ever transitions back into creating.
var transitions = map[Status]map[Status]struct{}{
	StatusCreating: {
		StatusQR:           {},
		StatusConnected:    {},
		StatusDisconnected: {},
	},
	StatusQR: {
		StatusQR:           {}, // new code
		StatusConnected:    {},
		StatusDisconnected: {},
	},
	StatusConnected: {
		StatusDisconnected: {},
	},
	StatusDisconnected: {
		StatusConnected: {},
		StatusQR:        {},
	},
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	_, ok := transitions[s][next]
	return ok
}
