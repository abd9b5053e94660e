package channel

import "time"

// Secret holds a channel's provisioning credentials: the gateway base URL and
// a freshly generated opaque token that authenticates the provider's webhook
// callbacks against our own ingestion endpoint. It is persisted in a side
// table so that operational reads of the Channel row never expose it, and it
// is deleted together with the channel on rollback.
type Secret struct {
	ChannelID  int64     `json:"channel_id"`  // 1:1 with Channel
	GatewayURL string    `json:"gateway_url"` //
	Token      string    `json:"token"`       // webhook-callback bearer token; not a provider credential
	CreatedAt  time.Time `json:"created_at"`  //
}
