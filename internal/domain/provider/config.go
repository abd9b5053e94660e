package provider

import "time"

// Kind identifies one of the supported messaging providers. The two kinds
// expose incompatible APIs; everything kind-specific lives in the adapter
// implementing that kind.
type Kind string

const (
	// KindSelfHosted is the self-hosted multi-device gateway.
	KindSelfHosted Kind = "gateway_self_hosted"
	// KindSaaS is the hosted SaaS gateway.
	KindSaaS Kind = "gateway_saas"
)

// Kinds lists every supported provider kind.
func Kinds() []Kind { return []Kind{KindSelfHosted, KindSaaS} }

// Valid reports whether k is a supported provider kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSelfHosted, KindSaaS:
		return true
	}
	return false
}

// Config is a per-workspace provider configuration row. At most one row is
// resolved per (tenant, kind) pair. Read-only from the provisioning flow's
// perspective.
type Config struct {
	ID       int64  `json:"id"`        //
	TenantID string `json:"tenant_id"` //
	Kind     Kind   `json:"kind"`      //
	BaseURL  string `json:"base_url"`  //
	IsActive bool   `json:"is_active"` //

	// Self-hosted gateway credential.
	APIToken string `json:"api_token,omitempty"` // sent as `apikey` header

	// SaaS gateway credentials. AccountToken is the integrator/partner token
	// scoped to creating new instances; the instance-scoped pair is issued per
	// instance and must never be presented on creation calls.
	AccountToken  string `json:"account_token,omitempty"`  // integrator token
	ClientToken   string `json:"client_token,omitempty"`   // instance-client token
	InstanceToken string `json:"instance_token,omitempty"` // instance token

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CredentialPresent reports whether the kind-specific token required for
// instance creation is non-blank.
func (c *Config) CredentialPresent() bool {
	switch c.Kind {
	case KindSelfHosted:
		return c.APIToken != ""
	case KindSaaS:
		return c.AccountToken != ""
	}
	return false
}
