package provider

import (
	"fmt"
	"strings"
)

// Resolution failures are terminal, user-facing errors: none of them is
// retried, and each names the missing configuration so the caller can fix it.

// NotConfiguredError means no configuration row exists for the requested
// (tenant, kind). ConfiguredKinds lists the kinds that ARE configured for the
// tenant, to help the caller recover.
type NotConfiguredError struct {
	TenantID        string
	Kind            Kind
	ConfiguredKinds []Kind
}

func (e *NotConfiguredError) Error() string {
	if len(e.ConfiguredKinds) == 0 {
		return fmt.Sprintf("provider %q is not configured for this workspace and no other provider is configured", e.Kind)
	}
	names := make([]string, len(e.ConfiguredKinds))
	for i, k := range e.ConfiguredKinds {
		names[i] = string(k)
	}
	return fmt.Sprintf("provider %q is not configured for this workspace (configured: %s)", e.Kind, strings.Join(names, ", "))
}

// InactiveError means the configuration row exists but is disabled.
type InactiveError struct {
	TenantID string
	Kind     Kind
}

func (e *InactiveError) Error() string {
	return fmt.Sprintf("provider %q is configured but inactive; activate it in the workspace integration settings", e.Kind)
}

// MissingCredentialError means the row is active but the kind-specific API
// token needed to create instances is blank.
type MissingCredentialError struct {
	TenantID string
	Kind     Kind
	Field    string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("provider %q is missing credential %q; set it in the workspace integration settings", e.Kind, e.Field)
}

// credentialField names the kind-specific token field used in
// MissingCredentialError messages.
func credentialField(k Kind) string {
	switch k {
	case KindSelfHosted:
		return "api_token"
	case KindSaaS:
		return "account_token"
	}
	return "token"
}

// CheckResolved applies the resolution rules to a fetched row. cfg may be nil
// (no row). configured lists the kinds with rows present for the tenant.
func CheckResolved(tenantID string, kind Kind, cfg *Config, configured []Kind) (*Config, error) {
	if cfg == nil {
		others := make([]Kind, 0, len(configured))
		for _, k := range configured {
			if k != kind {
				others = append(others, k)
			}
		}
		return nil, &NotConfiguredError{TenantID: tenantID, Kind: kind, ConfiguredKinds: others}
	}
	if !cfg.IsActive {
		return nil, &InactiveError{TenantID: tenantID, Kind: kind}
	}
	if !cfg.CredentialPresent() {
		return nil, &MissingCredentialError{TenantID: tenantID, Kind: kind, Field: credentialField(kind)}
	}
	return cfg, nil
}
