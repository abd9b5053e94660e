package channel

import (
	"errors"
	"fmt"
)

// ValidateNew checks request-derived fields before any store or provider side
// effect. Field presence only; name uniqueness and quota admission are store
// concerns handled by the provisioning flow.
func (ch *Channel) ValidateNew() error {
	if ch.TenantID == "" {
		return errors.New("tenant_id is required")
	}
	if ch.Name == "" {
		return errors.New("name is required")
	}
	if len(ch.Name) > 100 {
		return errors.New("name must be at most 100 characters")
	}
	if ch.ProviderKind == "" {
		return errors.New("provider_kind is required")
	}
	if !ch.HistorySync.Window.Valid() {
		return fmt.Errorf("invalid history recovery window %q", ch.HistorySync.Window)
	}
	if ch.PhoneNumber != nil && len(*ch.PhoneNumber) > 32 {
		return errors.New("phone_number must be at most 32 characters")
	}
	return nil
}
