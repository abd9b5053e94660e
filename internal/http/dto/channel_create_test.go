package dto

import (
	"encoding/json"
	"testing"

	"github.com/loopcrm/channels-server/internal/domain/channel"
	"github.com/loopcrm/channels-server/internal/domain/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelCreateDefaults(t *testing.T) {
	var req ChannelCreate
	require.NoError(t, json.Unmarshal([]byte(`{"tenant_id":"acme","name":"ops"}`), &req))

	out, err := req.ToRequest()
	require.NoError(t, err)
	assert.Equal(t, "acme", out.TenantID)
	assert.Equal(t, "ops", out.Name)
	assert.Equal(t, provider.KindSelfHosted, out.ProviderKind)
	assert.Equal(t, channel.RecoveryNone, out.RecoveryWindow)
	assert.Nil(t, out.PhoneNumber)
	assert.Nil(t, out.Metadata)
}

func TestChannelCreateFull(t *testing.T) {
	payload := `{
		"tenant_id": "acme",
		"name": "support-line",
		"provider_kind": "gateway_saas",
		"phone_number": "5511999990000",
		"recovery_window": "month",
		"routing": {"pipeline_id": "p1", "column_id": "c1", "display_name": "Front Desk"},
		"metadata": {"label": "front desk"}
	}`
	var req ChannelCreate
	require.NoError(t, json.Unmarshal([]byte(payload), &req))

	out, err := req.ToRequest()
	require.NoError(t, err)
	assert.Equal(t, provider.KindSaaS, out.ProviderKind)
	assert.Equal(t, channel.RecoveryMonth, out.RecoveryWindow)
	require.NotNil(t, out.PhoneNumber)
	assert.Equal(t, "5511999990000", *out.PhoneNumber)
	require.NotNil(t, out.Routing.PipelineID)
	assert.Equal(t, "p1", *out.Routing.PipelineID)
	assert.Nil(t, out.Routing.QueueID)
	assert.JSONEq(t, `{"label":"front desk"}`, string(out.Metadata))
}

func TestChannelCreateRejections(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"missing tenant", `{"name":"ops"}`},
		{"null tenant", `{"tenant_id":null,"name":"ops"}`},
		{"missing name", `{"tenant_id":"acme"}`},
		{"null provider kind", `{"tenant_id":"acme","name":"ops","provider_kind":null}`},
		{"null routing", `{"tenant_id":"acme","name":"ops","routing":null}`},
		{"null recovery window", `{"tenant_id":"acme","name":"ops","recovery_window":null}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req ChannelCreate
			require.NoError(t, json.Unmarshal([]byte(tc.payload), &req))
			_, err := req.ToRequest()
			assert.Error(t, err)
		})
	}
}

func TestChannelCreateNullPhoneIsOmitted(t *testing.T) {
	var req ChannelCreate
	require.NoError(t, json.Unmarshal([]byte(`{"tenant_id":"acme","name":"ops","phone_number":null}`), &req))

	out, err := req.ToRequest()
	require.NoError(t, err)
	assert.Nil(t, out.PhoneNumber)
}
