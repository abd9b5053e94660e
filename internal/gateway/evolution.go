package gateway

import (
	"context"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/loopcrm/channels-server/internal/domain/provider"
	"go.uber.org/zap"
)

// evolutionClient talks to the self-hosted multi-device gateway. Auth is a
// single `apikey` header; one creation call returns either an inline base64
// QR image, an inline pairing code, or an "already open" state with the
// owning phone number.
type evolutionClient struct {
	http *resty.Client
	log  *zap.Logger
}

func newEvolutionClient(cfg *provider.Config, opts Options) *evolutionClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("apikey", cfg.APIToken).
		SetTimeout(opts.Timeout)

	return &evolutionClient{
		http: client,
		log:  opts.Log.Named("evolution"),
	}
}

type evolutionWebhook struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

type evolutionCreateRequest struct {
	InstanceName string           `json:"instanceName"`
	QRCode       bool             `json:"qrcode"`
	Integration  string           `json:"integration"`
	Number       string           `json:"number,omitempty"`
	Webhook      evolutionWebhook `json:"webhook"`
}

type evolutionCreateResponse struct {
	Instance struct {
		InstanceName string `json:"instanceName"`
		InstanceID   string `json:"instanceId"`
		State        string `json:"state"`
		Owner        string `json:"owner"`
	} `json:"instance"`
	QRCode struct {
		Base64 string `json:"base64"`
		Code   string `json:"code"`
	} `json:"qrcode"`
}

// CreateInstance provisions a gateway instance and registers our webhook.
//
// The response is checked for three shapes in priority order: inline base64
// QR image, inline QR code string, then an already-open session carrying the
// owning phone number.
func (c *evolutionClient) CreateInstance(ctx context.Context, req CreateInstanceRequest) (*Outcome, error) {
	body := evolutionCreateRequest{
		InstanceName: req.Name,
		QRCode:       true,
		Integration:  "WHATSAPP-BAILEYS",
		Number:       req.PhoneNumber,
		Webhook: evolutionWebhook{
			URL:    req.CallbackURL,
			Events: []string{"QRCODE_UPDATED", "MESSAGES_UPSERT", "CONNECTION_UPDATE"},
		},
	}

	var parsed evolutionCreateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&parsed).
		Post("/instance/create")
	if err != nil {
		return nil, classifyTransport(err)
	}
	if resp.IsError() {
		return nil, classifyRejection(resp.StatusCode(), resp.Body())
	}

	out := &Outcome{
		Metadata:         append([]byte(nil), resp.Body()...),
		RemoteInstanceID: parsed.Instance.InstanceID,
	}

	switch {
	case parsed.QRCode.Base64 != "":
		out.QRPayload = parsed.QRCode.Base64
	case parsed.QRCode.Code != "":
		out.QRPayload = parsed.QRCode.Code
	case parsed.Instance.State == "open":
		out.Connected = true
		out.PhoneNumber = ownerNumber(parsed.Instance.Owner)
	}

	c.log.Debug("instance created",
		zap.String("instance_name", req.Name),
		zap.Bool("qr", out.QRPayload != ""),
		zap.Bool("connected", out.Connected),
	)
	return out, nil
}

// SubscribeInstance is a no-op for the self-hosted gateway; the creation call
// already registers the webhook.
func (c *evolutionClient) SubscribeInstance(ctx context.Context, instanceID, instanceToken string) error {
	return nil
}

// ownerNumber strips the gateway's JID suffix from an owner identifier.
func ownerNumber(owner string) string {
	if i := strings.IndexByte(owner, '@'); i >= 0 {
		return owner[:i]
	}
	return owner
}
